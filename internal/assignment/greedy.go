package assignment

import (
	"context"
	"math"

	"github.com/nmrkit/phfit/internal/equilibrium"
	"github.com/nmrkit/phfit/internal/logging"
	"github.com/nmrkit/phfit/internal/nucleus"
)

// candidate is one predicted resonance position for a nucleus.
type candidate struct {
	bufferID    string
	resonanceID string
	predicted   float64
}

// GreedyAssigner implements the Assigner interface with a single-pass greedy
// heuristic: observations are consumed in ascending order and each claims its
// nearest unclaimed prediction. Consumption order affects outcomes under
// contested predictions; the ascending order plus stable candidate scan keeps
// results reproducible.
type GreedyAssigner struct{}

// Assign runs one assignment round at the request's trial conditions.
func (g *GreedyAssigner) Assign(ctx context.Context, req Request) Result {
	log := logging.FromContext(ctx)

	result := Result{Peaks: make(map[nucleus.Nucleus][]Peak, len(req.Observations))}
	for _, nuc := range req.Observations.Nuclei() {
		observed := req.Observations.Sorted(nuc)
		candidates := g.predict(req, nuc)
		tolerance := req.ToleranceFor(nuc)
		result.Peaks[nuc] = g.assignNucleus(nuc, observed, candidates, tolerance)

		log.V(logging.DEBUG).Info("Assigned nucleus",
			"nucleus", string(nuc),
			"observations", len(observed),
			"candidates", len(candidates),
			"tolerance", tolerance)
	}
	return result
}

// predict generates the candidate list for one nucleus at the trial
// conditions. Buffer slice order and resonance list order fix the scan order.
func (g *GreedyAssigner) predict(req Request, nuc nucleus.Nucleus) []candidate {
	offset := req.Conditions.Offset(nuc)
	var out []candidate
	for _, b := range req.Buffers {
		sample, ok := req.Samples[b.SampleID]
		if !ok {
			continue
		}
		for _, res := range b.ChemicalShifts[string(nuc)] {
			predicted := equilibrium.PredictBufferShift(b, res, sample, req.Conditions) + offset
			out = append(out, candidate{
				bufferID:    b.ID,
				resonanceID: res.ID,
				predicted:   predicted,
			})
		}
	}
	return out
}

// assignNucleus consumes the sorted observations greedily against the
// candidate list. A candidate claimed by an earlier observation in this
// round is excluded for later ones, so the assignment is injective.
func (g *GreedyAssigner) assignNucleus(nuc nucleus.Nucleus, observed []float64, candidates []candidate, tolerance float64) []Peak {
	claimed := make([]bool, len(candidates))
	out := make([]Peak, 0, len(observed))

	for _, shift := range observed {
		peak := Peak{
			Nucleus:       nuc,
			ObservedShift: shift,
			Confidence:    ConfidenceNone,
		}

		best, nextBest := -1, -1
		bestDist, nextDist := math.Inf(1), math.Inf(1)
		for i, c := range candidates {
			if claimed[i] {
				continue
			}
			d := math.Abs(shift - c.predicted)
			// Strict < keeps the earliest-scanned candidate on exact ties.
			if d < bestDist {
				nextBest, nextDist = best, bestDist
				best, bestDist = i, d
			} else if d < nextDist {
				nextBest, nextDist = i, d
			}
		}

		if best < 0 {
			out = append(out, peak)
			continue
		}

		c := candidates[best]
		peak.BufferID = c.bufferID
		peak.ResonanceID = c.resonanceID
		peak.PredictedShift = c.predicted
		peak.Residual = shift - c.predicted

		if bestDist > tolerance {
			// Nearest candidate retained above for diagnostic display only.
			out = append(out, peak)
			continue
		}

		peak.Assigned = true
		claimed[best] = true
		switch {
		case bestDist < highDistanceFraction*tolerance && nextDist > highSeparationFraction*tolerance:
			peak.Confidence = ConfidenceHigh
		case bestDist < mediumDistanceFraction*tolerance:
			peak.Confidence = ConfidenceMedium
		default:
			peak.Confidence = ConfidenceLow
		}

		if peak.Confidence != ConfidenceHigh && nextBest >= 0 && nextDist <= tolerance {
			alt := candidates[nextBest]
			peak.Alternatives = append(peak.Alternatives, Alternative{
				BufferID:       alt.bufferID,
				ResonanceID:    alt.resonanceID,
				PredictedShift: alt.predicted,
				Distance:       nextDist,
			})
		}

		out = append(out, peak)
	}
	return out
}
