// Package assignment matches observed chemical shifts to predicted
// buffer/resonance positions at trial conditions, with confidence scoring and
// ambiguity detection.
package assignment

import (
	"context"
	"fmt"

	"github.com/nmrkit/phfit/internal/equilibrium"
	"github.com/nmrkit/phfit/internal/nucleus"
	"github.com/nmrkit/phfit/internal/peaks"
	"github.com/nmrkit/phfit/pkg/bufferdb"
)

// Confidence grades how unambiguously an observation matched a prediction.
type Confidence string

const (
	ConfidenceNone   Confidence = "none"
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Confidence thresholds as fractions of the nucleus tolerance. A match is
// high-confidence only when it is both close and clearly separated from the
// runner-up.
const (
	highDistanceFraction   = 0.3
	mediumDistanceFraction = 0.6
	highSeparationFraction = 0.6
)

// Alternative records a near-tie candidate for an ambiguous assignment.
type Alternative struct {
	BufferID       string  `json:"bufferId"`
	ResonanceID    string  `json:"resonanceId"`
	PredictedShift float64 `json:"predictedShift"`
	Distance       float64 `json:"distance"`
}

// Peak is the assignment outcome for one observed shift. When Assigned is
// false the buffer/resonance fields still name the nearest out-of-tolerance
// candidate (if any) for diagnostic display.
type Peak struct {
	Nucleus        nucleus.Nucleus `json:"nucleus"`
	ObservedShift  float64         `json:"observedShift"`
	Assigned       bool            `json:"assigned"`
	BufferID       string          `json:"bufferId,omitempty"`
	ResonanceID    string          `json:"resonanceId,omitempty"`
	PredictedShift float64         `json:"predictedShift,omitempty"`
	Residual       float64         `json:"residual"`
	Confidence     Confidence      `json:"confidence"`
	Alternatives   []Alternative   `json:"alternatives,omitempty"`
}

// Request carries everything one assignment round needs.
type Request struct {
	// Buffers are the selected reference buffers, in database order. Slice
	// order is the candidate scan order and therefore the tie-break order.
	Buffers []bufferdb.Buffer

	// Samples resolves each buffer's SampleID to its reference conditions.
	Samples map[string]bufferdb.Sample

	// Observations are the raw shifts grouped by nucleus.
	Observations peaks.Set

	// Conditions are the trial conditions predictions are generated at.
	Conditions equilibrium.Conditions

	// Tolerances overrides the per-nucleus match tolerance in ppm. Nuclei
	// not present fall back to the nucleus defaults.
	Tolerances map[nucleus.Nucleus]float64
}

// ToleranceFor resolves the match tolerance for n.
func (r Request) ToleranceFor(n nucleus.Nucleus) float64 {
	if t, ok := r.Tolerances[n]; ok && t > 0 {
		return t
	}
	return nucleus.DefaultTolerance(n)
}

// Result is the outcome of one assignment round.
type Result struct {
	// Peaks holds the per-nucleus assignment outcomes, in ascending order of
	// observed shift.
	Peaks map[nucleus.Nucleus][]Peak `json:"peaks"`
}

// Assigned returns all assigned peaks across nuclei in deterministic
// (nucleus, ascending shift) order.
func (r Result) Assigned() []Peak {
	var out []Peak
	for _, n := range sortedNuclei(r.Peaks) {
		for _, p := range r.Peaks[n] {
			if p.Assigned {
				out = append(out, p)
			}
		}
	}
	return out
}

// All returns every peak across nuclei in deterministic order.
func (r Result) All() []Peak {
	var out []Peak
	for _, n := range sortedNuclei(r.Peaks) {
		out = append(out, r.Peaks[n]...)
	}
	return out
}

// Counts returns the number of assigned, unassigned, low-confidence and
// ambiguous peaks.
func (r Result) Counts() (assigned, unassigned, lowConfidence, ambiguous int) {
	for _, ps := range r.Peaks {
		for _, p := range ps {
			switch {
			case !p.Assigned:
				unassigned++
			default:
				assigned++
				if p.Confidence == ConfidenceLow {
					lowConfidence++
				}
			}
			if len(p.Alternatives) > 0 {
				ambiguous++
			}
		}
	}
	return
}

func sortedNuclei(m map[nucleus.Nucleus][]Peak) []nucleus.Nucleus {
	set := make(peaks.Set, len(m))
	for n := range m {
		set[n] = nil
	}
	return set.Nuclei()
}

// Assigner matches observations to predicted resonances at trial conditions.
// Assignment never fails: zero matches yield explicit unassigned records.
type Assigner interface {
	Assign(ctx context.Context, req Request) Result
}

// Strategy is an enumeration of the available assignment strategies.
type Strategy int

const (
	// GreedyStrategy consumes observations in ascending order, claiming the
	// nearest unclaimed prediction for each. Deterministic but not a
	// globally optimal matching.
	GreedyStrategy Strategy = iota
)

// NewAssigner is a factory that creates an Assigner for the given strategy.
func NewAssigner(strategy Strategy) (Assigner, error) {
	switch strategy {
	case GreedyStrategy:
		return &GreedyAssigner{}, nil
	default:
		return nil, fmt.Errorf("unsupported assignment strategy: %v", strategy)
	}
}
