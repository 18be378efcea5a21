package fitter

import (
	"context"
	"fmt"
	"math"

	"github.com/go-logr/logr"

	"github.com/nmrkit/phfit/internal/assignment"
	"github.com/nmrkit/phfit/internal/equilibrium"
	"github.com/nmrkit/phfit/internal/logging"
	"github.com/nmrkit/phfit/internal/nucleus"
	"github.com/nmrkit/phfit/internal/peaks"
	"github.com/nmrkit/phfit/pkg/bufferdb"
)

// Input carries everything one fit needs. All fields are read-only to the
// fitter; repeated calls with the same input produce the same outcome.
type Input struct {
	Buffers      []bufferdb.Buffer
	Samples      map[string]bufferdb.Sample
	Observations peaks.Set

	// Nominal supplies the fixed condition components (and the seeds for any
	// component that is refined). Nominal.PH is ignored; Options.InitialPH
	// seeds the pH.
	Nominal equilibrium.Conditions

	Options  Options
	Assigner assignment.Assigner
}

// Statistics summarizes the quality of a completed fit.
type Statistics struct {
	NObservations     int     `json:"nObservations"`
	NParameters       int     `json:"nParameters"`
	DegreesOfFreedom  int     `json:"degreesOfFreedom"`
	SumSquares        float64 `json:"sumSquares"`
	RMSD              float64 `json:"rmsd"`
	ChiSquared        float64 `json:"chiSquared"`
	ReducedChiSquared float64 `json:"reducedChiSquared"`
	Iterations        int     `json:"iterations"`
}

// Outcome is the result of a completed (or partially completed) fit. On a
// guard or solver failure only Assignments is populated, preserving the last
// assignment set for diagnostics.
type Outcome struct {
	Vector      *Vector
	Values      []float64
	Conditions  equilibrium.Conditions
	Assignments assignment.Result
	Residuals   []float64
	Stats       Statistics
	Rounds      int
	Converged   bool

	// ResidualFunc evaluates the residual vector of the final assigned set at
	// arbitrary parameter values; the uncertainty engine differentiates it.
	ResidualFunc func(dst, x []float64)
}

// fitPeak is one assigned observation resolved to its database records.
type fitPeak struct {
	buffer    bufferdb.Buffer
	resonance bufferdb.Resonance
	sample    bufferdb.Sample
	nucleus   nucleus.Nucleus
	observed  float64
}

// Fit runs the bounded fit/reassign fixed-point loop. Guard failures
// (ErrNoAssignablePeaks, UnderdeterminedError) are detected and returned
// before the solver is ever invoked; the partial outcome carries the
// assignment set that tripped the guard.
func Fit(ctx context.Context, in Input) (*Outcome, error) {
	log := logging.FromContext(ctx)
	opts := in.Options.withDefaults()

	cond := in.Nominal
	cond.PH = opts.InitialPH

	var (
		vec        *Vector
		values     []float64
		iterations int
		lastAssign assignment.Result
		rounds     int
	)

	for rounds = 1; rounds <= opts.MaxRounds; rounds++ {
		seedPH := cond.PH

		assigned := in.Assigner.Assign(ctx, assignment.Request{
			Buffers:      in.Buffers,
			Samples:      in.Samples,
			Observations: in.Observations,
			Conditions:   cond,
			Tolerances:   opts.Tolerances,
		})
		lastAssign = assigned

		fitPeaks := resolvePeaks(in, assigned.Assigned())
		if len(fitPeaks) == 0 {
			return &Outcome{Assignments: assigned, Rounds: rounds}, ErrNoAssignablePeaks
		}

		vec = NewVector(opts, cond, observedNuclei(fitPeaks))
		if dof := len(fitPeaks) - vec.Len(); dof < 0 {
			return &Outcome{Assignments: assigned, Rounds: rounds}, &UnderdeterminedError{
				Observations: len(fitPeaks),
				Parameters:   vec.Len(),
			}
		}

		residFn := residualFunc(fitPeaks, vec, in.Nominal)
		lo, hi := vec.Bounds()

		lm, err := runSolver(residFn, vec.Initial(), lo, hi, len(fitPeaks), opts.MaxIterations, opts.JacobianStep, log)
		if err != nil {
			return &Outcome{Assignments: assigned, Rounds: rounds}, &ConvergenceError{Err: err}
		}
		values = lm.x
		iterations = lm.iterations

		cond = vec.Conditions(values, in.Nominal)

		// Reassign over all original observations at the fitted conditions.
		lastAssign = in.Assigner.Assign(ctx, assignment.Request{
			Buffers:      in.Buffers,
			Samples:      in.Samples,
			Observations: in.Observations,
			Conditions:   cond,
			Tolerances:   opts.Tolerances,
		})

		log.V(logging.DEBUG).Info("Fit round complete",
			"round", rounds,
			"seedPH", seedPH,
			"fittedPH", cond.PH,
			"iterations", iterations)

		if math.Abs(cond.PH-seedPH) < opts.ConvergencePH {
			break
		}
	}
	if rounds > opts.MaxRounds {
		rounds = opts.MaxRounds
	}

	assignedFinal := lastAssign.Assigned()
	finalPeaks := resolvePeaks(in, assignedFinal)
	residuals := make([]float64, len(assignedFinal))
	for i, p := range assignedFinal {
		residuals[i] = p.Residual
	}

	stats := computeStatistics(residuals, vec.Len(), iterations)
	outcome := &Outcome{
		Vector:      vec,
		Values:      values,
		Conditions:  cond,
		Assignments: lastAssign,
		Residuals:   residuals,
		Stats:       stats,
		Rounds:      rounds,
		Converged:   iterations < opts.MaxIterations,
	}
	if len(finalPeaks) > 0 {
		outcome.ResidualFunc = residualFunc(finalPeaks, vec, in.Nominal)
	}
	return outcome, nil
}

// runSolver invokes the solver, converting any internal panic into an error
// so a numeric blow-up cannot take down the calculation.
func runSolver(f func(dst, x []float64), x0, lo, hi []float64, nResiduals, maxIter int, jacobianStep float64, log logr.Logger) (out lmOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("solver panic: %v", r)
		}
	}()
	return levenbergMarquardt(f, x0, lo, hi, nResiduals, maxIter, jacobianStep, log)
}

// residualFunc builds the residual vector function over the assigned peaks:
// dst[i] = observed_i − (predicted_i(conditions) + offset(nucleus_i)).
func residualFunc(fitPeaks []fitPeak, vec *Vector, nominal equilibrium.Conditions) func(dst, x []float64) {
	return func(dst, x []float64) {
		cond := vec.Conditions(x, nominal)
		for i, p := range fitPeaks {
			predicted := equilibrium.PredictBufferShift(p.buffer, p.resonance, p.sample, cond) +
				cond.Offset(p.nucleus)
			dst[i] = p.observed - predicted
		}
	}
}

// resolvePeaks maps assigned peaks back to their database records. Peaks
// whose buffer or resonance cannot be resolved are skipped; they cannot
// contribute a residual.
func resolvePeaks(in Input, assigned []assignment.Peak) []fitPeak {
	buffersByID := make(map[string]bufferdb.Buffer, len(in.Buffers))
	for _, b := range in.Buffers {
		buffersByID[b.ID] = b
	}

	out := make([]fitPeak, 0, len(assigned))
	for _, p := range assigned {
		b, ok := buffersByID[p.BufferID]
		if !ok {
			continue
		}
		sample, ok := in.Samples[b.SampleID]
		if !ok {
			continue
		}
		var res bufferdb.Resonance
		found := false
		for _, r := range b.ChemicalShifts[string(p.Nucleus)] {
			if r.ID == p.ResonanceID {
				res = r
				found = true
				break
			}
		}
		if !found {
			continue
		}
		out = append(out, fitPeak{
			buffer:    b,
			resonance: res,
			sample:    sample,
			nucleus:   p.Nucleus,
			observed:  p.ObservedShift,
		})
	}
	return out
}

func observedNuclei(fitPeaks []fitPeak) []nucleus.Nucleus {
	seen := make(map[nucleus.Nucleus]bool)
	var out []nucleus.Nucleus
	for _, n := range nucleus.All() {
		for _, p := range fitPeaks {
			if p.nucleus == n && !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}

// computeStatistics derives the post-convergence fit statistics from the
// final residual set.
func computeStatistics(residuals []float64, nParams, iterations int) Statistics {
	nObs := len(residuals)
	var sumSq float64
	for _, r := range residuals {
		sumSq += r * r
	}

	stats := Statistics{
		NObservations:    nObs,
		NParameters:      nParams,
		DegreesOfFreedom: nObs - nParams,
		SumSquares:       sumSq,
		ChiSquared:       sumSq,
		Iterations:       iterations,
	}
	if nObs > 0 {
		stats.RMSD = math.Sqrt(sumSq / float64(nObs))
	}
	if stats.DegreesOfFreedom > 0 {
		stats.ReducedChiSquared = sumSq / float64(stats.DegreesOfFreedom)
	} else {
		stats.ReducedChiSquared = sumSq
	}
	return stats
}
