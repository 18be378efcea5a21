package fitter

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmrkit/phfit/internal/assignment"
	"github.com/nmrkit/phfit/internal/equilibrium"
	"github.com/nmrkit/phfit/internal/nucleus"
	"github.com/nmrkit/phfit/internal/peaks"
	"github.com/nmrkit/phfit/pkg/bufferdb"
)

// imidazoleLike is a single-pKa buffer with one proton resonance titrating
// from 3.5 ppm (protonated) to 3.0 ppm (deprotonated) around pKa 6.8.
func imidazoleLike() ([]bufferdb.Buffer, map[string]bufferdb.Sample) {
	buffers := []bufferdb.Buffer{{
		ID:       "imi",
		SampleID: "s1",
		PKas:     []bufferdb.PKaParams{{Value: 6.8, IonicModel: bufferdb.IonicModelNone}},
		ChemicalShifts: map[string][]bufferdb.Resonance{
			"1H": {{
				ID: "h2",
				LimitingShifts: []bufferdb.LimitingShift{
					{State: 0, Shift: 3.5},
					{State: 1, Shift: 3.0},
				},
			}},
		},
	}}
	samples := map[string]bufferdb.Sample{
		"s1": {ID: "s1", ReferenceTemperatureK: 298.15},
	}
	return buffers, samples
}

func greedy(t *testing.T) assignment.Assigner {
	t.Helper()
	a, err := assignment.NewAssigner(assignment.GreedyStrategy)
	require.NoError(t, err)
	return a
}

func TestFit_SinglePeakRecoversPH(t *testing.T) {
	buffers, samples := imidazoleLike()

	// An observed shift of 3.2 ppm means 40% protonated, which by
	// Henderson-Hasselbalch puts the pH at 6.8 + log10(0.6/0.4).
	wantPH := 6.8 + math.Log10(0.6/0.4)

	out, err := Fit(context.Background(), Input{
		Buffers:      buffers,
		Samples:      samples,
		Observations: peaks.Set{nucleus.Proton: {3.2}},
		Nominal:      equilibrium.Conditions{TempK: 298.15},
		Assigner:     greedy(t),
	})
	require.NoError(t, err)

	assert.InDelta(t, wantPH, out.Conditions.PH, 1e-3)
	assert.True(t, out.Converged)
	assert.Equal(t, 1, out.Rounds)
	require.Len(t, out.Residuals, 1)
	assert.InDelta(t, 0, out.Residuals[0], 1e-3)

	// One observation against one free parameter: zero degrees of freedom is
	// allowed, and reduced chi-squared falls back to chi-squared.
	assert.Equal(t, 1, out.Stats.NObservations)
	assert.Equal(t, 1, out.Stats.NParameters)
	assert.Equal(t, 0, out.Stats.DegreesOfFreedom)
	assert.Equal(t, out.Stats.ChiSquared, out.Stats.ReducedChiSquared)
	require.NotNil(t, out.ResidualFunc)
}

func TestFit_NoAssignablePeaks(t *testing.T) {
	buffers, samples := imidazoleLike()

	out, err := Fit(context.Background(), Input{
		Buffers:      buffers,
		Samples:      samples,
		Observations: peaks.Set{nucleus.Proton: {9.9}},
		Nominal:      equilibrium.Conditions{TempK: 298.15},
		Assigner:     greedy(t),
	})
	require.ErrorIs(t, err, ErrNoAssignablePeaks)

	// The partial outcome keeps the assignment round for diagnostics.
	require.NotNil(t, out)
	all := out.Assignments.All()
	require.Len(t, all, 1)
	assert.False(t, all[0].Assigned)
}

func TestFit_Underdetermined(t *testing.T) {
	buffers, samples := imidazoleLike()

	_, err := Fit(context.Background(), Input{
		Buffers:      buffers,
		Samples:      samples,
		Observations: peaks.Set{nucleus.Proton: {3.2}},
		Nominal:      equilibrium.Conditions{TempK: 298.15, IonicM: 0.1},
		Options: Options{
			RefineTemperature:   true,
			RefineIonicStrength: true,
		},
		Assigner: greedy(t),
	})

	var underdetermined *UnderdeterminedError
	require.ErrorAs(t, err, &underdetermined)
	assert.Equal(t, 1, underdetermined.Observations)
	assert.Equal(t, 3, underdetermined.Parameters)
	assert.Equal(t, -2, underdetermined.DegreesOfFreedom())
}

func TestNewVector_OrderAndBounds(t *testing.T) {
	opts := Options{
		RefineTemperature:   true,
		RefineIonicStrength: true,
		RefineReferences: map[nucleus.Nucleus]bool{
			nucleus.Proton:       true,
			nucleus.Phosphorus31: true,
			nucleus.Fluorine19:   true, // not observed, must be excluded
		},
	}
	seed := equilibrium.Conditions{PH: 6.5, TempK: 300, IonicM: 0.2}

	vec := NewVector(opts, seed, []nucleus.Nucleus{nucleus.Proton, nucleus.Phosphorus31})
	require.Equal(t, 5, vec.Len())

	names := make([]string, 0, vec.Len())
	for _, p := range vec.Params() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"pH", "temperature", "ionicStrength", "refOffset:1H", "refOffset:31P"}, names)

	assert.Equal(t, 0, vec.IndexOf("pH"))
	assert.Equal(t, -1, vec.IndexOf("refOffset:19F"))

	assert.Equal(t, []float64{6.5, 300, 0.2, 0, 0}, vec.Initial())

	lo, hi := vec.Bounds()
	assert.Equal(t, []float64{PHMin, TempMinK, IonicMin, OffsetMin, OffsetMin}, lo)
	assert.Equal(t, []float64{PHMax, TempMaxK, IonicMax, OffsetMax, OffsetMax}, hi)
}

func TestVector_ConditionsOverridesOnlyFreeComponents(t *testing.T) {
	opts := Options{RefineReferences: map[nucleus.Nucleus]bool{nucleus.Proton: true}}
	base := equilibrium.Conditions{TempK: 310, IonicM: 0.15}

	vec := NewVector(opts, equilibrium.Conditions{PH: 7}, []nucleus.Nucleus{nucleus.Proton})
	cond := vec.Conditions([]float64{5.5, 0.3}, base)

	assert.Equal(t, 5.5, cond.PH)
	assert.Equal(t, 310.0, cond.TempK)
	assert.Equal(t, 0.15, cond.IonicM)
	assert.Equal(t, 0.3, cond.Offset(nucleus.Proton))
	assert.Equal(t, 0.0, cond.Offset(nucleus.Carbon13))
}

func TestOptions_withDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, DefaultMaxIterations, opts.MaxIterations)
	assert.Equal(t, DefaultMaxRounds, opts.MaxRounds)
	assert.Equal(t, DefaultInitialPH, opts.InitialPH)
	assert.Equal(t, DefaultConvergencePH, opts.ConvergencePH)
	assert.Equal(t, DefaultJacobianStep, opts.JacobianStep)

	custom := Options{MaxIterations: 5, MaxRounds: 1, InitialPH: 4.2, ConvergencePH: 0.01}.withDefaults()
	assert.Equal(t, 5, custom.MaxIterations)
	assert.Equal(t, 1, custom.MaxRounds)
	assert.Equal(t, 4.2, custom.InitialPH)
	assert.Equal(t, 0.01, custom.ConvergencePH)
}

func TestLevenbergMarquardt_QuadraticMinimum(t *testing.T) {
	// r0 = x0 - 3, r1 = 2*(x1 + 1): minimum at (3, -1).
	f := func(dst, x []float64) {
		dst[0] = x[0] - 3
		dst[1] = 2 * (x[1] + 1)
	}

	out, err := levenbergMarquardt(f, []float64{0, 0}, []float64{-10, -10}, []float64{10, 10}, 2, 100, DefaultJacobianStep, logr.Discard())
	require.NoError(t, err)
	assert.InDelta(t, 3, out.x[0], 1e-6)
	assert.InDelta(t, -1, out.x[1], 1e-6)
	assert.Less(t, out.sumSq, 1e-10)
}

func TestLevenbergMarquardt_RespectsBox(t *testing.T) {
	// Unconstrained minimum at x = 5, box caps it at 2.
	f := func(dst, x []float64) { dst[0] = x[0] - 5 }

	out, err := levenbergMarquardt(f, []float64{0}, []float64{0}, []float64{2}, 1, 100, DefaultJacobianStep, logr.Discard())
	require.NoError(t, err)
	assert.InDelta(t, 2, out.x[0], 1e-9)
}

func TestLevenbergMarquardt_InputGuards(t *testing.T) {
	_, err := levenbergMarquardt(func(dst, x []float64) {}, nil, nil, nil, 1, 100, DefaultJacobianStep, logr.Discard())
	assert.Error(t, err)

	_, err = levenbergMarquardt(func(dst, x []float64) {}, []float64{0}, []float64{0}, []float64{1}, 0, 100, DefaultJacobianStep, logr.Discard())
	assert.Error(t, err)
}

func TestRunSolver_RecoversPanic(t *testing.T) {
	f := func(dst, x []float64) { panic("numeric blow-up") }

	_, err := runSolver(f, []float64{0}, []float64{-1}, []float64{1}, 1, 10, DefaultJacobianStep, logr.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "solver panic")
}

func TestComputeStatistics(t *testing.T) {
	stats := computeStatistics([]float64{0.3, -0.4}, 1, 7)
	assert.Equal(t, 2, stats.NObservations)
	assert.Equal(t, 1, stats.NParameters)
	assert.Equal(t, 1, stats.DegreesOfFreedom)
	assert.InDelta(t, 0.25, stats.SumSquares, 1e-12)
	assert.InDelta(t, math.Sqrt(0.125), stats.RMSD, 1e-12)
	assert.InDelta(t, 0.25, stats.ChiSquared, 1e-12)
	assert.InDelta(t, 0.25, stats.ReducedChiSquared, 1e-12)
	assert.Equal(t, 7, stats.Iterations)

	zeroDoF := computeStatistics([]float64{0.5}, 1, 1)
	assert.Equal(t, 0, zeroDoF.DegreesOfFreedom)
	assert.Equal(t, zeroDoF.ChiSquared, zeroDoF.ReducedChiSquared)

	empty := computeStatistics(nil, 0, 0)
	assert.Zero(t, empty.RMSD)
}

func TestClampToBox(t *testing.T) {
	x := []float64{-5, 0.5, 20}
	clampToBox(x, []float64{0, 0, 0}, []float64{14, 1, 14})
	assert.Equal(t, []float64{0, 0.5, 14}, x)
}

func TestFit_ConvergenceErrorWrapsSolverFailure(t *testing.T) {
	convErr := &ConvergenceError{Err: errors.New("boom")}
	assert.Contains(t, convErr.Error(), "boom")
	assert.Equal(t, "boom", errors.Unwrap(convErr).Error())
}
