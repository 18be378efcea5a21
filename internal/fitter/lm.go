package fitter

import (
	"fmt"

	"github.com/go-logr/logr"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/nmrkit/phfit/internal/logging"
)

const (
	initialDamping   = 1e-3
	dampingIncrease  = 10.0
	dampingDecrease  = 0.1
	minDamping       = 1e-12
	maxDamping       = 1e12
	gradientTol      = 1e-10
	costTol          = 1e-12
	maxInnerAttempts = 12
)

// lmOutcome is the raw result of one solver run.
type lmOutcome struct {
	x          []float64
	iterations int
	sumSq      float64
}

// levenbergMarquardt minimizes the sum of squared residuals of f within the
// box [lo, hi] using damped least squares. f fills dst with the residual
// vector at x; nResiduals is its length. Steps leaving the box are projected
// back onto it.
func levenbergMarquardt(f func(dst, x []float64), x0, lo, hi []float64, nResiduals, maxIter int, jacobianStep float64, log logr.Logger) (lmOutcome, error) {
	n := len(x0)
	if n == 0 {
		return lmOutcome{}, fmt.Errorf("no free parameters")
	}
	if nResiduals == 0 {
		return lmOutcome{}, fmt.Errorf("no residuals")
	}

	x := make([]float64, n)
	copy(x, x0)
	clampToBox(x, lo, hi)

	r := make([]float64, nResiduals)
	f(r, x)
	sumSq := floats.Dot(r, r)

	jac := mat.NewDense(nResiduals, n, nil)
	settings := &fd.JacobianSettings{Formula: fd.Central, Step: jacobianStep}

	damping := initialDamping
	iterations := 0

	for iterations < maxIter {
		iterations++

		// Residual convention here is observed minus predicted, so the
		// Jacobian of the cost gradient carries a sign flip handled below.
		fd.Jacobian(jac, func(dst, p []float64) { f(dst, p) }, x, settings)

		// g = Jᵗ r
		g := make([]float64, n)
		rVec := mat.NewVecDense(nResiduals, r)
		gVec := mat.NewVecDense(n, g)
		gVec.MulVec(jac.T(), rVec)

		if mat.Norm(gVec, 1) < gradientTol {
			break
		}

		// A = JᵗJ as a symmetric matrix.
		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		a := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				a.SetSym(i, j, jtj.At(i, j))
			}
		}

		accepted := false
		for attempt := 0; attempt < maxInnerAttempts && damping <= maxDamping; attempt++ {
			// Marquardt scaling: damp each diagonal element relative to its
			// own magnitude; a zero diagonal falls back to absolute damping.
			damped := mat.NewSymDense(n, nil)
			damped.CopySym(a)
			for i := 0; i < n; i++ {
				d := a.At(i, i)
				if d == 0 {
					damped.SetSym(i, i, damping)
				} else {
					damped.SetSym(i, i, d*(1+damping))
				}
			}

			var chol mat.Cholesky
			if !chol.Factorize(damped) {
				damping *= dampingIncrease
				continue
			}
			delta := mat.NewVecDense(n, nil)
			if err := chol.SolveVecTo(delta, gVec); err != nil {
				damping *= dampingIncrease
				continue
			}

			// Gauss-Newton step is −A⁻¹Jᵗr, projected back onto the box.
			xNew := make([]float64, n)
			for i := 0; i < n; i++ {
				xNew[i] = x[i] - delta.AtVec(i)
			}
			clampToBox(xNew, lo, hi)

			rNew := make([]float64, nResiduals)
			f(rNew, xNew)
			newSumSq := floats.Dot(rNew, rNew)

			if newSumSq < sumSq {
				improvement := sumSq - newSumSq
				copy(x, xNew)
				copy(r, rNew)
				sumSq = newSumSq
				if damping *= dampingDecrease; damping < minDamping {
					damping = minDamping
				}
				accepted = true
				if improvement < costTol*(1+sumSq) {
					return lmOutcome{x: x, iterations: iterations, sumSq: sumSq}, nil
				}
				break
			}
			damping *= dampingIncrease
		}

		if !accepted {
			// No downhill step found at any damping; treat as converged to a
			// local minimum.
			break
		}

		log.V(logging.TRACE).Info("Solver iteration",
			"iteration", iterations, "sumSq", sumSq, "damping", damping)
	}

	return lmOutcome{x: x, iterations: iterations, sumSq: sumSq}, nil
}

func clampToBox(x, lo, hi []float64) {
	for i := range x {
		if x[i] < lo[i] {
			x[i] = lo[i]
		}
		if x[i] > hi[i] {
			x[i] = hi[i]
		}
	}
}
