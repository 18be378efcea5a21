// Package uncertainty propagates fit uncertainties through a numeric
// Jacobian: standard errors come from the diagonal of the regularized inverse
// of JᵗJ scaled by the reduced chi-squared.
//
// The package never fails a fit. Any numerical degeneracy (singular or
// near-singular JᵗJ, which is common when two parameters partially explain
// the same shift) degrades gracefully to an all-zero uncertainty vector.
package uncertainty

import (
	"math"

	"github.com/go-logr/logr"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultStep is the central-difference step for the Jacobian.
	DefaultStep = 1e-6

	// diagonalFloor replaces non-positive Cholesky pivots so a degenerate
	// JᵗJ still yields a usable (if conservative) inverse.
	diagonalFloor = 1e-10
)

// StandardErrors returns the standard error of each free parameter:
// sqrt of the diagonal of inv(JᵗJ)·reducedChiSq, clamped to zero where
// non-positive. residFn fills the nResiduals-length residual vector at the
// given parameter values; x holds the fitted values.
//
// Never returns negative or NaN entries; on any failure the whole vector is
// zero.
func StandardErrors(residFn func(dst, x []float64), x []float64, nResiduals int, reducedChiSq float64, log logr.Logger) []float64 {
	n := len(x)
	errs := make([]float64, n)

	cov := Covariance(residFn, x, nResiduals, reducedChiSq)
	if cov == nil {
		log.Info("Uncertainty estimation degenerate, reporting zero uncertainties")
		return errs
	}
	for i := 0; i < n; i++ {
		v := cov.At(i, i)
		if v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
			errs[i] = math.Sqrt(v)
		}
	}
	return errs
}

// Covariance returns the full parameter covariance matrix
// inv(JᵗJ)·reducedChiSq, or nil when the computation degenerates.
func Covariance(residFn func(dst, x []float64), x []float64, nResiduals int, reducedChiSq float64) *mat.SymDense {
	n := len(x)
	if n == 0 || nResiduals == 0 || residFn == nil {
		return nil
	}

	jac := mat.NewDense(nResiduals, n, nil)
	fd.Jacobian(jac, func(dst, p []float64) { residFn(dst, p) }, x,
		&fd.JacobianSettings{Formula: fd.Central, Step: DefaultStep})

	var jtj mat.Dense
	jtj.Mul(jac.T(), jac)
	a := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := jtj.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil
			}
			a.SetSym(i, j, v)
		}
	}

	inv := invertRegularized(a)
	if inv == nil {
		return nil
	}
	inv.ScaleSym(reducedChiSq, inv)
	return inv
}

// Correlation returns the parameter correlation matrix derived from the
// covariance, or nil when the covariance is unavailable. Diagonal entries
// are 1; entries involving a zero-variance parameter are 0.
func Correlation(residFn func(dst, x []float64), x []float64, nResiduals int, reducedChiSq float64) *mat.SymDense {
	cov := Covariance(residFn, x, nResiduals, reducedChiSq)
	if cov == nil {
		return nil
	}
	n := cov.SymmetricDim()
	corr := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			di, dj := cov.At(i, i), cov.At(j, j)
			if i == j {
				corr.SetSym(i, i, 1)
				continue
			}
			if di <= 0 || dj <= 0 {
				continue
			}
			corr.SetSym(i, j, cov.At(i, j)/math.Sqrt(di*dj))
		}
	}
	return corr
}

// invertRegularized inverts a via Cholesky. gonum's factorization is the
// primary path; when it rejects the matrix as non-positive-definite, a manual
// factorization with a floor on non-positive pivots is used instead so that
// strongly correlated parameter pairs still produce finite uncertainties.
func invertRegularized(a *mat.SymDense) *mat.SymDense {
	n := a.SymmetricDim()

	var chol mat.Cholesky
	if chol.Factorize(a) {
		inv := mat.NewSymDense(n, nil)
		if err := chol.InverseTo(inv); err == nil {
			return inv
		}
	}

	l, ok := flooredCholesky(a)
	if !ok {
		return nil
	}
	return invertFromLower(l)
}

// flooredCholesky computes the lower-triangular factor of a, replacing any
// non-positive diagonal pivot with a small floor before taking its square
// root rather than failing.
func flooredCholesky(a *mat.SymDense) (*mat.TriDense, bool) {
	n := a.SymmetricDim()
	l := mat.NewTriDense(n, mat.Lower, nil)
	for j := 0; j < n; j++ {
		d := a.At(j, j)
		for k := 0; k < j; k++ {
			d -= l.At(j, k) * l.At(j, k)
		}
		if d <= 0 {
			d = diagonalFloor
		}
		ljj := math.Sqrt(d)
		l.SetTri(j, j, ljj)
		for i := j + 1; i < n; i++ {
			s := a.At(i, j)
			for k := 0; k < j; k++ {
				s -= l.At(i, k) * l.At(j, k)
			}
			l.SetTri(i, j, s/ljj)
		}
	}
	return l, true
}

// invertFromLower computes (L·Lᵗ)⁻¹ by solving L·Lᵗ·X = I column by column.
func invertFromLower(l *mat.TriDense) *mat.SymDense {
	n, _ := l.Dims()
	inv := mat.NewSymDense(n, nil)
	y := make([]float64, n)
	z := make([]float64, n)
	for col := 0; col < n; col++ {
		// Forward solve L·y = e_col.
		for i := 0; i < n; i++ {
			v := 0.0
			if i == col {
				v = 1.0
			}
			for k := 0; k < i; k++ {
				v -= l.At(i, k) * y[k]
			}
			y[i] = v / l.At(i, i)
		}
		// Back solve Lᵗ·z = y.
		for i := n - 1; i >= 0; i-- {
			v := y[i]
			for k := i + 1; k < n; k++ {
				v -= l.At(k, i) * z[k]
			}
			z[i] = v / l.At(i, i)
		}
		for row := col; row < n; row++ {
			inv.SetSym(row, col, z[row])
		}
	}
	return inv
}
