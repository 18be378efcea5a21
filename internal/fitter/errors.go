package fitter

import (
	"errors"
	"fmt"
)

// ErrNoAssignablePeaks indicates that no observation matched any buffer
// resonance within tolerance. This points at a data mismatch between the
// observations and the selected buffers; retrying will not help.
var ErrNoAssignablePeaks = errors.New("no peaks could be assigned to any buffer resonance")

// UnderdeterminedError reports a fit with fewer assigned observations than
// free parameters. It is raised before the solver is invoked; callers recover
// by reducing free parameters or supplying more observations.
type UnderdeterminedError struct {
	// Observations is the number of assigned peaks available to the fit.
	Observations int
	// Parameters is the number of free parameters requested.
	Parameters int
}

func (e *UnderdeterminedError) Error() string {
	return fmt.Sprintf("underdetermined fit: %d observations for %d free parameters (degrees of freedom %d)",
		e.Observations, e.Parameters, e.DegreesOfFreedom())
}

// DegreesOfFreedom returns the (negative) degrees of freedom that tripped
// the guard.
func (e *UnderdeterminedError) DegreesOfFreedom() int {
	return e.Observations - e.Parameters
}

// ConvergenceError wraps an internal solver failure. The last good assignment
// set is preserved on the partial outcome for diagnosis; the fit is not
// retried automatically.
type ConvergenceError struct {
	Err error
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("optimizer failed: %v", e.Err)
}

func (e *ConvergenceError) Unwrap() error { return e.Err }
