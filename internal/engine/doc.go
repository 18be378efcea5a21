// Package engine orchestrates the full pH-determination pipeline.
//
// The engine follows a pipeline pattern:
//
//	Peak Assignment → Guard → Least-Squares Fit → Reassignment
//	                     ↓ (on convergence)
//	Statistics → Uncertainty Propagation → Validation
//
// Each calculation is a pure function of its request: immutable buffer and
// sample data, the caller's observations, and the fit options. Nothing is
// cached between calls and concurrent calculations need no coordination.
//
// Example usage:
//
//	eng, err := engine.New(config.Default(), log, nil)
//	if err != nil {
//	    return err
//	}
//
//	result := eng.Calculate(ctx, engine.Request{
//	    DB:           db,
//	    Observations: peaks.Set{nucleus.Proton: {3.21, 7.54}},
//	    Nominal:      equilibrium.Conditions{TempK: 298.15, IonicM: 0.15},
//	})
//	if !result.Success {
//	    log.Info("calculation failed", "error", result.Error)
//	    return nil
//	}
//	log.Info("fitted", "pH", result.Parameters["pH"].Value)
//
// Error handling:
//
//   - No assignable peaks → structured failure, no optimizer call
//   - Negative degrees of freedom → structured failure with both counts,
//     no optimizer call
//   - Solver failure → wrapped failure, last assignment set preserved
//   - Degenerate covariance → zero uncertainties, fit still succeeds
//   - Implausible fitted values → validation warnings, fit still succeeds
package engine
