// Package fitter implements the bounded nonlinear least-squares estimation of
// sample conditions from assigned peaks.
//
// Key components:
//
//   - Vector: the ordered free-parameter vector (pH always first)
//   - Fit: the bounded fit/reassign fixed-point loop
//   - levenbergMarquardt: box-constrained damped least-squares solver
//
// Fit flow:
//
//  1. Seed conditions (caller pH or 7.0; fixed T/I/offsets)
//  2. Assign peaks at current conditions
//  3. Guard: fail before the solver on zero assigned peaks or negative
//     degrees of freedom
//  4. Optimize the free parameters within physical box constraints
//  5. Reassign all observations at the fitted conditions
//  6. Repeat until |ΔpH| falls below the convergence threshold or the round
//     limit is reached
//
// The solver is designed to be:
//   - Deterministic: same inputs produce same outputs
//   - Bounded: iteration and round limits are always enforced
//   - Fail-closed: guard errors carry the exact counts that tripped them
package fitter
