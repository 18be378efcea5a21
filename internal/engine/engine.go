/*
Copyright 2025 The phfit Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nmrkit/phfit/internal/assignment"
	"github.com/nmrkit/phfit/internal/config"
	"github.com/nmrkit/phfit/internal/equilibrium"
	"github.com/nmrkit/phfit/internal/fitter"
	"github.com/nmrkit/phfit/internal/logging"
	"github.com/nmrkit/phfit/internal/metrics"
	"github.com/nmrkit/phfit/internal/peaks"
	"github.com/nmrkit/phfit/internal/uncertainty"
	"github.com/nmrkit/phfit/internal/validation"
	"github.com/nmrkit/phfit/pkg/bufferdb"
)

// Engine runs pH-determination calculations against a loaded buffer
// database. It is stateless between calls and safe for concurrent use.
type Engine struct {
	cfg      config.EngineConfig
	log      logr.Logger
	metrics  *metrics.Metrics
	assigner assignment.Assigner
}

// New creates an engine. reg may be nil to disable metrics.
func New(cfg config.EngineConfig, log logr.Logger, reg prometheus.Registerer) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	assigner, err := assignment.NewAssigner(assignment.GreedyStrategy)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		log:      log,
		metrics:  metrics.New(reg),
		assigner: assigner,
	}, nil
}

// Request is one calculation request.
type Request struct {
	// DB is the loaded buffer database.
	DB *bufferdb.Database

	// BufferIDs optionally restricts the calculation to a subset of buffers.
	// Empty means all buffers, in database order.
	BufferIDs []string

	// Observations are the caller's observed shifts grouped by nucleus.
	Observations peaks.Set

	// Nominal supplies the fixed/nominal temperature, ionic strength, and
	// reference offsets. The pH component is ignored; Options.InitialPH
	// seeds the fit.
	Nominal equilibrium.Conditions

	// Options are the per-call fit options. Zero values inherit from the
	// engine configuration.
	Options fitter.Options
}

// ParameterEstimate is one fitted parameter with its standard error.
type ParameterEstimate struct {
	Value       float64 `json:"value"`
	Uncertainty float64 `json:"uncertainty"`
}

// FitResult is the complete outcome of one calculation.
type FitResult struct {
	Success     bool                         `json:"success"`
	Error       string                       `json:"error,omitempty"`
	Parameters  map[string]ParameterEstimate `json:"parameters,omitempty"`
	Conditions  *equilibrium.Conditions      `json:"conditions,omitempty"`
	Assignments assignment.Result            `json:"assignments"`
	Residuals   []float64                    `json:"residuals,omitempty"`
	Statistics  *fitter.Statistics           `json:"statistics,omitempty"`
	Convergence bool                         `json:"convergence"`
	Validation  *validation.Report           `json:"validation,omitempty"`
}

// Calculate runs the full pipeline for one request. Failures are reported in
// the result (Success=false with a classified error message and the partial
// assignment set); Calculate itself never panics on numeric trouble.
func (e *Engine) Calculate(ctx context.Context, req Request) *FitResult {
	start := time.Now()
	log := e.log.WithValues("observations", req.Observations.Total())
	ctx = logging.IntoContext(ctx, log)

	buffers := e.selectBuffers(req)
	samples := referencedSamples(req.DB, buffers)

	opts := e.applyConfig(req.Options)

	outcome, err := fitter.Fit(ctx, fitter.Input{
		Buffers:      buffers,
		Samples:      samples,
		Observations: req.Observations,
		Nominal:      req.Nominal,
		Options:      opts,
		Assigner:     e.assigner,
	})
	if err != nil {
		result := &FitResult{Success: false, Error: err.Error()}
		if outcome != nil {
			result.Assignments = outcome.Assignments
		}
		e.metrics.ObserveCalculation(classify(err), time.Since(start), 0, 0)
		log.Info("Calculation failed", "error", err.Error())
		return result
	}

	uncertainties := uncertainty.StandardErrors(
		outcome.ResidualFunc, outcome.Values, len(outcome.Residuals),
		outcome.Stats.ReducedChiSquared, log)

	parameters := make(map[string]ParameterEstimate, outcome.Vector.Len())
	for i, p := range outcome.Vector.Params() {
		parameters[p.Name] = ParameterEstimate{
			Value:       outcome.Values[i],
			Uncertainty: uncertainties[i],
		}
	}

	fitted := outcome.Conditions
	report := validation.Evaluate(validation.Input{
		Fitted:      fitted,
		Nominal:     req.Nominal,
		Stats:       outcome.Stats,
		Assignments: outcome.Assignments,
		Samples:     samples,
		Thresholds:  e.cfg.ValidationThresholds(),
	})

	assignedCount, _, _, _ := outcome.Assignments.Counts()
	e.metrics.ObserveCalculation(metrics.OutcomeSuccess, time.Since(start),
		assignedCount, outcome.Stats.Iterations)

	log.V(logging.DEBUG).Info("Calculation complete",
		"pH", fitted.PH,
		"rounds", outcome.Rounds,
		"iterations", outcome.Stats.Iterations,
		"rmsd", outcome.Stats.RMSD)

	return &FitResult{
		Success:     true,
		Parameters:  parameters,
		Conditions:  &fitted,
		Assignments: outcome.Assignments,
		Residuals:   outcome.Residuals,
		Statistics:  &outcome.Stats,
		Convergence: outcome.Converged,
		Validation:  report,
	}
}

// selectBuffers resolves the request's buffer subset, preserving database
// order for deterministic candidate scans.
func (e *Engine) selectBuffers(req Request) []bufferdb.Buffer {
	if req.DB == nil {
		return nil
	}
	if len(req.BufferIDs) == 0 {
		return req.DB.Buffers
	}
	wanted := make(map[string]bool, len(req.BufferIDs))
	for _, id := range req.BufferIDs {
		wanted[id] = true
	}
	var out []bufferdb.Buffer
	for _, b := range req.DB.Buffers {
		if wanted[b.ID] {
			out = append(out, b)
		}
	}
	return out
}

// applyConfig fills zero-valued options from the engine configuration.
func (e *Engine) applyConfig(opts fitter.Options) fitter.Options {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = e.cfg.MaxRounds
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = e.cfg.MaxIterations
	}
	if opts.ConvergencePH <= 0 {
		opts.ConvergencePH = e.cfg.ConvergencePH
	}
	if opts.JacobianStep <= 0 {
		opts.JacobianStep = e.cfg.JacobianStep
	}
	opts.Tolerances = e.cfg.MergeTolerances(opts.Tolerances)
	return opts
}

// referencedSamples collects the samples the given buffers reference.
func referencedSamples(db *bufferdb.Database, buffers []bufferdb.Buffer) map[string]bufferdb.Sample {
	out := make(map[string]bufferdb.Sample, len(buffers))
	if db == nil {
		return out
	}
	for _, b := range buffers {
		if s, ok := db.Sample(b.SampleID); ok {
			out[b.SampleID] = s
		}
	}
	return out
}

// classify maps a fit error onto a metrics outcome label.
func classify(err error) string {
	var under *fitter.UnderdeterminedError
	var conv *fitter.ConvergenceError
	switch {
	case errors.Is(err, fitter.ErrNoAssignablePeaks):
		return metrics.OutcomeNoPeaks
	case errors.As(err, &under):
		return metrics.OutcomeUnderdetermined
	case errors.As(err, &conv):
		return metrics.OutcomeSolverFailure
	default:
		return metrics.OutcomeSolverFailure
	}
}
