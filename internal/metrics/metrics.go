// Package metrics instruments calculation requests with Prometheus
// collectors. Metrics are optional: a nil *Metrics disables all recording, so
// library callers that do not run a scrape endpoint pay nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for the calculations counter.
const (
	OutcomeSuccess         = "success"
	OutcomeNoPeaks         = "no_assignable_peaks"
	OutcomeUnderdetermined = "underdetermined"
	OutcomeSolverFailure   = "solver_failure"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	calculations  *prometheus.CounterVec
	duration      prometheus.Histogram
	assignedPeaks prometheus.Histogram
	fitIterations prometheus.Histogram
}

// New creates and registers the engine collectors on reg. A nil registerer
// returns nil, which disables metrics entirely.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phfit",
			Name:      "calculations_total",
			Help:      "Total calculation requests by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "phfit",
			Name:      "calculation_duration_seconds",
			Help:      "Wall time of calculation requests.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		assignedPeaks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "phfit",
			Name:      "assigned_peaks",
			Help:      "Assigned peak count per calculation.",
			Buckets:   prometheus.LinearBuckets(0, 2, 12),
		}),
		fitIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "phfit",
			Name:      "fit_iterations",
			Help:      "Solver iterations of the final fit round.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
	}
	reg.MustRegister(m.calculations, m.duration, m.assignedPeaks, m.fitIterations)
	return m
}

// ObserveCalculation records one calculation request. Safe on a nil receiver.
func (m *Metrics) ObserveCalculation(outcome string, elapsed time.Duration, assignedPeaks, iterations int) {
	if m == nil {
		return
	}
	m.calculations.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
	m.assignedPeaks.Observe(float64(assignedPeaks))
	m.fitIterations.Observe(float64(iterations))
}
