// Package logging provides the logr-based logging setup used throughout the
// engine. All packages log through a logr.Logger backed by zap; verbosity
// levels follow the usual logr convention where higher V values are noisier.
package logging

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels for logger.V(...) calls.
const (
	// DEBUG is for per-stage diagnostic output (assignment candidates,
	// solver progress).
	DEBUG = 1
	// TRACE is for per-residual numeric output. Very noisy.
	TRACE = 2
)

// NewLogger returns a zap-backed logr.Logger. In development mode the output
// is human-readable console encoding at debug level; otherwise JSON at info.
func NewLogger(development bool) logr.Logger {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-TRACE))
	} else {
		cfg = zap.NewProductionConfig()
	}
	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}

// NewTestLogger returns a development logger suitable for test suites. It is
// safe to call from multiple test packages.
func NewTestLogger() logr.Logger {
	return NewLogger(true)
}

// IntoContext stores the logger in the context.
func IntoContext(ctx context.Context, log logr.Logger) context.Context {
	return logr.NewContext(ctx, log)
}

// FromContext retrieves the logger stored by IntoContext, or a discarding
// logger when none is present.
func FromContext(ctx context.Context) logr.Logger {
	return logr.FromContextOrDiscard(ctx)
}
