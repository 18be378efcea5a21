// Package config provides engine configuration: iteration limits, convergence
// thresholds, and per-nucleus tolerance overrides.
//
// Precedence, highest first:
//
//  1. Explicit fit options supplied by the caller
//  2. Values from the config file / environment (viper)
//  3. Built-in defaults
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/nmrkit/phfit/internal/fitter"
	"github.com/nmrkit/phfit/internal/nucleus"
	"github.com/nmrkit/phfit/internal/validation"
)

// EnvPrefix is the environment-variable prefix for configuration overrides
// (e.g. PHFIT_MAXROUNDS).
const EnvPrefix = "PHFIT"

// EngineConfig holds the tunable knobs of the calculation engine.
type EngineConfig struct {
	// MaxRounds bounds the fit/reassign rounds.
	MaxRounds int `mapstructure:"maxRounds" yaml:"maxRounds"`

	// MaxIterations bounds the solver iterations per round.
	MaxIterations int `mapstructure:"maxIterations" yaml:"maxIterations"`

	// ConvergencePH is the |ΔpH| threshold ending the round loop.
	ConvergencePH float64 `mapstructure:"convergencePH" yaml:"convergencePH"`

	// JacobianStep is the central-difference step for solver Jacobians.
	JacobianStep float64 `mapstructure:"jacobianStep" yaml:"jacobianStep"`

	// ResidualZThreshold flags residual outliers in validation.
	ResidualZThreshold float64 `mapstructure:"residualZThreshold" yaml:"residualZThreshold"`

	// TemperatureDeviationK flags fitted temperature drift in validation.
	TemperatureDeviationK float64 `mapstructure:"temperatureDeviationK" yaml:"temperatureDeviationK"`

	// IonicDeviationM flags fitted ionic-strength drift in validation.
	IonicDeviationM float64 `mapstructure:"ionicDeviationM" yaml:"ionicDeviationM"`

	// Tolerances overrides per-nucleus assignment tolerances in ppm, keyed
	// by nucleus spelling (e.g. "1H"). Nuclei not listed use their built-in
	// defaults.
	Tolerances map[string]float64 `mapstructure:"tolerances" yaml:"tolerances,omitempty"`
}

// Default returns the built-in configuration.
func Default() EngineConfig {
	return EngineConfig{
		MaxRounds:             fitter.DefaultMaxRounds,
		MaxIterations:         fitter.DefaultMaxIterations,
		ConvergencePH:         fitter.DefaultConvergencePH,
		JacobianStep:          fitter.DefaultJacobianStep,
		ResidualZThreshold:    validation.DefaultResidualZThreshold,
		TemperatureDeviationK: validation.DefaultTemperatureDeviationK,
		IonicDeviationM:       validation.DefaultIonicDeviationM,
	}
}

// Load reads configuration from the given file (optional; empty path means
// defaults plus environment only) and the PHFIT_* environment.
func Load(path string) (EngineConfig, error) {
	cfg := Default()

	v := viper.New()
	v.SetDefault("maxRounds", cfg.MaxRounds)
	v.SetDefault("maxIterations", cfg.MaxIterations)
	v.SetDefault("convergencePH", cfg.ConvergencePH)
	v.SetDefault("jacobianStep", cfg.JacobianStep)
	v.SetDefault("residualZThreshold", cfg.ResidualZThreshold)
	v.SetDefault("temperatureDeviationK", cfg.TemperatureDeviationK)
	v.SetDefault("ionicDeviationM", cfg.IonicDeviationM)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks for invalid configuration values.
func (c *EngineConfig) Validate() error {
	if c.MaxRounds <= 0 {
		return fmt.Errorf("maxRounds must be > 0, got %d", c.MaxRounds)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("maxIterations must be > 0, got %d", c.MaxIterations)
	}
	if c.ConvergencePH <= 0 {
		return fmt.Errorf("convergencePH must be > 0, got %g", c.ConvergencePH)
	}
	if c.JacobianStep <= 0 {
		return fmt.Errorf("jacobianStep must be > 0, got %g", c.JacobianStep)
	}
	if c.ResidualZThreshold <= 0 {
		return fmt.Errorf("residualZThreshold must be > 0, got %g", c.ResidualZThreshold)
	}
	for key, tol := range c.Tolerances {
		if _, ok := nucleus.Parse(key); !ok {
			return fmt.Errorf("tolerances: unrecognized nucleus %q", key)
		}
		if tol <= 0 {
			return fmt.Errorf("tolerances[%s] must be > 0, got %g", key, tol)
		}
	}
	return nil
}

// ToleranceMap resolves the configured tolerance overrides to typed nucleus
// keys. Unparseable keys were already rejected by Validate.
func (c *EngineConfig) ToleranceMap() map[nucleus.Nucleus]float64 {
	if len(c.Tolerances) == 0 {
		return nil
	}
	out := make(map[nucleus.Nucleus]float64, len(c.Tolerances))
	for key, tol := range c.Tolerances {
		if n, ok := nucleus.Parse(key); ok {
			out[n] = tol
		}
	}
	return out
}

// MergeTolerances layers explicit per-call overrides on top of the configured
// ones. The explicit map wins per nucleus.
func (c *EngineConfig) MergeTolerances(explicit map[nucleus.Nucleus]float64) map[nucleus.Nucleus]float64 {
	merged := c.ToleranceMap()
	if len(explicit) == 0 {
		return merged
	}
	if merged == nil {
		merged = make(map[nucleus.Nucleus]float64, len(explicit))
	}
	for n, tol := range explicit {
		merged[n] = tol
	}
	return merged
}

// ValidationThresholds maps the configuration onto validation thresholds.
func (c *EngineConfig) ValidationThresholds() validation.Thresholds {
	return validation.Thresholds{
		ResidualZ:             c.ResidualZThreshold,
		TemperatureDeviationK: c.TemperatureDeviationK,
		IonicDeviationM:       c.IonicDeviationM,
	}
}
