package fitter

import (
	"github.com/nmrkit/phfit/internal/equilibrium"
	"github.com/nmrkit/phfit/internal/nucleus"
)

// Physical box constraints on the free parameters.
const (
	PHMin = 0.0
	PHMax = 14.0
	// TempMinK and TempMaxK bracket liquid water at ambient pressure.
	TempMinK = 273.0
	TempMaxK = 373.0
	IonicMin = 0.0
	IonicMax = 1.0
	// OffsetMin and OffsetMax bound per-nucleus reference offsets in ppm.
	OffsetMin = -10.0
	OffsetMax = 10.0
)

// Role describes what a free parameter controls.
type Role int

const (
	RolePH Role = iota
	RoleTemperature
	RoleIonicStrength
	RoleReferenceOffset
)

// Parameter is one free fit parameter with its bounds and seed value.
type Parameter struct {
	Name    string
	Role    Role
	Nucleus nucleus.Nucleus // set only for RoleReferenceOffset
	Initial float64
	Min     float64
	Max     float64
}

// Vector is an immutable, ordered free-parameter list with a stable
// name-to-index mapping. pH is always present at index 0. It is constructed
// once per fit round; no state is shared across calls.
type Vector struct {
	params []Parameter
	index  map[string]int
}

// Options control which parameters are refined and how the fit iterates.
type Options struct {
	// RefineTemperature frees the temperature parameter.
	RefineTemperature bool

	// RefineIonicStrength frees the ionic-strength parameter.
	RefineIonicStrength bool

	// RefineReferences frees one reference-offset parameter per flagged
	// nucleus that has observations.
	RefineReferences map[nucleus.Nucleus]bool

	// MaxIterations bounds the solver iterations per round. Default 100.
	MaxIterations int

	// MaxRounds bounds the fit/reassign rounds. Default 3.
	MaxRounds int

	// InitialPH seeds the first round. Default 7.0.
	InitialPH float64

	// ConvergencePH is the |ΔpH| threshold that ends the round loop.
	// Default 0.1.
	ConvergencePH float64

	// JacobianStep is the central-difference step for solver Jacobians.
	// Default 1e-6.
	JacobianStep float64

	// Tolerances overrides per-nucleus assignment tolerances in ppm.
	Tolerances map[nucleus.Nucleus]float64
}

// Defaults for Options fields left at zero.
const (
	DefaultMaxIterations = 100
	DefaultMaxRounds     = 3
	DefaultInitialPH     = 7.0
	DefaultConvergencePH = 0.1
	DefaultJacobianStep  = 1e-6
)

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.MaxRounds <= 0 {
		o.MaxRounds = DefaultMaxRounds
	}
	if o.InitialPH == 0 {
		o.InitialPH = DefaultInitialPH
	}
	if o.ConvergencePH <= 0 {
		o.ConvergencePH = DefaultConvergencePH
	}
	if o.JacobianStep <= 0 {
		o.JacobianStep = DefaultJacobianStep
	}
	return o
}

// NewVector builds the free-parameter vector for the given options. pH is
// always included first, then temperature, ionic strength, and one reference
// offset per refined nucleus in the fixed nucleus order. Seeds come from the
// provided conditions; an offset nucleus is included only when it appears in
// observedNuclei, since an offset without observations cannot be constrained.
func NewVector(opts Options, seed equilibrium.Conditions, observedNuclei []nucleus.Nucleus) *Vector {
	observed := make(map[nucleus.Nucleus]bool, len(observedNuclei))
	for _, n := range observedNuclei {
		observed[n] = true
	}

	params := []Parameter{{
		Name:    "pH",
		Role:    RolePH,
		Initial: seed.PH,
		Min:     PHMin,
		Max:     PHMax,
	}}
	if opts.RefineTemperature {
		params = append(params, Parameter{
			Name:    "temperature",
			Role:    RoleTemperature,
			Initial: seed.TempK,
			Min:     TempMinK,
			Max:     TempMaxK,
		})
	}
	if opts.RefineIonicStrength {
		params = append(params, Parameter{
			Name:    "ionicStrength",
			Role:    RoleIonicStrength,
			Initial: seed.IonicM,
			Min:     IonicMin,
			Max:     IonicMax,
		})
	}
	for _, n := range nucleus.All() {
		if opts.RefineReferences[n] && observed[n] {
			params = append(params, Parameter{
				Name:    "refOffset:" + string(n),
				Role:    RoleReferenceOffset,
				Nucleus: n,
				Initial: seed.Offset(n),
				Min:     OffsetMin,
				Max:     OffsetMax,
			})
		}
	}

	index := make(map[string]int, len(params))
	for i, p := range params {
		index[p.Name] = i
	}
	return &Vector{params: params, index: index}
}

// Len returns the number of free parameters.
func (v *Vector) Len() int { return len(v.params) }

// Params returns the ordered parameter list.
func (v *Vector) Params() []Parameter { return v.params }

// IndexOf returns the index of the named parameter, or -1.
func (v *Vector) IndexOf(name string) int {
	if i, ok := v.index[name]; ok {
		return i
	}
	return -1
}

// Initial returns the seed values in parameter order.
func (v *Vector) Initial() []float64 {
	out := make([]float64, len(v.params))
	for i, p := range v.params {
		out[i] = p.Initial
	}
	return out
}

// Bounds returns the lower and upper box constraints in parameter order.
func (v *Vector) Bounds() (lo, hi []float64) {
	lo = make([]float64, len(v.params))
	hi = make([]float64, len(v.params))
	for i, p := range v.params {
		lo[i] = p.Min
		hi[i] = p.Max
	}
	return lo, hi
}

// Conditions maps parameter values onto the base conditions: free parameters
// override their base component, fixed components pass through unchanged.
func (v *Vector) Conditions(values []float64, base equilibrium.Conditions) equilibrium.Conditions {
	cond := base
	cond.RefOffsets = make(map[nucleus.Nucleus]float64, len(base.RefOffsets))
	for n, off := range base.RefOffsets {
		cond.RefOffsets[n] = off
	}
	for i, p := range v.params {
		switch p.Role {
		case RolePH:
			cond.PH = values[i]
		case RoleTemperature:
			cond.TempK = values[i]
		case RoleIonicStrength:
			cond.IonicM = values[i]
		case RoleReferenceOffset:
			cond.RefOffsets[p.Nucleus] = values[i]
		}
	}
	return cond
}
