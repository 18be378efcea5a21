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

package bufferdb

import (
	"fmt"
	"sort"

	"github.com/nmrkit/phfit/internal/nucleus"
)

// IonicModel selects the ionic-strength correction applied to a pKa value.
type IonicModel string

const (
	// IonicModelDavies applies the Davies equation.
	IonicModelDavies IonicModel = "davies"
	// IonicModelExtendedDH applies the extended Debye-Hückel equation.
	IonicModelExtendedDH IonicModel = "extended_debye_huckel"
	// IonicModelEmpirical applies a linear empirical correction.
	IonicModelEmpirical IonicModel = "empirical"
	// IonicModelNone applies no ionic-strength correction.
	IonicModelNone IonicModel = "none"
)

// PKaParams describes one acid-dissociation equilibrium of a buffer.
type PKaParams struct {
	// Value is the reference pKa, measured at the owning Sample's reference
	// temperature and zero ionic strength.
	Value float64 `yaml:"value" json:"value"`

	// Uncertainty is the reported standard uncertainty of Value, if any.
	Uncertainty float64 `yaml:"uncertainty,omitempty" json:"uncertainty,omitempty"`

	// DeltaH is the enthalpy of ionisation in J/mol, used for the van't Hoff
	// temperature correction. Zero disables the term.
	DeltaH float64 `yaml:"deltaH,omitempty" json:"deltaH,omitempty"`

	// DeltaCp is the heat-capacity change of ionisation in J/(mol·K).
	// Zero disables the term.
	DeltaCp float64 `yaml:"deltaCp,omitempty" json:"deltaCp,omitempty"`

	// ProtonatedCharge is the charge of the protonated species for this
	// equilibrium; the charge difference term of the ionic-strength models is
	// derived from it.
	ProtonatedCharge int `yaml:"protonatedCharge,omitempty" json:"protonatedCharge,omitempty"`

	// IonicModel selects the ionic-strength correction. Empty means none.
	IonicModel IonicModel `yaml:"ionicModel,omitempty" json:"ionicModel,omitempty"`

	// IonSizeAngstrom is the ion-size parameter for the extended
	// Debye-Hückel model. Zero means the conventional 4.5 Å default.
	IonSizeAngstrom float64 `yaml:"ionSizeAngstrom,omitempty" json:"ionSizeAngstrom,omitempty"`

	// EmpiricalCoeff is the linear coefficient for the empirical model,
	// in pKa units per mol/L.
	EmpiricalCoeff float64 `yaml:"empiricalCoeff,omitempty" json:"empiricalCoeff,omitempty"`
}

// LimitingShift is the chemical shift a resonance would exhibit if the
// molecule were entirely in one ionisation state, with linear temperature and
// ionic-strength dependence around the Sample's reference conditions.
type LimitingShift struct {
	// State is the ionisation state index, 0 (most protonated) through N,
	// where N is the number of pKa equilibria of the buffer.
	State int `yaml:"state" json:"state"`

	// Shift is the base shift value in ppm at reference conditions.
	Shift float64 `yaml:"shift" json:"shift"`

	// Uncertainty is the reported standard uncertainty of Shift, if any.
	Uncertainty float64 `yaml:"uncertainty,omitempty" json:"uncertainty,omitempty"`

	// TempCoeff is the linear temperature coefficient in ppm/K.
	TempCoeff float64 `yaml:"tempCoeff,omitempty" json:"tempCoeff,omitempty"`

	// IonicCoeff is the linear ionic-strength coefficient in ppm per mol/L.
	IonicCoeff float64 `yaml:"ionicCoeff,omitempty" json:"ionicCoeff,omitempty"`
}

// Resonance is a distinguishable, NMR-observable nuclear environment within a
// buffer molecule.
type Resonance struct {
	// ID identifies the resonance within its buffer (e.g. "CH2-2").
	ID string `yaml:"id" json:"id"`

	// Description is a human-readable site description.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// LimitingShifts holds one entry per ionisation state the resonance
	// reports on.
	LimitingShifts []LimitingShift `yaml:"limitingShifts" json:"limitingShifts"`
}

// Buffer is one reference buffer molecule: its equilibria and the resonances
// observable per nucleus.
type Buffer struct {
	// ID is the unique buffer identifier within the database.
	ID string `yaml:"id" json:"id"`

	// Name is the display name (e.g. "HEPES").
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// SampleID references the Sample whose conditions the buffer's
	// coefficients were measured under.
	SampleID string `yaml:"sampleId" json:"sampleId"`

	// PKas lists the buffer's acid-dissociation equilibria. The engine sorts
	// the corrected values ascending before computing state populations.
	PKas []PKaParams `yaml:"pKas" json:"pKas"`

	// ChemicalShifts maps a nucleus spelling (e.g. "1H") to the buffer's
	// resonances observable on that nucleus.
	ChemicalShifts map[string][]Resonance `yaml:"chemicalShifts" json:"chemicalShifts"`
}

// Range is an inclusive measurement range.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// MeasurementRanges records the conditions over which a Sample's buffer
// parameters were measured; fitted values outside these ranges are
// extrapolations.
type MeasurementRanges struct {
	PH           Range `yaml:"pH" json:"pH"`
	TemperatureK Range `yaml:"temperatureK" json:"temperatureK"`
	IonicM       Range `yaml:"ionicStrengthM" json:"ionicStrengthM"`
}

// Sample describes the reference conditions a set of buffer parameters was
// measured under.
type Sample struct {
	// ID is the unique sample identifier within the database.
	ID string `yaml:"id" json:"id"`

	// ReferenceTemperatureK is the temperature the pKa values and limiting
	// shifts were referenced to.
	ReferenceTemperatureK float64 `yaml:"referenceTemperatureK" json:"referenceTemperatureK"`

	// ReferenceIonicM is the ionic strength the limiting-shift coefficients
	// were referenced to.
	ReferenceIonicM float64 `yaml:"referenceIonicStrengthM" json:"referenceIonicStrengthM"`

	// Ranges are the measured condition ranges, used for extrapolation checks.
	Ranges MeasurementRanges `yaml:"measurementRanges" json:"measurementRanges"`
}

// Database is an immutable collection of samples and buffers. Buffers keep
// their file order so downstream candidate scans are deterministic.
type Database struct {
	Samples []Sample `yaml:"samples" json:"samples"`
	Buffers []Buffer `yaml:"buffers" json:"buffers"`

	samplesByID map[string]Sample
}

// SampleFor returns the Sample referenced by the buffer.
func (db *Database) SampleFor(b Buffer) (Sample, bool) {
	s, ok := db.samplesByID[b.SampleID]
	return s, ok
}

// Sample returns the sample with the given ID.
func (db *Database) Sample(id string) (Sample, bool) {
	s, ok := db.samplesByID[id]
	return s, ok
}

// Buffer returns the buffer with the given ID.
func (db *Database) Buffer(id string) (Buffer, bool) {
	for _, b := range db.Buffers {
		if b.ID == id {
			return b, true
		}
	}
	return Buffer{}, false
}

// Validate checks a single pKa parameter record.
func (p *PKaParams) Validate() error {
	switch p.IonicModel {
	case "", IonicModelNone, IonicModelDavies, IonicModelExtendedDH, IonicModelEmpirical:
	default:
		return fmt.Errorf("unknown ionic model %q", p.IonicModel)
	}
	if p.IonSizeAngstrom < 0 {
		return fmt.Errorf("ion size must be >= 0, got %.2f", p.IonSizeAngstrom)
	}
	if p.Uncertainty < 0 {
		return fmt.Errorf("pKa uncertainty must be >= 0, got %.3f", p.Uncertainty)
	}
	return nil
}

// Validate checks a buffer record for internal consistency. Limiting-shift
// state indices must address one of the buffer's ionisation states
// (0..len(PKas)), and nucleus keys must be recognizable spellings.
func (b *Buffer) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("buffer has no id")
	}
	if b.SampleID == "" {
		return fmt.Errorf("buffer %s has no sampleId", b.ID)
	}
	for i, p := range b.PKas {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("buffer %s pKa[%d]: %w", b.ID, i, err)
		}
	}
	states := len(b.PKas) + 1
	for nuc, resonances := range b.ChemicalShifts {
		if _, ok := nucleus.Parse(nuc); !ok {
			return fmt.Errorf("buffer %s: unrecognized nucleus %q", b.ID, nuc)
		}
		for _, res := range resonances {
			if res.ID == "" {
				return fmt.Errorf("buffer %s: resonance on %s has no id", b.ID, nuc)
			}
			if len(res.LimitingShifts) == 0 {
				return fmt.Errorf("buffer %s resonance %s: no limiting shifts", b.ID, res.ID)
			}
			for _, ls := range res.LimitingShifts {
				if ls.State < 0 || ls.State >= states {
					return fmt.Errorf("buffer %s resonance %s: state %d out of range [0,%d]",
						b.ID, res.ID, ls.State, states-1)
				}
			}
		}
	}
	return nil
}

// Validate checks a sample record.
func (s *Sample) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("sample has no id")
	}
	if s.ReferenceTemperatureK <= 0 {
		return fmt.Errorf("sample %s: reference temperature must be > 0 K, got %.2f",
			s.ID, s.ReferenceTemperatureK)
	}
	if s.ReferenceIonicM < 0 {
		return fmt.Errorf("sample %s: reference ionic strength must be >= 0, got %.3f",
			s.ID, s.ReferenceIonicM)
	}
	return nil
}

// SortedPKaValues returns the buffer's reference pKa values sorted ascending.
func (b *Buffer) SortedPKaValues() []float64 {
	out := make([]float64, len(b.PKas))
	for i, p := range b.PKas {
		out[i] = p.Value
	}
	sort.Float64s(out)
	return out
}
