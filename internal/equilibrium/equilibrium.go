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

// Package equilibrium implements the physical model of buffer acid-base
// equilibria: temperature and ionic-strength correction of pKa values,
// ionisation-state population fractions, and population-weighted prediction
// of observed chemical shifts.
//
// All functions are pure; the package holds no state.
package equilibrium

import (
	"math"
	"sort"

	"github.com/nmrkit/phfit/internal/nucleus"
	"github.com/nmrkit/phfit/pkg/bufferdb"
)

// Physical constants.
const (
	// GasConstant is R in J/(mol·K).
	GasConstant = 8.31446261815324

	// DaviesA is the Debye-Hückel A parameter at 25 °C in water.
	DaviesA = 0.5085

	// DebyeHuckelB is the extended Debye-Hückel B parameter in 1/Å.
	DebyeHuckelB = 0.328

	// DefaultIonSizeAngstrom is the conventional ion-size parameter used when
	// a pKa record does not specify one.
	DefaultIonSizeAngstrom = 4.5
)

var ln10 = math.Log(10)

// Conditions is the condition vector a prediction or fit is evaluated at.
// RefOffsets are additive per-nucleus chemical-shift reference corrections;
// a missing entry means zero offset.
type Conditions struct {
	PH         float64                     `json:"pH"`
	TempK      float64                     `json:"temperatureK"`
	IonicM     float64                     `json:"ionicStrengthM"`
	RefOffsets map[nucleus.Nucleus]float64 `json:"referenceOffsets,omitempty"`
}

// Offset returns the reference offset for n, zero when none is set.
func (c Conditions) Offset(n nucleus.Nucleus) float64 {
	if c.RefOffsets == nil {
		return 0
	}
	return c.RefOffsets[n]
}

// CorrectPKa corrects a reference pKa to the given temperature and ionic
// strength.
//
// The corrected value is the reference pKa plus a van't Hoff enthalpy term,
// a heat-capacity term, and an ionic-strength term selected by the record's
// model. Terms whose coefficient is zero are skipped outright rather than
// multiplied through, so records without thermodynamic data reproduce the
// reference value exactly.
func CorrectPKa(p bufferdb.PKaParams, tempK, ionicM, refTempK float64) float64 {
	pKa := p.Value

	if p.DeltaH != 0 && tempK != refTempK {
		pKa += p.DeltaH / (GasConstant * ln10) * (1/tempK - 1/refTempK)
	}
	if p.DeltaCp != 0 && tempK != refTempK {
		pKa += p.DeltaCp / (GasConstant * ln10) *
			(refTempK/tempK - 1 + math.Log(tempK/refTempK))
	}
	pKa += ionicTerm(p, ionicM)

	return pKa
}

// ionicTerm computes the ionic-strength correction for one pKa record.
func ionicTerm(p bufferdb.PKaParams, ionicM float64) float64 {
	if ionicM == 0 {
		return 0
	}
	switch p.IonicModel {
	case bufferdb.IonicModelDavies:
		sqrtI := math.Sqrt(ionicM)
		return DaviesA * deltaZSquared(p.ProtonatedCharge) * (sqrtI/(1+sqrtI) - 0.3*ionicM)
	case bufferdb.IonicModelExtendedDH:
		a := p.IonSizeAngstrom
		if a == 0 {
			a = DefaultIonSizeAngstrom
		}
		sqrtI := math.Sqrt(ionicM)
		return DaviesA * deltaZSquared(p.ProtonatedCharge) * sqrtI / (1 + DebyeHuckelB*a*sqrtI)
	case bufferdb.IonicModelEmpirical:
		if p.EmpiricalCoeff == 0 {
			return 0
		}
		return p.EmpiricalCoeff * ionicM
	default:
		return 0
	}
}

// deltaZSquared is the charge-squared difference across the dissociation
// HA^z -> A^(z-1) + H+: Δz² = 1 + (z−1)² − z².
func deltaZSquared(protonatedCharge int) float64 {
	z := float64(protonatedCharge)
	return 1 + (z-1)*(z-1) - z*z
}

// CorrectedPKas returns the buffer's pKa values corrected to the given
// conditions, sorted ascending. Population fractions must always be computed
// from an ascending list.
func CorrectedPKas(b bufferdb.Buffer, tempK, ionicM, refTempK float64) []float64 {
	out := make([]float64, len(b.PKas))
	for i, p := range b.PKas {
		out[i] = CorrectPKa(p, tempK, ionicM, refTempK)
	}
	sort.Float64s(out)
	return out
}

// Fractions computes ionisation-state population fractions for a buffer with
// the given ascending pKa list at the given pH.
//
// For N states (N−1 pKa values), state i's unnormalized weight is the product
// of 10^(pKa_j − pH) over all pKa indices j >= i; the most-deprotonated state
// has weight 1. The returned fractions sum to 1. With no pKa values the single
// state has fraction 1.
func Fractions(pKas []float64, pH float64) []float64 {
	n := len(pKas) + 1
	fractions := make([]float64, n)
	if n == 1 {
		fractions[0] = 1
		return fractions
	}

	// Build weights from the most-deprotonated state backwards so each state
	// multiplies one more factor onto its successor's weight.
	weights := make([]float64, n)
	weights[n-1] = 1
	for i := n - 2; i >= 0; i-- {
		weights[i] = weights[i+1] * math.Pow(10, pKas[i]-pH)
	}

	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum == 0 || math.IsInf(sum, 0) || math.IsNaN(sum) {
		// Extreme pH collapses the populations onto a single state; pick it
		// directly instead of dividing degenerate weights.
		idx := n - 1
		for i, w := range weights {
			if math.IsInf(w, 1) || (sum == 0 && w > 0) {
				idx = i
				break
			}
		}
		fractions[idx] = 1
		return fractions
	}
	for i, w := range weights {
		fractions[i] = w / sum
	}
	return fractions
}

// PredictShift predicts the observed shift of a resonance at the given
// conditions: the fraction-weighted sum over its limiting shifts, each
// linearly corrected for temperature and ionic strength around the sample's
// reference conditions. A limiting shift whose state index falls outside the
// fraction list contributes zero.
func PredictShift(res bufferdb.Resonance, fractions []float64, tempK, ionicM float64, sample bufferdb.Sample) float64 {
	var shift float64
	for _, ls := range res.LimitingShifts {
		if ls.State < 0 || ls.State >= len(fractions) {
			continue
		}
		value := ls.Shift
		if ls.TempCoeff != 0 {
			value += ls.TempCoeff * (tempK - sample.ReferenceTemperatureK)
		}
		if ls.IonicCoeff != 0 {
			value += ls.IonicCoeff * (ionicM - sample.ReferenceIonicM)
		}
		shift += fractions[ls.State] * value
	}
	return shift
}

// PredictBufferShift corrects the buffer's pKa list to the given conditions
// and predicts the resonance's observed shift there.
func PredictBufferShift(b bufferdb.Buffer, res bufferdb.Resonance, sample bufferdb.Sample, cond Conditions) float64 {
	pKas := CorrectedPKas(b, cond.TempK, cond.IonicM, sample.ReferenceTemperatureK)
	fractions := Fractions(pKas, cond.PH)
	return PredictShift(res, fractions, cond.TempK, cond.IonicM, sample)
}
