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

package equilibrium

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/nmrkit/phfit/pkg/bufferdb"
)

// CurvePoint is one (pH, shift) sample of a titration curve.
type CurvePoint struct {
	PH    float64 `json:"pH"`
	Shift float64 `json:"shift"`
}

// TitrationCurve generates a dense predicted-shift curve for one resonance
// over [phMin, phMax] with the given step, at fixed temperature and ionic
// strength. The pH axis is strictly ascending. Read-only; intended for
// visualization by callers.
func TitrationCurve(b bufferdb.Buffer, res bufferdb.Resonance, sample bufferdb.Sample, phMin, phMax, step, tempK, ionicM float64) ([]CurvePoint, error) {
	if step <= 0 {
		return nil, fmt.Errorf("curve step must be > 0, got %g", step)
	}
	if phMax < phMin {
		return nil, fmt.Errorf("curve range inverted: [%g, %g]", phMin, phMax)
	}

	// Rounding keeps binary-fraction steps like 0.1 from losing the endpoint.
	n := int(math.Round((phMax-phMin)/step)) + 1
	axis := make([]float64, n)
	floats.Span(axis, phMin, phMin+float64(n-1)*step)

	pKas := CorrectedPKas(b, tempK, ionicM, sample.ReferenceTemperatureK)
	points := make([]CurvePoint, n)
	for i, pH := range axis {
		fractions := Fractions(pKas, pH)
		points[i] = CurvePoint{
			PH:    pH,
			Shift: PredictShift(res, fractions, tempK, ionicM, sample),
		}
	}
	return points, nil
}
