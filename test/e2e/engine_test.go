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

package e2e

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nmrkit/phfit/internal/config"
	"github.com/nmrkit/phfit/internal/engine"
	"github.com/nmrkit/phfit/internal/equilibrium"
	"github.com/nmrkit/phfit/internal/fitter"
	"github.com/nmrkit/phfit/internal/logging"
	"github.com/nmrkit/phfit/internal/nucleus"
	"github.com/nmrkit/phfit/internal/peaks"
	"github.com/nmrkit/phfit/pkg/bufferdb"
)

const databaseYAML = `
samples:
  - id: nist-25c
    referenceTemperatureK: 298.15
    referenceIonicStrengthM: 0.0
    measurementRanges:
      pH: {min: 2.0, max: 12.0}
      temperatureK: {min: 278.0, max: 318.0}
      ionicStrengthM: {min: 0.0, max: 0.5}
buffers:
  - id: imidazole
    name: Imidazole
    sampleId: nist-25c
    pKas:
      - value: 6.99
        deltaH: 36600
        protonatedCharge: 1
        ionicModel: davies
    chemicalShifts:
      1H:
        - id: H2
          description: ring C2 proton
          limitingShifts:
            - {state: 0, shift: 8.62, tempCoeff: -0.0009}
            - {state: 1, shift: 7.70, tempCoeff: -0.0006}
  - id: phosphate
    name: Phosphate
    sampleId: nist-25c
    pKas:
      - value: 7.21
        deltaH: 3600
        protonatedCharge: -1
        ionicModel: davies
    chemicalShifts:
      31P:
        - id: P
          limitingShifts:
            - {state: 0, shift: 0.9}
            - {state: 1, shift: 2.3}
`

var _ = Describe("pH determination end to end", func() {
	var (
		db  *bufferdb.Database
		eng *engine.Engine
		ctx context.Context
	)

	BeforeEach(func() {
		var err error
		db, err = bufferdb.Parse([]byte(databaseYAML), logging.NewTestLogger())
		Expect(err).NotTo(HaveOccurred())

		eng, err = engine.New(config.Default(), logging.NewTestLogger(), nil)
		Expect(err).NotTo(HaveOccurred())

		ctx = context.Background()
	})

	// observe predicts the shift of one resonance at the given conditions,
	// producing synthetic observations that are exactly consistent with the
	// database.
	observe := func(bufferID, nuc, resID string, cond equilibrium.Conditions) float64 {
		buffer, ok := db.Buffer(bufferID)
		Expect(ok).To(BeTrue())
		sample, ok := db.SampleFor(buffer)
		Expect(ok).To(BeTrue())
		for _, r := range buffer.ChemicalShifts[nuc] {
			if r.ID == resID {
				return equilibrium.PredictBufferShift(buffer, r, sample, cond)
			}
		}
		Fail("resonance not found: " + bufferID + "/" + resID)
		return 0
	}

	It("should recover the pH from consistent multi-nucleus observations", func() {
		truth := equilibrium.Conditions{PH: 7.0, TempK: 298.15, IonicM: 0.0}
		observations := peaks.Set{
			nucleus.Proton:       {observe("imidazole", "1H", "H2", truth)},
			nucleus.Phosphorus31: {observe("phosphate", "31P", "P", truth)},
		}

		result := eng.Calculate(ctx, engine.Request{
			DB:           db,
			Observations: observations,
			Nominal:      equilibrium.Conditions{TempK: 298.15},
		})

		Expect(result.Success).To(BeTrue(), result.Error)
		Expect(result.Parameters).To(HaveKey("pH"))
		Expect(result.Parameters["pH"].Value).To(BeNumerically("~", 7.0, 0.01))
		Expect(result.Convergence).To(BeTrue())
		Expect(result.Statistics.RMSD).To(BeNumerically("<", 1e-3))

		// Both peaks must land on their generating resonances with high
		// confidence.
		for _, p := range result.Assignments.All() {
			Expect(p.Assigned).To(BeTrue())
		}

		// Two observations against one free parameter: valid, but only one
		// degree of freedom.
		Expect(result.Validation).NotTo(BeNil())
		Expect(result.Validation.Valid).To(BeTrue())
		Expect(result.Validation.Warnings).To(ContainElement(ContainSubstring("1 degree of freedom")))
	})

	It("should track a temperature-shifted sample when refinement is enabled", func() {
		truth := equilibrium.Conditions{PH: 6.5, TempK: 303.15, IonicM: 0.0}
		observations := peaks.Set{
			nucleus.Proton:       {observe("imidazole", "1H", "H2", truth)},
			nucleus.Phosphorus31: {observe("phosphate", "31P", "P", truth)},
		}

		result := eng.Calculate(ctx, engine.Request{
			DB:           db,
			Observations: observations,
			Nominal:      equilibrium.Conditions{TempK: 303.15},
		})

		Expect(result.Success).To(BeTrue(), result.Error)
		Expect(result.Parameters["pH"].Value).To(BeNumerically("~", 6.5, 0.01))
	})

	It("should fail cleanly when no observation matches any buffer", func() {
		result := eng.Calculate(ctx, engine.Request{
			DB:           db,
			Observations: peaks.Set{nucleus.Proton: {42.0}},
			Nominal:      equilibrium.Conditions{TempK: 298.15},
		})

		Expect(result.Success).To(BeFalse())
		Expect(result.Error).To(ContainSubstring("no peaks could be assigned"))
		Expect(result.Assignments.All()).To(HaveLen(1))
		Expect(result.Assignments.All()[0].Assigned).To(BeFalse())
	})

	It("should refuse a fit with more parameters than observations", func() {
		truth := equilibrium.Conditions{PH: 7.0, TempK: 298.15}
		result := eng.Calculate(ctx, engine.Request{
			DB:           db,
			Observations: peaks.Set{nucleus.Proton: {observe("imidazole", "1H", "H2", truth)}},
			Nominal:      equilibrium.Conditions{TempK: 298.15},
			Options: fitter.Options{
				RefineTemperature:   true,
				RefineIonicStrength: true,
			},
		})

		Expect(result.Success).To(BeFalse())
		Expect(result.Error).To(ContainSubstring("underdetermined"))
	})

	It("should honor per-nucleus tolerance overrides from the configuration", func() {
		cfg := config.Default()
		cfg.Tolerances = map[string]float64{"1H": 0.01}
		strict, err := engine.New(cfg, logging.NewTestLogger(), nil)
		Expect(err).NotTo(HaveOccurred())

		truth := equilibrium.Conditions{PH: 7.0, TempK: 298.15}
		// Nudge the proton observation 0.05 ppm off its prediction: fine for
		// the default 0.5 ppm tolerance, unassignable at 0.01 ppm.
		observations := peaks.Set{
			nucleus.Proton: {observe("imidazole", "1H", "H2", truth) + 0.05},
		}

		result := strict.Calculate(ctx, engine.Request{
			DB:           db,
			Observations: observations,
			Nominal:      equilibrium.Conditions{TempK: 298.15},
		})
		Expect(result.Success).To(BeFalse())
		Expect(result.Error).To(ContainSubstring("no peaks could be assigned"))

		relaxed := eng.Calculate(ctx, engine.Request{
			DB:           db,
			Observations: observations,
			Nominal:      equilibrium.Conditions{TempK: 298.15},
		})
		Expect(relaxed.Success).To(BeTrue(), relaxed.Error)
	})
})
