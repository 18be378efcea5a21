package equilibrium

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nmrkit/phfit/pkg/bufferdb"
)

var _ = Describe("Fractions", func() {
	It("should return a single full state with no pKa values", func() {
		Expect(Fractions(nil, 7.0)).To(Equal([]float64{1}))
	})

	It("should split 50/50 at pH equal to the pKa", func() {
		fractions := Fractions([]float64{6.8}, 6.8)
		Expect(fractions[0]).To(BeNumerically("~", 0.5, 1e-12))
		Expect(fractions[1]).To(BeNumerically("~", 0.5, 1e-12))
	})

	It("should favor the protonated state below the pKa", func() {
		fractions := Fractions([]float64{6.8}, 4.8)
		Expect(fractions[0]).To(BeNumerically(">", 0.99))
	})

	It("should sum to 1 for any pKa list length and pH", func() {
		pKaSets := [][]float64{
			nil,
			{7.2},
			{2.1, 7.2},
			{2.1, 7.2, 12.3},
			{1.0, 4.0, 6.5, 9.0},
			{1.0, 3.0, 5.0, 7.0, 9.0},
			{0.5, 2.5, 4.5, 6.5, 8.5, 10.5},
		}
		for _, pKas := range pKaSets {
			for pH := -50.0; pH <= 50.0; pH += 2.5 {
				fractions := Fractions(pKas, pH)
				sum := 0.0
				for _, f := range fractions {
					Expect(f).To(BeNumerically(">=", 0))
					sum += f
				}
				Expect(sum).To(BeNumerically("~", 1.0, 1e-9),
					"pKas=%v pH=%.1f", pKas, pH)
			}
		}
	})

	It("should collapse onto one state at extreme pH without NaN", func() {
		fractions := Fractions([]float64{2.0, 7.0, 12.0}, -50)
		Expect(fractions[0]).To(BeNumerically("~", 1.0, 1e-9))
		fractions = Fractions([]float64{2.0, 7.0, 12.0}, 50)
		Expect(fractions[3]).To(BeNumerically("~", 1.0, 1e-9))
	})
})

var _ = Describe("CorrectPKa", func() {
	const refTempK = 298.15

	It("should reproduce the reference pKa at reference conditions", func() {
		p := bufferdb.PKaParams{
			Value:            7.21,
			DeltaH:           -5000,
			DeltaCp:          -200,
			ProtonatedCharge: -1,
			IonicModel:       bufferdb.IonicModelDavies,
		}
		Expect(CorrectPKa(p, refTempK, 0, refTempK)).To(Equal(7.21))
	})

	It("should follow the analytic van't Hoff slope for small perturbations", func() {
		p := bufferdb.PKaParams{Value: 7.0, DeltaH: 20000}
		const delta = 0.01
		numeric := (CorrectPKa(p, refTempK+delta, 0, refTempK) -
			CorrectPKa(p, refTempK-delta, 0, refTempK)) / (2 * delta)
		analytic := -p.DeltaH / (GasConstant * math.Log(10) * refTempK * refTempK)
		Expect(numeric).To(BeNumerically("~", analytic, math.Abs(analytic)*1e-4))
	})

	It("should shift pKa opposite to the enthalpy sign on warming", func() {
		positive := bufferdb.PKaParams{Value: 7.0, DeltaH: 20000}
		negative := bufferdb.PKaParams{Value: 7.0, DeltaH: -20000}
		Expect(CorrectPKa(positive, 310.15, 0, refTempK)).To(BeNumerically("<", 7.0))
		Expect(CorrectPKa(negative, 310.15, 0, refTempK)).To(BeNumerically(">", 7.0))
	})

	It("should apply the Davies correction at nonzero ionic strength", func() {
		p := bufferdb.PKaParams{
			Value:            7.0,
			ProtonatedCharge: 0,
			IonicModel:       bufferdb.IonicModelDavies,
		}
		ionic := 0.15
		sqrtI := math.Sqrt(ionic)
		want := 7.0 + DaviesA*2*(sqrtI/(1+sqrtI)-0.3*ionic)
		Expect(CorrectPKa(p, refTempK, ionic, refTempK)).To(BeNumerically("~", want, 1e-12))
	})

	It("should default the ion size for the extended Debye-Hückel model", func() {
		p := bufferdb.PKaParams{
			Value:            7.0,
			ProtonatedCharge: 0,
			IonicModel:       bufferdb.IonicModelExtendedDH,
		}
		ionic := 0.1
		sqrtI := math.Sqrt(ionic)
		want := 7.0 + DaviesA*2*sqrtI/(1+DebyeHuckelB*DefaultIonSizeAngstrom*sqrtI)
		Expect(CorrectPKa(p, refTempK, ionic, refTempK)).To(BeNumerically("~", want, 1e-12))
	})

	It("should apply a linear empirical correction", func() {
		p := bufferdb.PKaParams{
			Value:          7.0,
			IonicModel:     bufferdb.IonicModelEmpirical,
			EmpiricalCoeff: -0.5,
		}
		Expect(CorrectPKa(p, refTempK, 0.2, refTempK)).To(BeNumerically("~", 6.9, 1e-12))
	})

	It("should leave the pKa unchanged with model none", func() {
		p := bufferdb.PKaParams{Value: 7.0, IonicModel: bufferdb.IonicModelNone}
		Expect(CorrectPKa(p, refTempK, 0.5, refTempK)).To(Equal(7.0))
	})
})

var _ = Describe("PredictShift", func() {
	sample := bufferdb.Sample{
		ID:                    "s1",
		ReferenceTemperatureK: 298.15,
		ReferenceIonicM:       0.15,
	}

	It("should weight limiting shifts by state populations", func() {
		res := bufferdb.Resonance{
			ID: "r1",
			LimitingShifts: []bufferdb.LimitingShift{
				{State: 0, Shift: 3.5},
				{State: 1, Shift: 3.0},
			},
		}
		shift := PredictShift(res, []float64{0.4, 0.6}, 298.15, 0.15, sample)
		Expect(shift).To(BeNumerically("~", 0.4*3.5+0.6*3.0, 1e-12))
	})

	It("should apply linear temperature and ionic corrections", func() {
		res := bufferdb.Resonance{
			ID: "r1",
			LimitingShifts: []bufferdb.LimitingShift{
				{State: 0, Shift: 3.5, TempCoeff: -0.002, IonicCoeff: 0.1},
			},
		}
		shift := PredictShift(res, []float64{1}, 308.15, 0.25, sample)
		Expect(shift).To(BeNumerically("~", 3.5-0.002*10+0.1*0.1, 1e-12))
	})

	It("should ignore limiting shifts with out-of-range state indices", func() {
		res := bufferdb.Resonance{
			ID: "r1",
			LimitingShifts: []bufferdb.LimitingShift{
				{State: 0, Shift: 3.5},
				{State: 5, Shift: 99.0},
			},
		}
		shift := PredictShift(res, []float64{1}, 298.15, 0.15, sample)
		Expect(shift).To(BeNumerically("~", 3.5, 1e-12))
	})
})

var _ = Describe("TitrationCurve", func() {
	sample := bufferdb.Sample{ID: "s1", ReferenceTemperatureK: 298.15}
	buffer := bufferdb.Buffer{
		ID:       "b1",
		SampleID: "s1",
		PKas:     []bufferdb.PKaParams{{Value: 6.8}},
	}
	res := bufferdb.Resonance{
		ID: "r1",
		LimitingShifts: []bufferdb.LimitingShift{
			{State: 0, Shift: 3.5},
			{State: 1, Shift: 3.0},
		},
	}

	It("should produce a strictly ascending pH axis", func() {
		points, err := TitrationCurve(buffer, res, sample, 4, 10, 0.1, 298.15, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(points).To(HaveLen(61))
		for i := 1; i < len(points); i++ {
			Expect(points[i].PH).To(BeNumerically(">", points[i-1].PH))
		}
	})

	It("should span the limiting shifts across the transition", func() {
		points, err := TitrationCurve(buffer, res, sample, 2, 12, 0.5, 298.15, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(points[0].Shift).To(BeNumerically("~", 3.5, 1e-3))
		Expect(points[len(points)-1].Shift).To(BeNumerically("~", 3.0, 1e-3))
	})

	It("should reject non-positive steps and inverted ranges", func() {
		_, err := TitrationCurve(buffer, res, sample, 4, 10, 0, 298.15, 0)
		Expect(err).To(HaveOccurred())
		_, err = TitrationCurve(buffer, res, sample, 10, 4, 0.1, 298.15, 0)
		Expect(err).To(HaveOccurred())
	})
})
