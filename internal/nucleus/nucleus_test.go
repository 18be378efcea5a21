package nucleus_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nmrkit/phfit/internal/nucleus"
)

var _ = Describe("Parse", func() {
	It("should accept isotope-first spellings", func() {
		for spelling, want := range map[string]nucleus.Nucleus{
			"1H":  nucleus.Proton,
			"13C": nucleus.Carbon13,
			"15N": nucleus.Nitrogen15,
			"31P": nucleus.Phosphorus31,
			"19F": nucleus.Fluorine19,
		} {
			n, ok := nucleus.Parse(spelling)
			Expect(ok).To(BeTrue(), spelling)
			Expect(n).To(Equal(want))
		}
	})

	It("should accept element-first spellings and names regardless of case", func() {
		for _, spelling := range []string{"h1", "H1", "proton", "PROTON", " 1h "} {
			n, ok := nucleus.Parse(spelling)
			Expect(ok).To(BeTrue(), spelling)
			Expect(n).To(Equal(nucleus.Proton))
		}
		n, ok := nucleus.Parse("P31")
		Expect(ok).To(BeTrue())
		Expect(n).To(Equal(nucleus.Phosphorus31))
	})

	It("should reject unknown spellings", func() {
		for _, spelling := range []string{"", "2H", "deuterium", "17O"} {
			n, ok := nucleus.Parse(spelling)
			Expect(ok).To(BeFalse(), spelling)
			Expect(n).To(Equal(nucleus.Unknown))
		}
	})
})

var _ = Describe("All", func() {
	It("should return the supported nuclei in a fixed order", func() {
		Expect(nucleus.All()).To(Equal([]nucleus.Nucleus{
			nucleus.Proton,
			nucleus.Carbon13,
			nucleus.Nitrogen15,
			nucleus.Phosphorus31,
			nucleus.Fluorine19,
		}))
	})
})

var _ = Describe("DefaultTolerance", func() {
	It("should match the documented per-nucleus defaults", func() {
		Expect(nucleus.DefaultTolerance(nucleus.Proton)).To(Equal(0.5))
		Expect(nucleus.DefaultTolerance(nucleus.Carbon13)).To(Equal(2.0))
		Expect(nucleus.DefaultTolerance(nucleus.Nitrogen15)).To(Equal(2.0))
		Expect(nucleus.DefaultTolerance(nucleus.Phosphorus31)).To(Equal(2.0))
		Expect(nucleus.DefaultTolerance(nucleus.Fluorine19)).To(Equal(3.0))
	})
})
