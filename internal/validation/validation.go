// Package validation derives a quality report from a completed fit: degrees
// of freedom, extrapolation beyond measured ranges, assignment quality,
// residual outliers, physical plausibility, and deviation from nominal
// conditions. Checks are read-only over their input and compose into a
// single report.
package validation

import (
	"fmt"
	"math"

	"github.com/nmrkit/phfit/internal/assignment"
	"github.com/nmrkit/phfit/internal/equilibrium"
	"github.com/nmrkit/phfit/internal/fitter"
	"github.com/nmrkit/phfit/pkg/bufferdb"
)

// Default check thresholds.
const (
	DefaultResidualZThreshold    = 2.0
	DefaultTemperatureDeviationK = 2.0
	DefaultIonicDeviationM       = 0.05
)

// Thresholds configures the tunable check limits. Zero values fall back to
// the defaults.
type Thresholds struct {
	// ResidualZ flags residuals with |residual|/RMSD above this value.
	ResidualZ float64

	// TemperatureDeviationK flags fitted temperatures this far from nominal.
	TemperatureDeviationK float64

	// IonicDeviationM flags fitted ionic strengths this far from nominal.
	IonicDeviationM float64
}

func (t Thresholds) withDefaults() Thresholds {
	if t.ResidualZ <= 0 {
		t.ResidualZ = DefaultResidualZThreshold
	}
	if t.TemperatureDeviationK <= 0 {
		t.TemperatureDeviationK = DefaultTemperatureDeviationK
	}
	if t.IonicDeviationM <= 0 {
		t.IonicDeviationM = DefaultIonicDeviationM
	}
	return t
}

// Input is the slice of a fit outcome the checks read.
type Input struct {
	// Fitted are the final fitted conditions.
	Fitted equilibrium.Conditions

	// Nominal are the caller-supplied nominal conditions.
	Nominal equilibrium.Conditions

	// Stats are the post-convergence fit statistics.
	Stats fitter.Statistics

	// Assignments is the final assignment set.
	Assignments assignment.Result

	// Samples supplies measurement ranges for the extrapolation check, keyed
	// by sample ID; every sample referenced by a participating buffer should
	// be present.
	Samples map[string]bufferdb.Sample

	// Thresholds tunes the check limits.
	Thresholds Thresholds
}

// CheckResult is the outcome of one check group.
type CheckResult struct {
	Passed   bool     `json:"passed"`
	Findings []string `json:"findings,omitempty"`
}

// Report aggregates all checks over one fit. Issues invalidate the fit;
// warnings do not.
type Report struct {
	Valid              bool        `json:"valid"`
	Warnings           []string    `json:"warnings,omitempty"`
	Issues             []string    `json:"issues,omitempty"`
	ResidualCheck      CheckResult `json:"residualCheck"`
	ParameterCheck     CheckResult `json:"parameterCheck"`
	ExtrapolationCheck CheckResult `json:"extrapolationCheck"`
	DeviationCheck     CheckResult `json:"deviationCheck"`
}

// Evaluate runs every check and composes the report. It never mutates the
// input.
func Evaluate(in Input) *Report {
	th := in.Thresholds.withDefaults()
	report := &Report{Valid: true}

	checkDegreesOfFreedom(in, report)
	report.ExtrapolationCheck = checkExtrapolation(in, report)
	checkAssignmentQuality(in, report)
	report.ResidualCheck = checkResiduals(in, th, report)
	report.ParameterCheck = checkPhysicalPlausibility(in, report)
	report.DeviationCheck = checkDeviation(in, th, report)

	return report
}

// checkDegreesOfFreedom: a fit with DoF <= 0 has no redundancy and its
// statistics are meaningless; exactly 1 leaves no margin.
func checkDegreesOfFreedom(in Input, report *Report) {
	switch dof := in.Stats.DegreesOfFreedom; {
	case dof <= 0:
		report.Valid = false
		report.Issues = append(report.Issues,
			fmt.Sprintf("fit has %d degrees of freedom; uncertainties are unreliable", dof))
	case dof == 1:
		report.Warnings = append(report.Warnings,
			"fit has only 1 degree of freedom; uncertainties are poorly constrained")
	}
}

// checkExtrapolation flags fitted conditions outside the measurement ranges
// of any participating sample. A zero-valued range means the database did not
// record one; nothing can be said about extrapolation then.
func checkExtrapolation(in Input, report *Report) CheckResult {
	result := CheckResult{Passed: true}
	unset := bufferdb.Range{}
	for id, sample := range in.Samples {
		r := sample.Ranges
		if r.PH != unset && !r.PH.Contains(in.Fitted.PH) {
			result.add(fmt.Sprintf("fitted pH %.2f outside measured range [%.2f, %.2f] of sample %s",
				in.Fitted.PH, r.PH.Min, r.PH.Max, id))
		}
		if r.TemperatureK != unset && !r.TemperatureK.Contains(in.Fitted.TempK) {
			result.add(fmt.Sprintf("fitted temperature %.1f K outside measured range [%.1f, %.1f] of sample %s",
				in.Fitted.TempK, r.TemperatureK.Min, r.TemperatureK.Max, id))
		}
		if r.IonicM != unset && !r.IonicM.Contains(in.Fitted.IonicM) {
			result.add(fmt.Sprintf("fitted ionic strength %.3f M outside measured range [%.3f, %.3f] of sample %s",
				in.Fitted.IonicM, r.IonicM.Min, r.IonicM.Max, id))
		}
	}
	report.Warnings = append(report.Warnings, result.Findings...)
	return result
}

// checkAssignmentQuality reports unassigned, low-confidence and ambiguous
// peaks.
func checkAssignmentQuality(in Input, report *Report) {
	_, unassigned, lowConfidence, ambiguous := in.Assignments.Counts()
	if unassigned > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d observed peak(s) could not be assigned", unassigned))
	}
	if lowConfidence > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d peak(s) assigned with low confidence", lowConfidence))
	}
	if ambiguous > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d peak(s) have ambiguous alternative assignments", ambiguous))
	}
}

// checkResiduals flags residual outliers by z-score against the fit RMSD.
func checkResiduals(in Input, th Thresholds, report *Report) CheckResult {
	result := CheckResult{Passed: true}
	rmsd := in.Stats.RMSD
	if rmsd <= 0 {
		return result
	}
	for _, p := range in.Assignments.All() {
		if !p.Assigned {
			continue
		}
		if z := math.Abs(p.Residual) / rmsd; z > th.ResidualZ {
			result.add(fmt.Sprintf("residual outlier on %s %.3f ppm (%s/%s): |z| = %.1f",
				p.Nucleus, p.ObservedShift, p.BufferID, p.ResonanceID, z))
		}
	}
	report.Warnings = append(report.Warnings, result.Findings...)
	return result
}

// checkPhysicalPlausibility flags fitted values outside the physically valid
// domain. The fit itself is still considered successful; these are warnings.
func checkPhysicalPlausibility(in Input, report *Report) CheckResult {
	result := CheckResult{Passed: true}
	if in.Fitted.PH < fitter.PHMin || in.Fitted.PH > fitter.PHMax {
		result.add(fmt.Sprintf("fitted pH %.2f outside physical range [%g, %g]",
			in.Fitted.PH, fitter.PHMin, fitter.PHMax))
	}
	if in.Fitted.TempK < fitter.TempMinK || in.Fitted.TempK > fitter.TempMaxK {
		result.add(fmt.Sprintf("fitted temperature %.1f K outside physical range [%g, %g]",
			in.Fitted.TempK, fitter.TempMinK, fitter.TempMaxK))
	}
	if in.Fitted.IonicM < 0 {
		result.add(fmt.Sprintf("fitted ionic strength %.3f M is negative", in.Fitted.IonicM))
	} else if in.Fitted.IonicM > fitter.IonicMax {
		result.add(fmt.Sprintf("fitted ionic strength %.3f M is unusually large (> %g M)",
			in.Fitted.IonicM, fitter.IonicMax))
	}
	report.Warnings = append(report.Warnings, result.Findings...)
	return result
}

// checkDeviation flags refined conditions that drifted far from their
// nominal values.
func checkDeviation(in Input, th Thresholds, report *Report) CheckResult {
	result := CheckResult{Passed: true}
	if d := math.Abs(in.Fitted.TempK - in.Nominal.TempK); d > th.TemperatureDeviationK {
		result.add(fmt.Sprintf("fitted temperature deviates %.1f K from nominal %.1f K",
			d, in.Nominal.TempK))
	}
	if d := math.Abs(in.Fitted.IonicM - in.Nominal.IonicM); d > th.IonicDeviationM {
		result.add(fmt.Sprintf("fitted ionic strength deviates %.3f M from nominal %.3f M",
			d, in.Nominal.IonicM))
	}
	report.Warnings = append(report.Warnings, result.Findings...)
	return result
}

func (c *CheckResult) add(finding string) {
	c.Passed = false
	c.Findings = append(c.Findings, finding)
}
