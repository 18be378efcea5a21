// Package nucleus provides typed identifiers for the NMR-observable nuclei the
// engine understands, spelling normalization for database and caller input,
// and the default peak-match tolerances per nucleus.
package nucleus

import "strings"

// Nucleus identifies an NMR-observable nucleus type.
//
// Values use the conventional isotope-first spelling ("1H", "13C"). They are
// redefined locally as typed constants rather than plain strings so that
// observation maps and tolerance tables are keyed consistently across the
// engine.
type Nucleus string

const (
	// Proton is the 1H nucleus.
	Proton Nucleus = "1H"
	// Carbon13 is the 13C nucleus.
	Carbon13 Nucleus = "13C"
	// Nitrogen15 is the 15N nucleus.
	Nitrogen15 Nucleus = "15N"
	// Phosphorus31 is the 31P nucleus.
	Phosphorus31 Nucleus = "31P"
	// Fluorine19 is the 19F nucleus.
	Fluorine19 Nucleus = "19F"
	// Unknown indicates a nucleus spelling that could not be recognized.
	Unknown Nucleus = "unknown"
)

// Default peak-match tolerances in ppm. Proton shifts span a narrow range so
// the tolerance is tight; heteronuclei spread over tens to hundreds of ppm.
const (
	DefaultProtonTolerance   = 0.5
	DefaultHeteroTolerance   = 2.0
	DefaultFluorineTolerance = 3.0
)

// spellings maps accepted input spellings (lower-cased) to nuclei. Both
// isotope-first and element-first forms are accepted, as are common names.
var spellings = map[string]Nucleus{
	"1h": Proton, "h1": Proton, "h": Proton, "proton": Proton,
	"13c": Carbon13, "c13": Carbon13, "c": Carbon13, "carbon": Carbon13,
	"15n": Nitrogen15, "n15": Nitrogen15, "n": Nitrogen15, "nitrogen": Nitrogen15,
	"31p": Phosphorus31, "p31": Phosphorus31, "p": Phosphorus31, "phosphorus": Phosphorus31,
	"19f": Fluorine19, "f19": Fluorine19, "f": Fluorine19, "fluorine": Fluorine19,
}

// Parse normalizes a nucleus spelling. It returns Unknown and false when the
// spelling is not recognized.
func Parse(s string) (Nucleus, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	if n, ok := spellings[key]; ok {
		return n, true
	}
	return Unknown, false
}

// All returns the supported nuclei in a fixed, deterministic order.
func All() []Nucleus {
	return []Nucleus{Proton, Carbon13, Nitrogen15, Phosphorus31, Fluorine19}
}

// DefaultTolerance returns the default peak-match tolerance for n in ppm.
func DefaultTolerance(n Nucleus) float64 {
	switch n {
	case Proton:
		return DefaultProtonTolerance
	case Fluorine19:
		return DefaultFluorineTolerance
	case Carbon13, Nitrogen15, Phosphorus31:
		return DefaultHeteroTolerance
	default:
		return DefaultHeteroTolerance
	}
}
