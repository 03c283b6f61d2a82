package pollsite

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Borough is one of the five New York City boroughs.
type Borough string

const (
	Manhattan    Borough = "Manhattan"
	Bronx        Borough = "Bronx"
	Brooklyn     Borough = "Brooklyn"
	Queens       Borough = "Queens"
	StatenIsland Borough = "Staten Island"
)

// Boroughs lists every borough in report order.
var Boroughs = []Borough{Manhattan, Bronx, Brooklyn, Queens, StatenIsland}

var titleCaser = cases.Title(language.English)

// boroughAliases maps lower-cased spellings found in city extracts.
var boroughAliases = map[string]Borough{
	"manhattan":     Manhattan,
	"new york":      Manhattan,
	"mn":            Manhattan,
	"bronx":         Bronx,
	"the bronx":     Bronx,
	"bx":            Bronx,
	"brooklyn":      Brooklyn,
	"kings":         Brooklyn,
	"bk":            Brooklyn,
	"queens":        Queens,
	"qn":            Queens,
	"staten island": StatenIsland,
	"richmond":      StatenIsland,
	"si":            StatenIsland,
}

// ParseBorough normalizes a borough name. Matching is case-insensitive.
func ParseBorough(s string) (Borough, error) {
	key := strings.ToLower(strings.Join(strings.Fields(s), " "))
	if b, ok := boroughAliases[key]; ok {
		return b, nil
	}
	return "", eris.Errorf("pollsite: unknown borough %q", s)
}

// CountyFIPS returns the three-digit county code of the borough.
func (b Borough) CountyFIPS() string {
	switch b {
	case Manhattan:
		return "061"
	case Bronx:
		return "005"
	case Brooklyn:
		return "047"
	case Queens:
		return "081"
	case StatenIsland:
		return "085"
	default:
		return ""
	}
}

// BoroughForCounty is the inverse of CountyFIPS.
func BoroughForCounty(fips string) (Borough, bool) {
	for _, b := range Boroughs {
		if b.CountyFIPS() == fips {
			return b, true
		}
	}
	return "", false
}

// Slug returns a file-name friendly form, e.g. "staten_island".
func (b Borough) Slug() string {
	return strings.ReplaceAll(strings.ToLower(string(b)), " ", "_")
}

// DisplayName title-cases an arbitrary borough spelling for report headings.
func DisplayName(s string) string {
	return titleCaser.String(strings.ToLower(strings.TrimSpace(s)))
}
