package census

import "fmt"

// RaceCategory is one mutually exclusive race group of ACS table B02001.
type RaceCategory int

// Race groups. The table's "two or more races" aggregate (B02001_008) is not
// a category: it is the sum of the last two.
const (
	White RaceCategory = iota
	Black
	AmericanIndian
	Asian
	PacificIslander
	OtherRace
	TwoOrMoreInclOther
	TwoOrMoreExclOther
)

// NumRaceCategories is the number of race groups.
const NumRaceCategories = 8

// RaceCategories lists every race group in column order.
var RaceCategories = [NumRaceCategories]RaceCategory{
	White, Black, AmericanIndian, Asian, PacificIslander, OtherRace, TwoOrMoreInclOther, TwoOrMoreExclOther,
}

// ACS variables of table B02001 (race) and C17002 (ratio of income to
// poverty level).
const (
	RaceTotalVariable     = "B02001_001"
	RaceTwoOrMoreVariable = "B02001_008"
	PovertyUniverse       = "C17002_001"
	PovertyUnder050       = "C17002_002"
	Poverty050To099       = "C17002_003"
	raceTablePrefix       = "B02001_"
	povertyTablePrefix    = "C17002_"
)

var raceInfo = [NumRaceCategories]struct {
	variable, column, label string
}{
	White:              {"B02001_002", "pct_white", "White alone"},
	Black:              {"B02001_003", "pct_black", "Black or African American alone"},
	AmericanIndian:     {"B02001_004", "pct_american_indian", "American Indian and Alaska Native alone"},
	Asian:              {"B02001_005", "pct_asian", "Asian alone"},
	PacificIslander:    {"B02001_006", "pct_pacific_islander", "Native Hawaiian and Other Pacific Islander alone"},
	OtherRace:          {"B02001_007", "pct_other_race", "Some other race alone"},
	TwoOrMoreInclOther: {"B02001_009", "pct_two_or_more_incl_other", "Two races including Some other race"},
	TwoOrMoreExclOther: {"B02001_010", "pct_two_or_more_excl_other", "Two races excluding Some other race, and three or more races"},
}

// Variable returns the ACS variable code of the category.
func (c RaceCategory) Variable() string { return raceInfo[c].variable }

// Column returns the output column name of the category's percentage.
func (c RaceCategory) Column() string { return raceInfo[c].column }

func (c RaceCategory) String() string {
	if c < 0 || int(c) >= NumRaceCategories {
		return fmt.Sprintf("RaceCategory(%d)", int(c))
	}
	return raceInfo[c].label
}

// RaceCategoryForVariable maps an ACS variable code to its category.
func RaceCategoryForVariable(v string) (RaceCategory, bool) {
	for _, c := range RaceCategories {
		if raceInfo[c].variable == v {
			return c, true
		}
	}
	return 0, false
}

// DemographicVariables lists the ACS variables of the demographic extract.
func DemographicVariables() []string {
	vars := []string{RaceTotalVariable}
	for _, c := range RaceCategories {
		vars = append(vars, c.Variable())
	}
	vars = append(vars, RaceTwoOrMoreVariable, PovertyUniverse, PovertyUnder050, Poverty050To099)
	return vars
}
