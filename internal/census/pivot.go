package census

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// raceSumTolerance is the relative tolerance of the race-sum check.
const raceSumTolerance = 1e-6

// RaceRow is the race breakdown of one tract.
type RaceRow struct {
	GEOID     string
	Total     *float64
	Estimates [NumRaceCategories]*float64
}

// Percent returns the category's share of the tract total in percent. It is
// undefined when the total is missing or zero or the estimate is missing.
func (r RaceRow) Percent(c RaceCategory) (float64, bool) {
	e := r.Estimates[c]
	if r.Total == nil || *r.Total == 0 || e == nil {
		return 0, false
	}
	return *e / *r.Total * 100, true
}

// IncomeRow carries the income-to-poverty measure of one tract.
type IncomeRow struct {
	GEOID string
	// IncomeToPoverty is the percentage of the poverty-status universe with
	// an income-to-poverty ratio under 1.00; nil when the universe is zero or
	// an estimate is missing.
	IncomeToPoverty *float64
}

type cellKey struct{ geoid, variable string }

// collect indexes the records of one ACS table, rejecting duplicates and
// codes outside allowed.
func collect(records []DemographicRecord, prefix string, allowed map[string]bool) (map[cellKey]*float64, []string, error) {
	cells := make(map[cellKey]*float64)
	var ids []string
	seen := make(map[string]bool)
	for _, r := range records {
		if !strings.HasPrefix(r.Variable, prefix) {
			continue
		}
		if !allowed[r.Variable] {
			return nil, nil, eris.Errorf("census: unknown variable %s for tract %s", r.Variable, r.GEOID)
		}
		k := cellKey{r.GEOID, r.Variable}
		if _, dup := cells[k]; dup {
			return nil, nil, eris.Errorf("census: duplicate record for tract %s variable %s", r.GEOID, r.Variable)
		}
		cells[k] = r.Estimate
		if !seen[r.GEOID] {
			seen[r.GEOID] = true
			ids = append(ids, r.GEOID)
		}
	}
	sort.Strings(ids)
	return cells, ids, nil
}

// PivotRace reshapes the race records (table B02001) to one row per tract.
// Every tract must carry the total and every category exactly once; where
// all are present the categories must sum to the total.
func PivotRace(records []DemographicRecord) ([]RaceRow, error) {
	allowed := map[string]bool{RaceTotalVariable: true, RaceTwoOrMoreVariable: true}
	for _, c := range RaceCategories {
		allowed[c.Variable()] = true
	}
	cells, ids, err := collect(records, raceTablePrefix, allowed)
	if err != nil {
		return nil, err
	}

	rows := make([]RaceRow, 0, len(ids))
	for _, id := range ids {
		total, ok := cells[cellKey{id, RaceTotalVariable}]
		if !ok {
			return nil, eris.Errorf("census: tract %s has no %s record", id, RaceTotalVariable)
		}
		row := RaceRow{GEOID: id, Total: total}
		var sum float64
		complete := total != nil
		for _, c := range RaceCategories {
			e, ok := cells[cellKey{id, c.Variable()}]
			if !ok {
				return nil, eris.Errorf("census: tract %s has no %s record", id, c.Variable())
			}
			row.Estimates[c] = e
			if e == nil {
				complete = false
				continue
			}
			sum += *e
		}
		if complete && math.Abs(sum-*total) > raceSumTolerance*math.Max(1, math.Abs(*total)) {
			return nil, eris.Errorf("census: tract %s race categories sum to %g, total is %g", id, sum, *total)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// IncomeTable reduces the poverty-ratio records (table C17002) to one row per
// tract: (under 0.50 + 0.50 to 0.99) / universe × 100.
func IncomeTable(records []DemographicRecord) ([]IncomeRow, error) {
	allowed := make(map[string]bool, 8)
	for i := 1; i <= 8; i++ {
		allowed[fmt.Sprintf("%s%03d", povertyTablePrefix, i)] = true
	}
	cells, ids, err := collect(records, povertyTablePrefix, allowed)
	if err != nil {
		return nil, err
	}

	rows := make([]IncomeRow, 0, len(ids))
	for _, id := range ids {
		var vals [3]*float64
		for i, v := range []string{PovertyUniverse, PovertyUnder050, Poverty050To099} {
			e, ok := cells[cellKey{id, v}]
			if !ok {
				return nil, eris.Errorf("census: tract %s has no %s record", id, v)
			}
			vals[i] = e
		}
		row := IncomeRow{GEOID: id}
		if vals[0] != nil && vals[1] != nil && vals[2] != nil && *vals[0] > 0 {
			ratio := (*vals[1] + *vals[2]) / *vals[0] * 100
			row.IncomeToPoverty = &ratio
		}
		rows = append(rows, row)
	}
	return rows, nil
}
