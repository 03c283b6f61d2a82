package spatial

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pollsite-census/internal/census"
)

// Sources flags which inputs contributed a GEOID.
type Sources uint8

const (
	FromTracts Sources = 1 << iota
	FromRace
	FromIncome
)

// Has reports whether every flag in f is set.
func (s Sources) Has(f Sources) bool { return s&f == f }

func (s Sources) String() string {
	var parts []string
	if s.Has(FromTracts) {
		parts = append(parts, "tracts")
	}
	if s.Has(FromRace) {
		parts = append(parts, "race")
	}
	if s.Has(FromIncome) {
		parts = append(parts, "income")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// MergedRow is one row of the tract join with demographics attached. Rows
// for ids missing from the tract layer have a nil Tract and Site.
type MergedRow struct {
	GEOID   string
	Tract   *census.Tract
	Site    *SitePoint
	Race    *census.RaceRow
	Income  *census.IncomeRow
	Sources Sources
}

// Coverage counts distinct GEOIDs by the combination of inputs they came from.
type Coverage map[Sources]int

// Keys returns the populated combinations in flag order.
func (c Coverage) Keys() []Sources {
	keys := make([]Sources, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
	return keys
}

// MergeDemographics full-outer-joins the tract rows with the race and income
// tables by GEOID. Tract rows keep their multiplicity and order; ids found
// only in race or income follow, one row each, sorted by GEOID.
func MergeDemographics(rows []JoinedRow, race []census.RaceRow, income []census.IncomeRow) ([]MergedRow, Coverage, error) {
	raceBy := make(map[string]*census.RaceRow, len(race))
	for i := range race {
		id := race[i].GEOID
		if _, dup := raceBy[id]; dup {
			return nil, nil, eris.Errorf("spatial: duplicate race row for tract %s", id)
		}
		raceBy[id] = &race[i]
	}
	incomeBy := make(map[string]*census.IncomeRow, len(income))
	for i := range income {
		id := income[i].GEOID
		if _, dup := incomeBy[id]; dup {
			return nil, nil, eris.Errorf("spatial: duplicate income row for tract %s", id)
		}
		incomeBy[id] = &income[i]
	}

	sources := make(map[string]Sources)
	for _, r := range rows {
		sources[r.Tract.GEOID] |= FromTracts
	}
	for id := range raceBy {
		sources[id] |= FromRace
	}
	for id := range incomeBy {
		sources[id] |= FromIncome
	}

	out := make([]MergedRow, 0, len(rows))
	for _, r := range rows {
		id := r.Tract.GEOID
		out = append(out, MergedRow{
			GEOID:   id,
			Tract:   r.Tract,
			Site:    r.Site,
			Race:    raceBy[id],
			Income:  incomeBy[id],
			Sources: sources[id],
		})
	}

	var extra []string
	for id, s := range sources {
		if !s.Has(FromTracts) {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		out = append(out, MergedRow{
			GEOID:   id,
			Race:    raceBy[id],
			Income:  incomeBy[id],
			Sources: sources[id],
		})
	}

	cov := make(Coverage)
	for _, s := range sources {
		cov[s]++
	}

	if err := verifyMerge(rows, race, income, out); err != nil {
		return nil, cov, err
	}

	log := zap.L().With(zap.String("component", "spatial"))
	for _, k := range cov.Keys() {
		log.Info("merge coverage", zap.String("sources", k.String()), zap.Int("tracts", cov[k]))
	}
	return out, cov, nil
}

// verifyMerge checks out against the inputs alone: tract rows come first
// and unchanged, one extra row follows for every race or income id with no
// tract row, and the ids in out are exactly the union of input ids.
func verifyMerge(rows []JoinedRow, race []census.RaceRow, income []census.IncomeRow, out []MergedRow) error {
	union := make(map[string]struct{}, len(rows))
	tractIDs := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		tractIDs[r.Tract.GEOID] = struct{}{}
		union[r.Tract.GEOID] = struct{}{}
	}
	others := make(map[string]struct{})
	for _, r := range race {
		union[r.GEOID] = struct{}{}
		if _, ok := tractIDs[r.GEOID]; !ok {
			others[r.GEOID] = struct{}{}
		}
	}
	for _, r := range income {
		union[r.GEOID] = struct{}{}
		if _, ok := tractIDs[r.GEOID]; !ok {
			others[r.GEOID] = struct{}{}
		}
	}

	if want := len(rows) + len(others); len(out) != want {
		return &InvariantError{Check: "merged rows == tract rows + non-tract ids", Want: want, Got: len(out)}
	}
	for i, r := range rows {
		if out[i].Tract != r.Tract || out[i].Site != r.Site {
			return &InvariantError{Check: "tract rows kept in order", Want: i, Got: -1, Detail: r.Tract.GEOID}
		}
	}
	seen := make(map[string]struct{}, len(union))
	for _, r := range out[len(rows):] {
		if _, ok := others[r.GEOID]; !ok || r.Tract != nil {
			return &InvariantError{Check: "extra rows only for ids without tracts", Want: 0, Got: 1, Detail: r.GEOID}
		}
		if _, dup := seen[r.GEOID]; dup {
			return &InvariantError{Check: "one extra row per id", Want: 1, Got: 2, Detail: r.GEOID}
		}
		seen[r.GEOID] = struct{}{}
	}
	for _, r := range out {
		seen[r.GEOID] = struct{}{}
	}
	if len(seen) != len(union) {
		return &InvariantError{Check: "merged ids == union of input ids", Want: len(union), Got: len(seen)}
	}
	return nil
}
