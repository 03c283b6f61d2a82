// Package aggregate collapses the merged tract/site table to one summary row
// per tract with its poll-site count.
package aggregate

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/pollsite-census/internal/census"
	"github.com/sells-group/pollsite-census/internal/spatial"
)

const raceSumTolerance = 1e-6

// TractSummary is one tract of the analysis table.
type TractSummary struct {
	GEOID           string
	CountyFIPS      string
	Name            string
	Population      *float64
	PollSiteCount   int
	IncomeToPoverty *float64
	RaceTotal       *float64
	// RacePercent is each race group's share of RaceTotal, indexed by
	// census.RaceCategory; nil where undefined.
	RacePercent [census.NumRaceCategories]*float64
	Sources     spatial.Sources
	Geometry    *geom.MultiPolygon
}

// HasTract reports whether the row came from the tract layer.
func (s TractSummary) HasTract() bool {
	return s.Sources.Has(spatial.FromTracts)
}

// Summarize groups merged rows by GEOID and counts the poll sites of each
// group. Every other field must be identical across a group. joinedSites is
// the number of sites the spatial join placed; the counts must add up to it.
// Output is sorted by GEOID.
func Summarize(rows []spatial.MergedRow, joinedSites int) ([]TractSummary, error) {
	groups := make(map[string]*TractSummary)
	first := make(map[string]spatial.MergedRow)
	for _, r := range rows {
		g, ok := groups[r.GEOID]
		if !ok {
			g = newSummary(r)
			groups[r.GEOID] = g
			first[r.GEOID] = r
		} else if field, same := sameAttributes(first[r.GEOID], r); !same {
			return nil, eris.Errorf("aggregate: tract %s has differing %s across its rows", r.GEOID, field)
		}
		if r.Site != nil {
			g.PollSiteCount++
		}
	}

	out := make([]TractSummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GEOID < out[j].GEOID })

	if err := Verify(out, rows, joinedSites); err != nil {
		return nil, err
	}

	zap.L().With(zap.String("component", "aggregate")).Info("summarized tracts",
		zap.Int("rows", len(rows)),
		zap.Int("tracts", len(out)),
		zap.Int("sites", joinedSites),
	)
	return out, nil
}

// Verify asserts the post-aggregation invariants: one row per distinct id,
// counts summing to the joined site total, and race groups summing to the
// race total.
func Verify(summaries []TractSummary, rows []spatial.MergedRow, joinedSites int) error {
	ids := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		ids[r.GEOID] = struct{}{}
	}
	if len(summaries) != len(ids) {
		return &spatial.InvariantError{Check: "summary rows == distinct tract ids", Want: len(ids), Got: len(summaries)}
	}

	total := 0
	for _, s := range summaries {
		total += s.PollSiteCount
	}
	if total != joinedSites {
		return &spatial.InvariantError{Check: "sum of poll-site counts == joined sites", Want: joinedSites, Got: total}
	}

	for _, s := range summaries {
		if s.RaceTotal == nil || *s.RaceTotal == 0 {
			continue
		}
		sum, complete := 0.0, true
		for _, p := range s.RacePercent {
			if p == nil {
				complete = false
				break
			}
			sum += *p
		}
		if complete && math.Abs(sum-100) > raceSumTolerance*100 {
			return eris.Errorf("aggregate: tract %s race shares sum to %g%%", s.GEOID, sum)
		}
	}
	return nil
}

func newSummary(r spatial.MergedRow) *TractSummary {
	s := &TractSummary{GEOID: r.GEOID, Sources: r.Sources}
	if r.Tract != nil {
		s.CountyFIPS = r.Tract.CountyFIPS
		s.Name = r.Tract.Name
		s.Population = r.Tract.Population
		s.Geometry = r.Tract.Geometry
	}
	if r.Income != nil {
		s.IncomeToPoverty = r.Income.IncomeToPoverty
	}
	if r.Race != nil {
		s.RaceTotal = r.Race.Total
		for _, c := range census.RaceCategories {
			if pct, ok := r.Race.Percent(c); ok {
				s.RacePercent[c] = &pct
			}
		}
	}
	return s
}

// sameAttributes compares the non-site fields of two rows of one group and
// names the first that differs.
func sameAttributes(a, b spatial.MergedRow) (string, bool) {
	if a.Sources != b.Sources {
		return "sources", false
	}
	if (a.Tract == nil) != (b.Tract == nil) {
		return "tract", false
	}
	if a.Tract != nil {
		if !equalPtr(a.Tract.Population, b.Tract.Population) {
			return "population", false
		}
		if a.Tract.Name != b.Tract.Name || a.Tract.CountyFIPS != b.Tract.CountyFIPS {
			return "tract name", false
		}
	}
	if (a.Income == nil) != (b.Income == nil) || (a.Income != nil && !equalPtr(a.Income.IncomeToPoverty, b.Income.IncomeToPoverty)) {
		return "income-to-poverty", false
	}
	if (a.Race == nil) != (b.Race == nil) {
		return "race", false
	}
	if a.Race != nil {
		if !equalPtr(a.Race.Total, b.Race.Total) {
			return "race total", false
		}
		for _, c := range census.RaceCategories {
			if !equalPtr(a.Race.Estimates[c], b.Race.Estimates[c]) {
				return c.Column(), false
			}
		}
	}
	return "", true
}

func equalPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
