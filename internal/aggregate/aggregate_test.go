package aggregate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pollsite-census/internal/census"
	"github.com/sells-group/pollsite-census/internal/pollsite"
	"github.com/sells-group/pollsite-census/internal/spatial"
)

func f64(v float64) *float64 { return &v }

func raceRow(geoid string, counts ...float64) *census.RaceRow {
	r := &census.RaceRow{GEOID: geoid}
	var total float64
	for i, c := range counts {
		r.Estimates[i] = f64(c)
		total += c
	}
	r.Total = f64(total)
	return r
}

func siteAt(num string) *spatial.SitePoint {
	return &spatial.SitePoint{Site: &pollsite.PollSite{SiteNumber: num, SiteName: "Site " + num}}
}

const all = spatial.FromTracts | spatial.FromRace | spatial.FromIncome

func fixture() []spatial.MergedRow {
	t1 := &census.Tract{GEOID: "36061000100", CountyFIPS: "061", Name: "Census Tract 1", Population: f64(2500)}
	t2 := &census.Tract{GEOID: "36061000200", CountyFIPS: "061", Name: "Census Tract 2", Population: f64(800)}
	r1 := raceRow("36061000100", 1000, 500, 0, 600, 0, 200, 100, 100)
	i1 := &census.IncomeRow{GEOID: "36061000100", IncomeToPoverty: f64(18.2)}
	return []spatial.MergedRow{
		{GEOID: t1.GEOID, Tract: t1, Site: siteAt("1"), Race: r1, Income: i1, Sources: all},
		{GEOID: t1.GEOID, Tract: t1, Site: siteAt("2"), Race: r1, Income: i1, Sources: all},
		{GEOID: t1.GEOID, Tract: t1, Site: siteAt("3"), Race: r1, Income: i1, Sources: all},
		{GEOID: t2.GEOID, Tract: t2, Sources: spatial.FromTracts},
		{GEOID: "36061999900", Income: &census.IncomeRow{GEOID: "36061999900"}, Sources: spatial.FromIncome},
	}
}

func TestSummarize(t *testing.T) {
	out, err := Summarize(fixture(), 3)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "36061000100", out[0].GEOID)
	assert.Equal(t, 3, out[0].PollSiteCount)
	assert.Equal(t, 2500.0, *out[0].Population)
	assert.Equal(t, 18.2, *out[0].IncomeToPoverty)
	assert.Equal(t, 2500.0, *out[0].RaceTotal)
	assert.InDelta(t, 40.0, *out[0].RacePercent[census.White], 1e-9)
	assert.InDelta(t, 24.0, *out[0].RacePercent[census.Asian], 1e-9)
	assert.True(t, out[0].HasTract())

	assert.Equal(t, 0, out[1].PollSiteCount)
	assert.Nil(t, out[1].RaceTotal)
	assert.Nil(t, out[1].RacePercent[census.White])

	assert.False(t, out[2].HasTract())
	assert.Nil(t, out[2].Population)
}

func TestSummarize_DistinctIDs(t *testing.T) {
	out, err := Summarize(fixture(), 3)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, s := range out {
		assert.False(t, seen[s.GEOID], "duplicate %s", s.GEOID)
		seen[s.GEOID] = true
	}
}

func TestSummarize_VaryingFieldIsError(t *testing.T) {
	rows := fixture()
	other := *rows[1].Tract
	other.Population = f64(9999)
	rows[1].Tract = &other

	_, err := Summarize(rows, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "differing population")

	rows = fixture()
	rows[2].Income = &census.IncomeRow{GEOID: rows[2].GEOID, IncomeToPoverty: f64(1)}
	_, err = Summarize(rows, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "income-to-poverty")
}

func TestSummarize_SiteCountMismatch(t *testing.T) {
	_, err := Summarize(fixture(), 4)
	require.Error(t, err)
	var inv *spatial.InvariantError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, 4, inv.Want)
	assert.Equal(t, 3, inv.Got)
}

func TestVerify_RaceShares(t *testing.T) {
	s := TractSummary{GEOID: "1", RaceTotal: f64(100)}
	for i := range s.RacePercent {
		s.RacePercent[i] = f64(10)
	}
	rows := []spatial.MergedRow{{GEOID: "1"}}
	err := Verify([]TractSummary{s}, rows, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "race shares")

	s.RacePercent[0] = f64(30)
	assert.NoError(t, Verify([]TractSummary{s}, rows, 0))
}

func TestVerify_RowCount(t *testing.T) {
	rows := []spatial.MergedRow{{GEOID: "1"}, {GEOID: "2"}}
	err := Verify([]TractSummary{{GEOID: "1"}}, rows, 0)
	var inv *spatial.InvariantError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, 2, inv.Want)
}
