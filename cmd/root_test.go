package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/pollsite-census/internal/census"
	"github.com/sells-group/pollsite-census/internal/pipeline"
	"github.com/sells-group/pollsite-census/internal/quality"
	"github.com/sells-group/pollsite-census/internal/store"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"run", "check", "geocode", "tracts", "runs"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "pollsite-census", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestCommandFlags(t *testing.T) {
	for _, tc := range []struct {
		cmd  string
		flag string
		def  string
	}{
		{"run", "out", ""},
		{"run", "no-maps", "false"},
		{"run", "no-store", "false"},
		{"check", "census", "false"},
		{"geocode", "out", ""},
		{"runs", "limit", "20"},
	} {
		c, _, err := rootCmd.Find([]string{tc.cmd})
		require.NoError(t, err)
		f := c.Flags().Lookup(tc.flag)
		require.NotNil(t, f, "%s should have --%s", tc.cmd, tc.flag)
		assert.Equal(t, tc.def, f.DefValue)
	}
}

func TestFormatRunsList(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	formatRunsList(&buf, []store.Run{{
		ID: "0f8e7d6c-1111-2222-3333-444455556666", StartedAt: start, FinishedAt: start.Add(95 * time.Second),
		Tracts: 2168, Sites: 1201, RSquaredA: 0.1234, RSquaredB: 0.25,
	}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "RUN"))
	assert.Contains(t, lines[2], "0f8e7d6c")
	assert.NotContains(t, lines[2], "1111")
	assert.Contains(t, lines[2], "2024-03-01 09:30")
	assert.Contains(t, lines[2], "1m35s")
	assert.Contains(t, lines[2], "0.1234")
	assert.Contains(t, lines[2], "0.2500")
	assert.Contains(t, lines[2], "+0.1266")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0f8e7d6c", shortID("0f8e7d6c-1111-2222-3333-444455556666"))
	assert.Equal(t, "legacy", shortID("legacy"))
}

func TestPrintQuality(t *testing.T) {
	color.NoColor = true

	q := quality.Check("pollsites", []string{"SITE_NUMBER", "Latitude"}, [][]string{
		{"1", "40.7"}, {"1", "40.7"}, {"2", ""},
	})
	var buf bytes.Buffer
	printQuality(&buf, q)
	out := buf.String()
	assert.Contains(t, out, "pollsites: 3 rows")
	assert.Contains(t, out, "1 duplicate rows")
	assert.Contains(t, out, "Latitude")
	assert.NotContains(t, out, "SITE_NUMBER")
	assert.NotContains(t, out, "clean")

	buf.Reset()
	printQuality(&buf, quality.Check("pollsites", []string{"SITE_NUMBER"}, [][]string{{"1"}}))
	assert.Contains(t, buf.String(), "no duplicate rows")
	assert.Contains(t, buf.String(), "clean")
}

func TestPrintRecords(t *testing.T) {
	color.NoColor = true
	est := 10.0
	records := []census.DemographicRecord{
		{GEOID: "36061000100", Variable: "B02001_001", Estimate: &est},
		{GEOID: "36061000100", Variable: "B02001_001", Estimate: &est},
	}
	var buf bytes.Buffer
	printRecords(&buf, quality.CheckRecords(records))
	assert.Contains(t, buf.String(), "36061000100/B02001_001 appears 2 times")
}

func TestFormatTracts(t *testing.T) {
	pop := 4210.0
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(geom.NewPolygonFlat(geom.XY, []float64{0, 0, 0, 1, 1, 1, 0, 0}, []int{8})))

	var buf bytes.Buffer
	formatTracts(&buf, []census.Tract{
		{GEOID: "36061000100", CountyFIPS: "061", Name: "1", Population: &pop, Geometry: mp},
		{GEOID: "36061000200", CountyFIPS: "061", Name: "2"},
	})
	out := buf.String()
	assert.Contains(t, out, "36061000100  061")
	assert.Contains(t, out, "4210")
	assert.Contains(t, out, "2 tracts")
}

func TestFormatRunResult(t *testing.T) {
	var buf bytes.Buffer
	formatRunResult(&buf, &pipeline.Result{
		RunID:  "run-1",
		Phases: []pipeline.PhaseResult{{Name: pipeline.PhaseLoad, Duration: 1500 * time.Millisecond}},
		Files:  []string{"report/regression.txt"},
	})
	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "load")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "report/regression.txt")
}
