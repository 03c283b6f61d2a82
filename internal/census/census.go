// Package census loads American Community Survey estimates and TIGER/Line
// tract polygons for the configured counties, and reshapes the demographic
// extract into one row per tract.
package census

import (
	"strings"

	"github.com/twpayne/go-geom"
)

// Tract is a census tract with its population estimate and polygon.
type Tract struct {
	GEOID      string
	CountyFIPS string
	Name       string
	Population *float64 // nil when the ACS estimate is unavailable
	Geometry   *geom.MultiPolygon
}

// PopulationRow is one tract of the population extract.
type PopulationRow struct {
	GEOID      string
	Name       string
	Population *float64
}

// DemographicRecord is one (tract, variable) cell of the long-format
// demographic extract. Variable is the ACS code without its E/M suffix,
// e.g. "B02001_002".
type DemographicRecord struct {
	GEOID         string
	Variable      string
	Estimate      *float64
	MarginOfError *float64
}

// PopulationVariable is the ACS total population estimate.
const PopulationVariable = "B01003_001"

// NormalizeGEOID strips a summary-level prefix such as "1400000US" from a
// geography id.
func NormalizeGEOID(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.Index(id, "US"); i >= 0 {
		return id[i+2:]
	}
	return id
}
