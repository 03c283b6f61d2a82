// Package tiger downloads Census TIGER/Line tract shapefiles and reads their
// polygons into go-geom geometries.
package tiger

import (
	"fmt"
	"strings"
)

// TractURL returns the TIGER/Line census tract archive for one state, e.g.
// https://www2.census.gov/geo/tiger/TIGER2021/TRACT/tl_2021_36_tract.zip.
func TractURL(base string, year int, stateFIPS string) string {
	return fmt.Sprintf("%s/TIGER%d/TRACT/tl_%d_%s_tract.zip",
		strings.TrimRight(base, "/"), year, year, stateFIPS)
}
