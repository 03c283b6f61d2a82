// Package tigertest writes small TIGER/Line-shaped shapefiles for tests.
package tigertest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

// PRJNAD83 is the .prj content shipped with TIGER/Line files.
const PRJNAD83 = `GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137,298.257222101]],PRIMEM["Greenwich",0],UNIT["Degree",0.017453292519943295]]`

// PRJWGS84 is a WGS84 geographic .prj.
const PRJWGS84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["Degree",0.017453292519943295]]`

// Tract is a tract record to write. Rings are closed lon/lat rings; outer
// rings clockwise, holes counter-clockwise.
type Tract struct {
	GEOID string
	Rings [][]shp.Point
}

// Square returns a closed clockwise ring.
func Square(minX, minY, maxX, maxY float64) []shp.Point {
	return []shp.Point{
		{X: minX, Y: minY}, {X: minX, Y: maxY}, {X: maxX, Y: maxY}, {X: maxX, Y: minY}, {X: minX, Y: minY},
	}
}

// Reverse returns ring with its winding flipped.
func Reverse(ring []shp.Point) []shp.Point {
	out := make([]shp.Point, len(ring))
	for i, p := range ring {
		out[len(ring)-1-i] = p
	}
	return out
}

// WriteShapefile writes name.shp/.shx/.dbf (and name.prj when prj is not
// empty) into dir and returns the .shp path.
func WriteShapefile(t testing.TB, dir, name string, tracts []Tract, prj string) string {
	t.Helper()
	shpPath := filepath.Join(dir, name+".shp")

	w, err := shp.Create(shpPath, shp.POLYGON)
	require.NoError(t, err)

	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("STATEFP", 2),
		shp.StringField("COUNTYFP", 3),
		shp.StringField("TRACTCE", 6),
		shp.StringField("GEOID", 11),
		shp.StringField("NAME", 7),
		shp.StringField("NAMELSAD", 20),
		shp.StringField("ALAND", 14),
		shp.StringField("AWATER", 14),
	}))

	for i, tr := range tracts {
		poly := shp.Polygon(*shp.NewPolyLine(tr.Rings))
		w.Write(&poly)

		tractCE := tr.GEOID[5:]
		label := strings.TrimLeft(tractCE[:4], "0")
		if suffix := strings.TrimLeft(tractCE[4:], "0"); suffix != "" {
			label += "." + tractCE[4:]
		}
		values := []string{
			tr.GEOID[:2], tr.GEOID[2:5], tractCE, tr.GEOID,
			label, "Census Tract " + label, "100000", "0",
		}
		for f, v := range values {
			require.NoError(t, w.WriteAttribute(i, f, v))
		}
	}
	w.Close()

	if prj != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".prj"), []byte(prj), 0o600))
	}
	return shpPath
}
