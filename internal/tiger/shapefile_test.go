package tiger

import (
	"os"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/pollsite-census/internal/tiger/tigertest"
)

func TestReadTracts_FiltersCounties(t *testing.T) {
	dir := t.TempDir()
	path := tigertest.WriteShapefile(t, dir, "tl_2021_36_tract", []tigertest.Tract{
		{GEOID: "36005000100", Rings: [][]shp.Point{tigertest.Square(-73.9, 40.8, -73.8, 40.9)}},
		{GEOID: "36061000201", Rings: [][]shp.Point{tigertest.Square(-74.0, 40.7, -73.9, 40.8)}},
		{GEOID: "36001000100", Rings: [][]shp.Point{tigertest.Square(-73.8, 42.6, -73.7, 42.7)}},
	}, tigertest.PRJNAD83)

	tracts, err := ReadTracts(path, SRIDNAD83, []string{"005", "061"})
	require.NoError(t, err)
	require.Len(t, tracts, 2)

	assert.Equal(t, "36005000100", tracts[0].GEOID)
	assert.Equal(t, "36", tracts[0].StateFP)
	assert.Equal(t, "005", tracts[0].CountyFP)
	assert.Equal(t, "000100", tracts[0].TractCE)
	assert.Equal(t, "1", tracts[0].Name)
	assert.Equal(t, int64(100000), tracts[0].ALand)
	assert.Equal(t, SRIDNAD83, tracts[0].Geometry.SRID())
	assert.Equal(t, 1, tracts[0].Geometry.NumPolygons())

	assert.Equal(t, "2.01", tracts[1].Name)

	all, err := ReadTracts(path, SRIDNAD83, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestReadTracts_MissingFile(t *testing.T) {
	_, err := ReadTracts(t.TempDir()+"/nope.shp", SRIDNAD83, nil)
	require.Error(t, err)
}

func TestReadTracts_TruncatedShapefile(t *testing.T) {
	dir := t.TempDir()
	path := tigertest.WriteShapefile(t, dir, "tl_2021_36_tract", []tigertest.Tract{
		{GEOID: "36005000100", Rings: [][]shp.Point{tigertest.Square(-73.9, 40.8, -73.8, 40.9)}},
		{GEOID: "36005000200", Rings: [][]shp.Point{tigertest.Square(-73.8, 40.8, -73.7, 40.9)}},
	}, tigertest.PRJNAD83)

	// Cut the last record off in the middle of its points.
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-16))

	_, err = ReadTracts(path, SRIDNAD83, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read shapefile")
}

func TestPolygonToMultiPolygon_HoleAttachedToOuter(t *testing.T) {
	outer := tigertest.Square(0, 0, 10, 10)
	hole := tigertest.Reverse(tigertest.Square(2, 2, 4, 4))
	island := tigertest.Square(20, 20, 21, 21)

	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{outer, hole, island}))
	mp, err := PolygonToMultiPolygon(&poly, SRIDNAD83)
	require.NoError(t, err)
	require.NotNil(t, mp)

	assert.Equal(t, 2, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())
	assert.Equal(t, 1, mp.Polygon(1).NumLinearRings())
	assert.Equal(t, geom.XY, mp.Layout())
}

func TestPolygonToMultiPolygon_InvertedWinding(t *testing.T) {
	ccw := tigertest.Reverse(tigertest.Square(0, 0, 1, 1))
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{ccw}))

	mp, err := PolygonToMultiPolygon(&poly, SRIDWGS84)
	require.NoError(t, err)
	require.NotNil(t, mp)
	assert.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, SRIDWGS84, mp.SRID())
}

func TestPolygonToMultiPolygon_Empty(t *testing.T) {
	degenerate := shp.Polygon(*shp.NewPolyLine([][]shp.Point{{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 0}}}))
	for _, p := range []*shp.Polygon{nil, {}, &degenerate} {
		mp, err := PolygonToMultiPolygon(p, SRIDNAD83)
		require.NoError(t, err)
		assert.Nil(t, mp)
	}
}

func TestSignedArea(t *testing.T) {
	cw := []float64{0, 0, 0, 1, 1, 1, 1, 0, 0, 0}
	assert.InDelta(t, -1.0, signedArea(cw), 1e-12)
	ccw := []float64{0, 0, 1, 0, 1, 1, 0, 1, 0, 0}
	assert.InDelta(t, 1.0, signedArea(ccw), 1e-12)
}

func TestEncodeWKB(t *testing.T) {
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{tigertest.Square(0, 0, 1, 1)}))
	mp, err := PolygonToMultiPolygon(&poly, SRIDNAD83)
	require.NoError(t, err)

	data, err := EncodeWKB(mp)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, byte(1), data[0]) // NDR

	data, err = EncodeWKB(nil)
	require.NoError(t, err)
	assert.Nil(t, data)
}
