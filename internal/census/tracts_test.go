package census

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/pollsite-census/internal/tiger"
)

func shape(geoid string) tiger.TractShape {
	return tiger.TractShape{
		GEOID:    geoid,
		CountyFP: geoid[2:5],
		NameLSAD: "Census Tract " + geoid[5:],
		Geometry: geom.NewMultiPolygon(geom.XY).SetSRID(tiger.SRIDNAD83),
	}
}

func TestJoinPopulation(t *testing.T) {
	tracts, err := JoinPopulation(
		[]tiger.TractShape{shape("36085000200"), shape("36085000100")},
		[]PopulationRow{
			{GEOID: "36085000100", Name: "Census Tract 1, Richmond County", Population: f64(1200)},
			{GEOID: "36085000200", Population: nil},
		},
	)
	require.NoError(t, err)
	require.Len(t, tracts, 2)

	assert.Equal(t, "36085000100", tracts[0].GEOID)
	assert.Equal(t, "085", tracts[0].CountyFIPS)
	assert.Equal(t, "Census Tract 1, Richmond County", tracts[0].Name)
	assert.InDelta(t, 1200, *tracts[0].Population, 1e-9)

	assert.Equal(t, "Census Tract 000200", tracts[1].Name)
	assert.Nil(t, tracts[1].Population)
}

func TestJoinPopulation_Mismatch(t *testing.T) {
	_, err := JoinPopulation(
		[]tiger.TractShape{shape("36085000100"), shape("36085000300")},
		[]PopulationRow{{GEOID: "36085000100"}, {GEOID: "36085000200"}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 without population [36085000300]")
	assert.Contains(t, err.Error(), "1 without polygon [36085000200]")
}

func TestJoinPopulation_Duplicates(t *testing.T) {
	_, err := JoinPopulation(
		[]tiger.TractShape{shape("36085000100")},
		[]PopulationRow{{GEOID: "36085000100"}, {GEOID: "36085000100"}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate population row")

	_, err = JoinPopulation(
		[]tiger.TractShape{shape("36085000100"), shape("36085000100")},
		[]PopulationRow{{GEOID: "36085000100"}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tract polygon")
}

func TestNormalizeGEOID(t *testing.T) {
	assert.Equal(t, "36005000100", NormalizeGEOID("1400000US36005000100"))
	assert.Equal(t, "36005000100", NormalizeGEOID(" 36005000100 "))
}
