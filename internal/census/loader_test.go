package census

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pollsite-census/internal/config"
	"github.com/sells-group/pollsite-census/internal/fetcher"
	"github.com/sells-group/pollsite-census/internal/tiger"
	"github.com/sells-group/pollsite-census/internal/tiger/tigertest"
)

func testTracts() []tigertest.Tract {
	return []tigertest.Tract{
		{GEOID: "36005000100", Rings: [][]shp.Point{tigertest.Square(-73.90, 40.80, -73.85, 40.85)}},
		{GEOID: "36061000100", Rings: [][]shp.Point{tigertest.Square(-74.00, 40.70, -73.95, 40.75)}},
		{GEOID: "36001000100", Rings: [][]shp.Point{tigertest.Square(-73.80, 42.60, -73.75, 42.65)}},
	}
}

func testCensusConfig(t *testing.T) config.CensusConfig {
	return config.CensusConfig{
		Year:      2021,
		TigerYear: 2021,
		StateFIPS: "36",
		Counties:  []string{"005", "061"},
		TempDir:   t.TempDir(),
	}
}

func TestLoader_LocalFiles(t *testing.T) {
	cfg := testCensusConfig(t)
	cfg.TractsShapefile = tigertest.WriteShapefile(t, t.TempDir(), "tracts", testTracts(), tigertest.PRJNAD83)
	cfg.PopulationFile = writeFile(t, "pop.csv", "GEOID,POPULATION\n36005000100,1500\n36061000100,0\n36001000100,99\n")
	cfg.DemographicsFile = writeFile(t, "demo.csv", "GEOID,VARIABLE,ESTIMATE\n36005000100,C17002_001,10\n36001000100,C17002_001,10\n")

	l := NewLoader(cfg, fetcher.NewHTTPFetcher(fetcher.HTTPOptions{}))

	tracts, err := l.Tracts(context.Background())
	require.NoError(t, err)
	require.Len(t, tracts, 2)
	assert.Equal(t, "36005000100", tracts[0].GEOID)
	assert.InDelta(t, 1500, *tracts[0].Population, 1e-9)
	assert.Equal(t, tiger.SRIDNAD83, tracts[1].Geometry.SRID())

	records, err := l.Demographics(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "36005000100", records[0].GEOID)
}

func TestLoader_Remote(t *testing.T) {
	shpDir := t.TempDir()
	tigertest.WriteShapefile(t, shpDir, "tl_2021_36_tract", testTracts(), tigertest.PRJNAD83)
	var archive strings.Builder
	zw := zip.NewWriter(&archive)
	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj"} {
		data, err := os.ReadFile(filepath.Join(shpDir, "tl_2021_36_tract"+ext))
		require.NoError(t, err)
		fw, err := zw.Create("tl_2021_36_tract" + ext)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/tiger/TIGER2021/TRACT/tl_2021_36_tract.zip":
			_, _ = w.Write([]byte(archive.String()))
		case r.URL.Path == "/data/2021/acs/acs5" && strings.HasPrefix(r.URL.Query().Get("get"), "NAME"):
			_, _ = w.Write([]byte(`[["NAME","B01003_001E","state","county","tract"],
				["Tract 1, Bronx","1500","36","005","000100"],
				["Tract 1, New York","0","36","061","000100"]]`))
		case r.URL.Path == "/data/2021/acs/acs5":
			assert.Len(t, strings.Split(r.URL.Query().Get("get"), ","), 2*len(DemographicVariables()))
			_, _ = w.Write([]byte(`[["state","county","tract"]]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := testCensusConfig(t)
	cfg.BaseURL = srv.URL + "/data"
	cfg.TigerURL = srv.URL + "/tiger"

	l := NewLoader(cfg, fetcher.NewHTTPFetcher(fetcher.HTTPOptions{}))
	tracts, err := l.Tracts(context.Background())
	require.NoError(t, err)
	require.Len(t, tracts, 2)
	assert.Equal(t, "Tract 1, New York", tracts[1].Name)

	_, err = l.Demographics(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}

func TestLoader_NoTractsInCounties(t *testing.T) {
	cfg := testCensusConfig(t)
	cfg.Counties = []string{"085"}
	cfg.TractsShapefile = tigertest.WriteShapefile(t, t.TempDir(), "tracts", testTracts(), tigertest.PRJNAD83)

	_, err := NewLoader(cfg, fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})).Shapes(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tracts for counties")
}

func TestLoader_UnsupportedPRJ(t *testing.T) {
	cfg := testCensusConfig(t)
	cfg.TractsShapefile = tigertest.WriteShapefile(t, t.TempDir(), "tracts", testTracts(), `PROJCS["NAD_1983_StatePlane_New_York_Long_Island"]`)

	_, err := NewLoader(cfg, fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})).Shapes(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "projected")
}
