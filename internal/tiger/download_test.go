package tiger

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pollsite-census/internal/fetcher"
	"github.com/sells-group/pollsite-census/internal/tiger/tigertest"
)

// zipShapefile writes a tract shapefile and returns it zipped.
func zipShapefile(t *testing.T) []byte {
	t.Helper()
	dir := t.TempDir()
	tigertest.WriteShapefile(t, dir, "tl_2021_36_tract", []tigertest.Tract{
		{GEOID: "36085000100", Rings: [][]shp.Point{tigertest.Square(-74.2, 40.5, -74.1, 40.6)}},
	}, tigertest.PRJNAD83)

	zipPath := filepath.Join(t.TempDir(), "tract.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj"} {
		data, err := os.ReadFile(filepath.Join(dir, "tl_2021_36_tract"+ext))
		require.NoError(t, err)
		fw, err := w.Create("tl_2021_36_tract" + ext)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(zipPath)
	require.NoError(t, err)
	return data
}

func TestTractURL(t *testing.T) {
	assert.Equal(t,
		"https://www2.census.gov/geo/tiger/TIGER2021/TRACT/tl_2021_36_tract.zip",
		TractURL("https://www2.census.gov/geo/tiger/", 2021, "36"))
}

func TestDownload_Success(t *testing.T) {
	payload := zipShapefile(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dest := t.TempDir()
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
	files, err := Download(context.Background(), f, TractURL(srv.URL, 2021, "36"), dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "tl_2021_36_tract", "tl_2021_36_tract.shp"), files.Shp)
	assert.Equal(t, filepath.Join(dest, "tl_2021_36_tract", "tl_2021_36_tract.prj"), files.Prj)

	srid, err := SRIDFromPRJ(files.Prj)
	require.NoError(t, err)
	tracts, err := ReadTracts(files.Shp, srid, []string{"085"})
	require.NoError(t, err)
	require.Len(t, tracts, 1)
	assert.Equal(t, "36085000100", tracts[0].GEOID)

	// A second call reuses the archive already on disk.
	_, err = Download(context.Background(), f, TractURL(srv.URL, 2021, "36"), dest)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDownload_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dest := t.TempDir()
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
	_, err := Download(context.Background(), f, srv.URL+"/tl_2021_36_tract.zip", dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tiger: download shapefile")

	// No partial archive is left behind.
	_, statErr := os.Stat(filepath.Join(dest, "tl_2021_36_tract.zip"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownload_NotAnArchive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
	_, err := Download(context.Background(), f, srv.URL+"/tl_2021_36_tract.zip", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tiger: extract shapefile")

	_, err = Download(context.Background(), f, srv.URL+"/tl_2021_36_tract.html", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not name a .zip archive")
}

func TestLocalFiles(t *testing.T) {
	dir := t.TempDir()
	path := tigertest.WriteShapefile(t, dir, "tracts", []tigertest.Tract{
		{GEOID: "36047000100", Rings: [][]shp.Point{tigertest.Square(-74.0, 40.6, -73.9, 40.7)}},
	}, tigertest.PRJWGS84)

	files, err := LocalFiles(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tracts.prj"), files.Prj)

	_, err = LocalFiles(filepath.Join(dir, "tracts.dbf"))
	require.Error(t, err)

	noPrj := tigertest.WriteShapefile(t, t.TempDir(), "bare", []tigertest.Tract{
		{GEOID: "36047000100", Rings: [][]shp.Point{tigertest.Square(-74.0, 40.6, -73.9, 40.7)}},
	}, "")
	_, err = LocalFiles(noPrj)
	require.Error(t, err)
}

func TestParsePRJ(t *testing.T) {
	srid, err := ParsePRJ(tigertest.PRJNAD83)
	require.NoError(t, err)
	assert.Equal(t, SRIDNAD83, srid)

	srid, err = ParsePRJ(tigertest.PRJWGS84)
	require.NoError(t, err)
	assert.Equal(t, SRIDWGS84, srid)

	_, err = ParsePRJ(`PROJCS["NAD_1983_StatePlane_New_York_Long_Island_FIPS_3104_Feet",GEOGCS["GCS_North_American_1983"]]`)
	assert.Error(t, err)

	_, err = ParsePRJ(`GEOGCS["GCS_North_American_1983_HARN"]`)
	assert.Error(t, err)

	_, err = ParsePRJ("garbage")
	assert.Error(t, err)
}
