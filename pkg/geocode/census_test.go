package geocode

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCensusSingleGeocode_Success(t *testing.T) {
	var gotAddress string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAddress = r.URL.Query().Get("address")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"result": {
				"addressMatches": [{
					"coordinates": {"x": -73.9447, "y": 40.8194},
					"matchedAddress": "301 W 140TH ST, NEW YORK, NY, 10030"
				}]
			}
		}`)
	}))
	defer srv.Close()

	g := &geocoder{
		httpClient: newRewriteClient(srv.URL, censusOneLineURL),
		limiter:    newTestLimiter(),
	}

	result, err := g.geocodeCensus(context.Background(), AddressInput{
		Line: "301 W 140th St, New York, NY 10030",
	})
	require.NoError(t, err)
	assert.Equal(t, "301 W 140th St, New York, NY 10030", gotAddress)
	assert.True(t, result.Matched)
	assert.InDelta(t, 40.8194, result.Latitude, 0.0001)
	assert.InDelta(t, -73.9447, result.Longitude, 0.0001)
	assert.Equal(t, SourceCensus, result.Source)
	assert.Equal(t, "rooftop", result.Quality)
	assert.Equal(t, "301 W 140TH ST, NEW YORK, NY, 10030", result.MatchedAddress)
}

func TestCensusSingleGeocode_SeveralCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"result": {"addressMatches": [
			{"coordinates": {"x": -73.98, "y": 40.75}, "matchedAddress": "100 BROADWAY, NEW YORK, NY, 10005"},
			{"coordinates": {"x": -73.95, "y": 40.70}, "matchedAddress": "100 BROADWAY, BROOKLYN, NY, 11249"}
		]}}`)
	}))
	defer srv.Close()

	g := &geocoder{httpClient: newRewriteClient(srv.URL, censusOneLineURL), limiter: newTestLimiter()}

	result, err := g.geocodeCensus(context.Background(), AddressInput{Line: "100 Broadway, NY"})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "approximate", result.Quality)
	assert.Equal(t, "100 BROADWAY, NEW YORK, NY, 10005", result.MatchedAddress)
}

func TestCensusBatchRows(t *testing.T) {
	rows := censusBatchRows([]AddressInput{
		{ID: "a", Line: "1 Centre St, New York, NY 10007"},
		{ID: "b", Street: "301 W 140th St", City: "New York", State: "NY", ZipCode: "10030"},
		{ID: "c", Line: "100 144th St, Queens, NY 11435", Street: " 100 144th St", City: "Queens", State: "NY", ZipCode: "11435 "},
	})
	assert.Equal(t, censusBatchRow{ID: "a", Street: "1 Centre St, New York, NY 10007"}, rows[0])
	assert.Equal(t, censusBatchRow{ID: "b", Street: "301 W 140th St", City: "New York", State: "NY", Zip: "10030"}, rows[1])
	assert.Equal(t, censusBatchRow{ID: "c", Street: "100 144th St", City: "Queens", State: "NY", Zip: "11435"}, rows[2])
}

func TestCensusBatchForm_UploadsStructuredColumns(t *testing.T) {
	form, contentType, err := censusBatchForm([]AddressInput{
		{ID: "0", Line: "100 144th St, Queens, NY 11435", Street: "100 144th St", City: "Queens", State: "NY", ZipCode: "11435"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, censusBatchURL, form)
	req.Header.Set("Content-Type", contentType)
	require.NoError(t, req.ParseMultipartForm(1<<20))
	f, _, err := req.FormFile("addressFile")
	require.NoError(t, err)
	uploaded, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, uploaded, 1)
	assert.Equal(t, []string{"0", "100 144th St", "Queens", "NY", "11435"}, uploaded[0])
}

func TestCensusSingleGeocode_NoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"result": {"addressMatches": []}}`)
	}))
	defer srv.Close()

	g := &geocoder{
		httpClient: newRewriteClient(srv.URL, censusOneLineURL),
		limiter:    newTestLimiter(),
	}

	result, err := g.geocodeCensus(context.Background(), AddressInput{
		Street: "123 Nowhere St", City: "Faketown", State: "NY", ZipCode: "00000",
	})
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Equal(t, SourceCensus, result.Source)
}

func TestCensusSingleGeocode_EmptyAddressSkipsRequest(t *testing.T) {
	g := &geocoder{
		httpClient: &http.Client{Transport: failingTransport{}},
		limiter:    newTestLimiter(),
	}
	result, err := g.geocodeCensus(context.Background(), AddressInput{})
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestCensusSingleGeocode_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := &geocoder{
		httpClient: newRewriteClient(srv.URL, censusOneLineURL),
		limiter:    newTestLimiter(),
	}
	_, err := g.geocodeCensus(context.Background(), AddressInput{Line: "1 Main St, Queens, NY 11101"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestCensusBatch_MixedResults(t *testing.T) {
	var uploaded [][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, censusBenchmark, r.FormValue("benchmark"))
		f, _, err := r.FormFile("addressFile")
		require.NoError(t, err)
		uploaded, err = csv.NewReader(f).ReadAll()
		require.NoError(t, err)

		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, `"0","301 W 140th St, New York, NY, 10030","Match","Exact","301 W 140TH ST, NEW YORK, NY, 10030","-73.9447,40.8194","123","L"
"1","123 Nowhere St, Faketown, NY, 00000","No_Match"`)
	}))
	defer srv.Close()

	g := &geocoder{
		httpClient: newRewriteClient(srv.URL, censusBatchURL),
		limiter:    newTestLimiter(),
	}

	addrs := []AddressInput{
		{ID: "0", Street: "301 W 140th St", City: "New York", State: "NY", ZipCode: "10030"},
		{ID: "1", Street: "123 Nowhere St, Rear", City: "Faketown", State: "NY", ZipCode: "00000"},
	}

	results, err := g.batchGeocodeCensus(context.Background(), addrs)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Commas inside a field survive as one quoted CSV cell.
	require.Len(t, uploaded, 2)
	assert.Equal(t, []string{"1", "123 Nowhere St, Rear", "Faketown", "NY", "00000"}, uploaded[1])

	assert.True(t, results[0].Matched)
	assert.InDelta(t, 40.8194, results[0].Latitude, 0.0001)
	assert.InDelta(t, -73.9447, results[0].Longitude, 0.0001)
	assert.Equal(t, SourceCensus, results[0].Source)
	assert.Equal(t, "rooftop", results[0].Quality)

	assert.False(t, results[1].Matched)
}

func TestParseCensusBatchResponse(t *testing.T) {
	body := `"0","input addr","Match","Non_Exact","matched","-73.9857,40.7484","999","R"
"1","input addr","No_Match"
"2","input addr","Tie"
"7","unknown id","Match","Exact","x","-70,40","1","L"`

	idToIdx := map[string]int{"0": 0, "1": 1, "2": 2}
	results, err := parseCensusBatchResponse([]byte(body), idToIdx, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Matched)
	assert.Equal(t, "range", results[0].Quality) // Non_Exact -> range
	assert.InDelta(t, 40.7484, results[0].Latitude, 0.0001)
	assert.InDelta(t, -73.9857, results[0].Longitude, 0.0001)

	assert.False(t, results[1].Matched)
	// Absent from the response: unmatched, not dropped.
	assert.False(t, results[2].Matched)
	assert.Equal(t, SourceCensus, results[2].Source)
}

func TestParseCensusCoords_Invalid(t *testing.T) {
	_, _, err := parseCensusCoords("nope")
	assert.Error(t, err)
	_, _, err = parseCensusCoords("x,1")
	assert.Error(t, err)
}

func TestFormatOneLine(t *testing.T) {
	tests := []struct {
		addr     AddressInput
		expected string
	}{
		{
			AddressInput{Street: "301 W 140th St", City: "New York", State: "NY", ZipCode: "10030"},
			"301 W 140th St, New York, NY, 10030",
		},
		{
			AddressInput{Street: "490 Riverside Dr", City: "New York", State: "NY"},
			"490 Riverside Dr, New York, NY",
		},
		{
			AddressInput{City: "Bronx", State: "NY", ZipCode: "10451"},
			"Bronx, NY, 10451",
		},
		{
			AddressInput{Line: " 1 Centre St, New York, NY 10007 ", Street: "ignored"},
			"1 Centre St, New York, NY 10007",
		},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatOneLine(tt.addr))
	}
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, io.ErrUnexpectedEOF
}
