package census

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pollsite-census/internal/fetcher"
)

func newTestACS(t *testing.T, handler http.HandlerFunc) *ACSClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewACSClient(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{}), srv.URL+"/data/", 2021, "k3y", "36", []string{"005", "047"})
}

func TestQueryURL(t *testing.T) {
	c := NewACSClient(nil, "https://api.census.gov/data", 2021, "", "36", []string{"005", "047", "061", "081", "085"})
	u := c.QueryURL([]string{"NAME", "B01003_001E"})

	assert.True(t, strings.HasPrefix(u, "https://api.census.gov/data/2021/acs/acs5?"))
	assert.Contains(t, u, "get=NAME%2CB01003_001E")
	assert.Contains(t, u, "for=tract%3A%2A")
	assert.Contains(t, u, "in=state%3A36&in=county%3A005%2C047%2C061%2C081%2C085")
	assert.NotContains(t, u, "key=")
}

func TestACSPopulation(t *testing.T) {
	c := newTestACS(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/2021/acs/acs5", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "NAME,B01003_001E", q.Get("get"))
		assert.Equal(t, "tract:*", q.Get("for"))
		assert.Equal(t, []string{"state:36", "county:005,047"}, q["in"])
		assert.Equal(t, "k3y", q.Get("key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[["NAME","B01003_001E","state","county","tract"],
			["Census Tract 1, Bronx County, New York","3772","36","005","000100"],
			["Census Tract 2, Bronx County, New York","-666666666","36","005","000200"],
			["Census Tract 3, Kings County, New York",null,"36","047","000300"]]`))
	})

	rows, err := c.Population(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "36005000100", rows[0].GEOID)
	assert.Equal(t, "Census Tract 1, Bronx County, New York", rows[0].Name)
	require.NotNil(t, rows[0].Population)
	assert.InDelta(t, 3772, *rows[0].Population, 1e-9)
	assert.Nil(t, rows[1].Population)
	assert.Nil(t, rows[2].Population)
	assert.Equal(t, "36047000300", rows[2].GEOID)
}

func TestACSDemographics_Melts(t *testing.T) {
	c := newTestACS(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "B02001_001E,B02001_001M,C17002_001E,C17002_001M", r.URL.Query().Get("get"))
		_, _ = w.Write([]byte(`[["B02001_001E","B02001_001M","C17002_001E","C17002_001M","state","county","tract"],
			["100","12","90","-222222222","36","005","000100"],
			["200","15","180","20","36","047","000200"]]`))
	})

	records, err := c.Demographics(context.Background(), []string{"B02001_001", "C17002_001"})
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, "36005000100", records[0].GEOID)
	assert.Equal(t, "B02001_001", records[0].Variable)
	assert.InDelta(t, 100, *records[0].Estimate, 1e-9)
	assert.InDelta(t, 12, *records[0].MarginOfError, 1e-9)
	assert.Equal(t, "C17002_001", records[1].Variable)
	assert.Nil(t, records[1].MarginOfError)
	assert.Equal(t, "36047000200", records[3].GEOID)
}

func TestACS_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusInternalServerError, "", "census: acs request"},
		{"bad key", http.StatusOK, `<html>Invalid Key</html>`, "census: decode acs response"},
		{"empty", http.StatusOK, `[]`, "table has no header row"},
		{"missing column", http.StatusOK, `[["NAME","state","county","tract"]]`, `no column "B01003_001E"`},
		{"ragged row", http.StatusOK, `[["NAME","B01003_001E","state","county","tract"],["x","1","36"]]`, "has 3 cells"},
		{"bad number", http.StatusOK, `[["NAME","B01003_001E","state","county","tract"],["x","abc","36","005","000100"]]`, "tract 36005000100 population"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestACS(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Population(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestACS_TooManyVariables(t *testing.T) {
	c := NewACSClient(nil, "http://unused", 2021, "", "36", []string{"005"})
	vars := make([]string, 26)
	for i := range vars {
		vars[i] = "B00000_001"
	}
	_, err := c.Demographics(context.Background(), vars)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit is 50")
}

func TestParseEstimate(t *testing.T) {
	str := func(s string) *string { return &s }

	v, err := parseEstimate(str("1,234"))
	require.NoError(t, err)
	assert.InDelta(t, 1234, *v, 1e-9)

	for _, missing := range []*string{nil, str(""), str("null"), str("N"), str("(X)"), str("-666666666"), str("-999999999")} {
		v, err := parseEstimate(missing)
		require.NoError(t, err)
		assert.Nil(t, v)
	}

	v, err = parseEstimate(str("0"))
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Zero(t, *v)

	_, err = parseEstimate(str("twelve"))
	assert.Error(t, err)
}
