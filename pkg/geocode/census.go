package geocode

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

const (
	censusOneLineURL = "https://geocoding.geo.census.gov/geocoder/locations/onelineaddress"
	censusBatchURL   = "https://geocoding.geo.census.gov/geocoder/locations/addressbatch"
	censusBenchmark  = "Public_AR_Current"

	// censusBatchLimit is the most rows one batch upload may carry.
	censusBatchLimit = 10000
)

type censusOneLineResponse struct {
	Result struct {
		AddressMatches []struct {
			MatchedAddress string `json:"matchedAddress"`
			Coordinates    struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
			} `json:"coordinates"`
		} `json:"addressMatches"`
	} `json:"result"`
}

// geocodeCensus resolves one address with the Census one-line endpoint. A
// single candidate counts as rooftop; several candidates mean the address
// was ambiguous and the first is kept as approximate.
func (g *geocoder) geocodeCensus(ctx context.Context, addr AddressInput) (*Result, error) {
	line := formatOneLine(addr)
	if line == "" {
		return &Result{Source: SourceCensus}, nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: census rate limit")
	}

	q := url.Values{"address": {line}, "benchmark": {censusBenchmark}, "format": {"json"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, censusOneLineURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census build request")
	}
	body, err := g.send(req, "census")
	if err != nil {
		return nil, err
	}

	var resp censusOneLineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "geocode: census parse response")
	}
	matches := resp.Result.AddressMatches
	if len(matches) == 0 {
		return &Result{Source: SourceCensus}, nil
	}
	quality := "rooftop"
	if len(matches) > 1 {
		quality = "approximate"
	}
	m := matches[0]
	return &Result{
		Latitude:       m.Coordinates.Y,
		Longitude:      m.Coordinates.X,
		Source:         SourceCensus,
		Quality:        quality,
		MatchedAddress: m.MatchedAddress,
		Matched:        true,
	}, nil
}

// send performs req and returns the body of a 200 response.
func (g *geocoder) send(req *http.Request, provider string) ([]byte, error) {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: %s request", provider)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: %s returned status %d", provider, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: %s read body", provider)
	}
	return body, nil
}

// batchGeocodeCensus uploads addrs to the batch endpoint in chunks of at
// most censusBatchLimit rows. Results follow input order.
func (g *geocoder) batchGeocodeCensus(ctx context.Context, addrs []AddressInput) ([]Result, error) {
	results := make([]Result, 0, len(addrs))
	for chunk := range slices.Chunk(addrs, censusBatchLimit) {
		res, err := g.censusBatchChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		results = append(results, res...)
	}
	return results, nil
}

// censusBatchRow is one line of the batch upload. The endpoint takes no
// header row and expects exactly these five columns.
type censusBatchRow struct {
	ID     string `csv:"id"`
	Street string `csv:"street"`
	City   string `csv:"city"`
	State  string `csv:"state"`
	Zip    string `csv:"zip"`
}

// censusBatchRows prefers the structured parts of each address. An address
// given only as one line goes whole into the street column, which the
// endpoint parses as best it can.
func censusBatchRows(addrs []AddressInput) []censusBatchRow {
	rows := make([]censusBatchRow, len(addrs))
	for i, a := range addrs {
		if strings.TrimSpace(a.Street) == "" {
			rows[i] = censusBatchRow{ID: a.ID, Street: strings.TrimSpace(a.Line)}
			continue
		}
		rows[i] = censusBatchRow{
			ID:     a.ID,
			Street: strings.TrimSpace(a.Street),
			City:   strings.TrimSpace(a.City),
			State:  strings.TrimSpace(a.State),
			Zip:    strings.TrimSpace(a.ZipCode),
		}
	}
	return rows
}

// censusBatchForm renders the multipart upload for addrs.
func censusBatchForm(addrs []AddressInput) (*bytes.Buffer, string, error) {
	var csvBuf bytes.Buffer
	cw := csv.NewWriter(&csvBuf)
	enc := csvutil.NewEncoder(cw)
	enc.AutoHeader = false
	if err := enc.Encode(censusBatchRows(addrs)); err != nil {
		return nil, "", eris.Wrap(err, "geocode: census batch encode rows")
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, "", eris.Wrap(err, "geocode: census batch flush rows")
	}

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	if err := mw.WriteField("benchmark", censusBenchmark); err != nil {
		return nil, "", eris.Wrap(err, "geocode: census batch form")
	}
	part, err := mw.CreateFormFile("addressFile", "addresses.csv")
	if err != nil {
		return nil, "", eris.Wrap(err, "geocode: census batch form")
	}
	if _, err := csvBuf.WriteTo(part); err != nil {
		return nil, "", eris.Wrap(err, "geocode: census batch form")
	}
	if err := mw.Close(); err != nil {
		return nil, "", eris.Wrap(err, "geocode: census batch form")
	}
	return &form, mw.FormDataContentType(), nil
}

func (g *geocoder) censusBatchChunk(ctx context.Context, addrs []AddressInput) ([]Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: census batch rate limit")
	}
	form, contentType, err := censusBatchForm(addrs)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, censusBatchURL, form)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census batch build request")
	}
	req.Header.Set("Content-Type", contentType)

	body, err := g.send(req, "census batch")
	if err != nil {
		return nil, err
	}

	pos := make(map[string]int, len(addrs))
	for i, a := range addrs {
		pos[a.ID] = i
	}
	return parseCensusBatchResponse(body, pos, len(addrs))
}

// parseCensusBatchResponse reads the batch answer, one CSV line per input:
//
//	id, input address, Match|No_Match|Tie, Exact|Non_Exact, matched address, "lon,lat", tiger line id, side
//
// Only Match lines with readable coordinates resolve; everything else,
// including ids the response omits, stays unmatched.
func parseCensusBatchResponse(body []byte, pos map[string]int, total int) ([]Result, error) {
	results := make([]Result, total)
	for i := range results {
		results[i].Source = SourceCensus
	}

	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return results, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "geocode: census batch parse csv")
		}
		i, ok := pos[strings.TrimSpace(rec[0])]
		if !ok || len(rec) < 6 || !strings.EqualFold(strings.TrimSpace(rec[2]), "Match") {
			continue
		}
		lon, lat, err := parseCensusCoords(rec[5])
		if err != nil {
			continue
		}
		results[i] = Result{
			Latitude:       lat,
			Longitude:      lon,
			Source:         SourceCensus,
			Quality:        censusBatchQuality(rec[3]),
			MatchedAddress: rec[4],
			Matched:        true,
		}
	}
}

// censusBatchQuality maps the batch exactness column to a quality label.
func censusBatchQuality(exactness string) string {
	if strings.EqualFold(strings.TrimSpace(exactness), "exact") {
		return "rooftop"
	}
	return "range"
}

// parseCensusCoords parses the batch "lon,lat" cell.
func parseCensusCoords(cell string) (lon, lat float64, err error) {
	x, y, ok := strings.Cut(cell, ",")
	if !ok {
		return 0, 0, eris.Errorf("geocode: invalid census coords %q", cell)
	}
	if lon, err = strconv.ParseFloat(strings.TrimSpace(x), 64); err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse census lon")
	}
	if lat, err = strconv.ParseFloat(strings.TrimSpace(y), 64); err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse census lat")
	}
	return lon, lat, nil
}

// formatOneLine renders addr as one line: Line if set, otherwise the
// non-blank parts joined by commas.
func formatOneLine(addr AddressInput) string {
	if line := strings.TrimSpace(addr.Line); line != "" {
		return line
	}
	parts := []string{addr.Street, addr.City, addr.State, addr.ZipCode}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(slices.DeleteFunc(parts, func(s string) bool { return s == "" }), ", ")
}
