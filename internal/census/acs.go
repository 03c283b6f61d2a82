package census

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pollsite-census/internal/fetcher"
)

// maxACSVariables is the API's limit on variables per request.
const maxACSVariables = 50

// ACSClient queries the ACS 5-year detailed tables for every tract of the
// configured counties.
type ACSClient struct {
	fetcher   fetcher.Fetcher
	baseURL   string
	year      int
	apiKey    string
	stateFIPS string
	counties  []string
}

// NewACSClient creates an ACS client.
func NewACSClient(f fetcher.Fetcher, baseURL string, year int, apiKey, stateFIPS string, counties []string) *ACSClient {
	return &ACSClient{
		fetcher:   f,
		baseURL:   strings.TrimRight(baseURL, "/"),
		year:      year,
		apiKey:    apiKey,
		stateFIPS: stateFIPS,
		counties:  counties,
	}
}

// QueryURL builds the request for the given "get" columns.
func (c *ACSClient) QueryURL(get []string) string {
	q := url.Values{}
	q.Set("get", strings.Join(get, ","))
	q.Set("for", "tract:*")
	q.Add("in", "state:"+c.stateFIPS)
	q.Add("in", "county:"+strings.Join(c.counties, ","))
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	return fmt.Sprintf("%s/%d/acs/acs5?%s", c.baseURL, c.year, q.Encode())
}

func (c *ACSClient) query(ctx context.Context, get []string) (*fetcher.JSONTable, error) {
	if len(get) > maxACSVariables {
		return nil, eris.Errorf("census: %d variables requested, limit is %d", len(get), maxACSVariables)
	}

	body, err := c.fetcher.Download(ctx, c.QueryURL(get))
	if err != nil {
		return nil, eris.Wrap(err, "census: acs request")
	}
	defer body.Close() //nolint:errcheck

	t, err := fetcher.ReadJSONTable(ctx, body)
	if err != nil {
		return nil, eris.Wrap(err, "census: decode acs response")
	}
	if err := t.Require(append([]string{"state", "county", "tract"}, get...)...); err != nil {
		return nil, eris.Wrap(err, "census: acs response")
	}

	zap.L().Debug("census: acs query",
		zap.Int("year", c.year),
		zap.Int("variables", len(get)),
		zap.Int("rows", len(t.Rows)),
	)
	return t, nil
}

// tractGEOID joins the state, county and tract cells of an API row.
func tractGEOID(t *fetcher.JSONTable, row []*string) string {
	var b strings.Builder
	for _, col := range []string{"state", "county", "tract"} {
		if v := t.Cell(row, col); v != nil {
			b.WriteString(*v)
		}
	}
	return b.String()
}

// Population fetches the total population estimate of every tract.
func (c *ACSClient) Population(ctx context.Context) ([]PopulationRow, error) {
	estimate := PopulationVariable + "E"
	t, err := c.query(ctx, []string{"NAME", estimate})
	if err != nil {
		return nil, err
	}

	out := make([]PopulationRow, 0, len(t.Rows))
	for _, row := range t.Rows {
		pop, err := parseEstimate(t.Cell(row, estimate))
		if err != nil {
			return nil, eris.Wrapf(err, "census: tract %s population", tractGEOID(t, row))
		}
		var name string
		if v := t.Cell(row, "NAME"); v != nil {
			name = *v
		}
		out = append(out, PopulationRow{GEOID: tractGEOID(t, row), Name: name, Population: pop})
	}
	return out, nil
}

// Demographics fetches estimates and margins of error for vars (codes
// without the E/M suffix) and melts them into one record per (tract,
// variable).
func (c *ACSClient) Demographics(ctx context.Context, vars []string) ([]DemographicRecord, error) {
	get := make([]string, 0, 2*len(vars))
	for _, v := range vars {
		get = append(get, v+"E", v+"M")
	}
	t, err := c.query(ctx, get)
	if err != nil {
		return nil, err
	}

	out := make([]DemographicRecord, 0, len(t.Rows)*len(vars))
	for _, row := range t.Rows {
		id := tractGEOID(t, row)
		for _, v := range vars {
			est, err := parseEstimate(t.Cell(row, v+"E"))
			if err != nil {
				return nil, eris.Wrapf(err, "census: tract %s %sE", id, v)
			}
			moe, err := parseEstimate(t.Cell(row, v+"M"))
			if err != nil {
				return nil, eris.Wrapf(err, "census: tract %s %sM", id, v)
			}
			out = append(out, DemographicRecord{GEOID: id, Variable: v, Estimate: est, MarginOfError: moe})
		}
	}
	return out, nil
}

// parseEstimate parses an ACS value. Null cells and the API's negative
// annotation sentinels (-666666666 and friends) are reported as nil.
func parseEstimate(s *string) (*float64, error) {
	if s == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || v == "null" || v == "N" || v == "(X)" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
	if err != nil {
		return nil, eris.Wrapf(err, "parse %q", v)
	}
	if f <= -100000000 {
		return nil, nil
	}
	return &f, nil
}
