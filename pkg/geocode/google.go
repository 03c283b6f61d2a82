package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

type googleResponse struct {
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
	Results      []googleResult `json:"results"`
}

type googleResult struct {
	FormattedAddress string `json:"formatted_address"`
	PartialMatch     bool   `json:"partial_match"`
	Geometry         struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
}

// geocodeGoogle resolves one address against the Google Geocoding API,
// restricted to the United States and, when set, the address's state.
func (g *geocoder) geocodeGoogle(ctx context.Context, addr AddressInput) (*Result, error) {
	if g.googleKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}
	line := formatOneLine(addr)
	if line == "" {
		return &Result{Source: SourceGoogle}, nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	components := "country:US"
	if st := strings.TrimSpace(addr.State); st != "" {
		components += "|administrative_area:" + st
	}
	params := url.Values{
		"address":    {line},
		"components": {components},
		"key":        {g.googleKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleGeocodeURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}

	body, err := g.send(req, "google")
	if err != nil {
		return nil, err
	}
	return parseGoogle(body)
}

// parseGoogle turns a Geocoding API response into a Result. ZERO_RESULTS is
// a miss; any other non-OK status is an error.
func parseGoogle(body []byte) (*Result, error) {
	var gr googleResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}

	switch gr.Status {
	case "OK":
	case "ZERO_RESULTS":
		return &Result{Source: SourceGoogle}, nil
	default:
		if gr.ErrorMessage != "" {
			return nil, eris.Errorf("geocode: google status %s: %s", gr.Status, gr.ErrorMessage)
		}
		return nil, eris.Errorf("geocode: google status %s", gr.Status)
	}
	if len(gr.Results) == 0 {
		return &Result{Source: SourceGoogle}, nil
	}

	top := gr.Results[0]
	quality := googleQuality(top.Geometry.LocationType)
	if top.PartialMatch {
		quality = "approximate"
	}
	return &Result{
		Latitude:       top.Geometry.Location.Lat,
		Longitude:      top.Geometry.Location.Lng,
		Source:         SourceGoogle,
		Quality:        quality,
		MatchedAddress: top.FormattedAddress,
		Matched:        true,
	}, nil
}

func googleQuality(locationType string) string {
	switch strings.ToUpper(locationType) {
	case "ROOFTOP":
		return "rooftop"
	case "RANGE_INTERPOLATED":
		return "range"
	case "GEOMETRIC_CENTER":
		return "centroid"
	default:
		return "approximate"
	}
}
