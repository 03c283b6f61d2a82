package geocode

import (
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// newRewriteClient returns a client that sends every request whose URL
// starts with endpoint to the test server instead, keeping the path suffix
// and query. Other requests pass through untouched.
func newRewriteClient(serverURL, endpoint string) *http.Client {
	return &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		orig := req.URL.String()
		if !strings.HasPrefix(orig, endpoint) {
			return http.DefaultTransport.RoundTrip(req)
		}
		target, err := url.Parse(serverURL + strings.TrimPrefix(orig, endpoint))
		if err != nil {
			return nil, err
		}
		out := req.Clone(req.Context())
		out.URL = target
		out.Host = target.Host
		return http.DefaultTransport.RoundTrip(out)
	})}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
