package fetcher

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultHostRate = rate.Limit(20)
	maxBackoff      = 30 * time.Second
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// MaxAttempts is the total number of tries per request, including the
	// first. Zero means one.
	MaxAttempts int
	BackoffBase time.Duration
	// HostRates pins a fixed request rate for a host, replacing the
	// adaptive limit the Census hosts get by default.
	HostRates map[string]rate.Limit
}

// waiter is satisfied by both *rate.Limiter and *AdaptiveLimiter.
type waiter interface {
	Wait(ctx context.Context) error
}

// AdaptiveLimiter is a rate limiter that speeds up 20% per success, up to
// twice its initial rate, and halves on every 429, down to a quarter.
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	initial rate.Limit
	current rate.Limit
}

// NewAdaptiveLimiter creates an adaptive limiter starting at initial.
func NewAdaptiveLimiter(initial rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(initial, burst),
		initial: initial,
		current: initial,
	}
}

// Wait blocks until the limiter allows a request.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.set(min(a.Limit()*1.2, a.initial*2))
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	r := max(a.Limit()*0.5, a.initial/4)
	a.set(r)
	zap.L().Warn("fetcher: server throttled us, slowing down", zap.Float64("rate", float64(r)))
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *AdaptiveLimiter) set(r rate.Limit) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = r
	a.limiter.SetLimit(r)
}

// censusHosts are throttled adaptively unless HostRates overrides them.
var censusHosts = map[string]struct {
	rate  rate.Limit
	burst int
}{
	"api.census.gov":  {5, 5},
	"www2.census.gov": {2, 2},
}

// HTTPFetcher implements Fetcher with per-host rate limiting and retry of
// throttled or failed requests.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]waiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "pollsite-census/1.0"
	}

	limiters := make(map[string]waiter, len(censusHosts)+len(opts.HostRates))
	for host, l := range censusHosts {
		limiters[host] = NewAdaptiveLimiter(l.rate, l.burst)
	}
	for host, r := range opts.HostRates {
		limiters[host] = rate.NewLimiter(r, 1)
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: limiters,
	}
}

// limiter returns the limiter for host, creating a default one on first use
// so every request to the same host shares a budget.
func (f *HTTPFetcher) limiter(host string) waiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.limiters[host]
	if !ok {
		w = rate.NewLimiter(defaultHostRate, int(defaultHostRate))
		f.limiters[host] = w
	}
	return w
}

// retryable reports whether a response status is worth another attempt.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func (f *HTTPFetcher) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	lim := f.limiter(req.URL.Host)
	adaptive, _ := lim.(*AdaptiveLimiter)
	log := zap.L().With(
		zap.String("component", "fetcher"),
		zap.String("url", redact(req.URL)),
	)

	var lastErr error
	for attempt := 1; attempt <= f.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			f.backoff(ctx, attempt-2)
		}
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}

		resp, err := f.client.Do(req.Clone(ctx))
		switch {
		case err != nil:
			lastErr = err
			log.Warn("request failed", zap.Int("attempt", attempt), zap.Error(err))
		case retryable(resp.StatusCode):
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http %d from %s", resp.StatusCode, redact(req.URL))
			if resp.StatusCode == http.StatusTooManyRequests && adaptive != nil {
				adaptive.OnRateLimit()
			}
			log.Warn("retryable status", zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt))
		default:
			if adaptive != nil {
				adaptive.OnSuccess()
			}
			return resp, nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, eris.Wrapf(lastErr, "gave up after %d attempt(s)", f.opts.MaxAttempts)
}

// backoff sleeps for an exponentially growing, jittered interval, or until
// ctx is done.
func (f *HTTPFetcher) backoff(ctx context.Context, n int) {
	d := min(f.opts.BackoffBase<<min(n, 16), maxBackoff)
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// redact masks the Census API key so it never reaches logs or errors.
func redact(u *url.URL) string {
	q := u.Query()
	if !q.Has("key") {
		return u.String()
	}
	q.Set("key", "REDACTED")
	c := *u
	c.RawQuery = q.Encode()
	return c.String()
}

// Download fetches the URL and returns the response body. Any status other
// than 200 is an error.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.do(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "download")
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("download: unexpected status %d from %s", resp.StatusCode, redact(req.URL))
	}
	return resp.Body, nil
}

// DownloadToFile fetches the URL into path. The body lands in a temporary
// file beside path and is renamed into place only once complete.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	n, err := io.Copy(tmp, body)
	if err != nil {
		_ = tmp.Close()
		return n, eris.Wrap(err, "write file")
	}
	if err := tmp.Close(); err != nil {
		return n, eris.Wrap(err, "close file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, eris.Wrap(err, "rename file")
	}
	return n, nil
}
