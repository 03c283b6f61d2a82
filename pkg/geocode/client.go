// Package geocode resolves postal addresses to coordinates via the Census
// Geocoder (primary) and Google (optional fallback).
package geocode

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Sources reported on a Result.
const (
	SourceCensus = "census"
	SourceGoogle = "google"
)

// Client geocodes addresses.
type Client interface {
	// Geocode geocodes a single address. An unmatched address is not an
	// error: the Result has Matched=false.
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)

	// BatchGeocode geocodes multiple addresses. Results are returned in
	// input order, one per address.
	BatchGeocode(ctx context.Context, addrs []AddressInput) ([]Result, error)
}

// AddressInput represents an address to geocode. Line, when set, is sent as
// a free-text one-line address and takes precedence over the parts.
type AddressInput struct {
	ID      string // batch correlation; assigned when empty
	Line    string
	Street  string
	City    string
	State   string
	ZipCode string
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude       float64
	Longitude      float64
	Source         string // "census" or "google"
	Quality        string // "rooftop", "range", "centroid", "approximate"
	MatchedAddress string
	Matched        bool
}

// Bounds is a longitude/latitude box. A provider match outside it is
// treated as a miss, which catches same-name streets in other cities.
type Bounds struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// Contains reports whether the point lies in b, edges included.
func (b Bounds) Contains(lat, lon float64) bool {
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables the Google Geocoding API as a fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) { g.googleKey = key }
}

// WithHTTPClient sets the HTTP client used for every provider.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) { g.httpClient = hc }
}

// WithRateLimit caps outbound requests per second across providers.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

// WithConcurrency sets the max parallel single-address calls in BatchGeocode.
func WithConcurrency(n int) Option {
	return func(g *geocoder) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// WithBatchAPI toggles the Census batch endpoint. When disabled, or when the
// batch call fails, BatchGeocode issues single-address calls in parallel.
func WithBatchAPI(enabled bool) Option {
	return func(g *geocoder) { g.useBatch = enabled }
}

// WithCache stores and serves results through the given cache.
func WithCache(c *Cache) Option {
	return func(g *geocoder) { g.cache = c }
}

// WithBounds rejects matches outside b.
func WithBounds(b Bounds) Option {
	return func(g *geocoder) { g.bounds = &b }
}

type geocoder struct {
	httpClient  *http.Client
	googleKey   string
	limiter     *rate.Limiter
	concurrency int
	useBatch    bool
	cache       *Cache
	bounds      *Bounds
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(10, 10),
		concurrency: 8,
		useBatch:    true,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type provider struct {
	name   string
	lookup func(context.Context, AddressInput) (*Result, error)
}

// chain lists the providers in the order they are tried.
func (g *geocoder) chain() []provider {
	ps := []provider{{SourceCensus, g.geocodeCensus}}
	if g.googleKey != "" {
		ps = append(ps, provider{SourceGoogle, g.geocodeGoogle})
	}
	return ps
}

// accept reports whether r is a match worth keeping.
func (g *geocoder) accept(r *Result) bool {
	if r == nil || !r.Matched {
		return false
	}
	if g.bounds != nil && !g.bounds.Contains(r.Latitude, r.Longitude) {
		zap.L().Debug("geocode: match outside bounds",
			zap.String("source", r.Source),
			zap.String("matched_address", r.MatchedAddress),
			zap.Float64("lat", r.Latitude),
			zap.Float64("lon", r.Longitude),
		)
		return false
	}
	return true
}

// resolve tries ps in order and returns the first accepted match, or an
// unmatched Result. clean is false when some provider failed to answer,
// in which case a miss must not be cached.
func (g *geocoder) resolve(ctx context.Context, addr AddressInput, ps []provider) (r *Result, clean bool) {
	clean = true
	for _, p := range ps {
		res, err := p.lookup(ctx, addr)
		if err != nil {
			clean = false
			zap.L().Debug("geocode: provider error",
				zap.String("provider", p.name),
				zap.String("address", formatOneLine(addr)),
				zap.Error(err),
			)
			continue
		}
		if g.accept(res) {
			return res, true
		}
	}
	return &Result{Source: SourceCensus}, clean
}

// Geocode geocodes a single address, trying Census first, then Google if configured.
func (g *geocoder) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	key := cacheKey(addr)
	if g.cache != nil {
		if cached, ok := g.cache.Get(ctx, key); ok {
			return cached, nil
		}
	}

	r, clean := g.resolve(ctx, addr, g.chain())
	if !r.Matched && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if clean {
		g.store(ctx, key, r)
	}
	return r, nil
}

// BatchGeocode geocodes multiple addresses. Cached addresses are served
// from the cache and the rest are resolved by batchResolve.
func (g *geocoder) BatchGeocode(ctx context.Context, addrs []AddressInput) ([]Result, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	for i := range addrs {
		if addrs[i].ID == "" {
			addrs[i].ID = strconv.Itoa(i)
		}
	}

	results := make([]Result, len(addrs))
	var pending []int
	for i, addr := range addrs {
		if g.cache != nil {
			if cached, ok := g.cache.Get(ctx, cacheKey(addr)); ok {
				results[i] = *cached
				continue
			}
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return results, nil
	}

	todo := make([]AddressInput, len(pending))
	for j, i := range pending {
		todo[j] = addrs[i]
	}
	resolved, err := g.batchResolve(ctx, todo)
	if err != nil {
		return nil, err
	}
	for j, i := range pending {
		results[i] = resolved[j]
	}
	return results, nil
}

// batchResolve sends todo through the Census batch endpoint and retries
// each miss against the full single-address chain, Census one-line first.
// Without the batch endpoint, or when it fails, every address goes through
// Geocode in parallel.
func (g *geocoder) batchResolve(ctx context.Context, todo []AddressInput) ([]Result, error) {
	if g.useBatch {
		resolved, err := g.batchGeocodeCensus(ctx, todo)
		if err == nil {
			fallback := g.chain()
			for j := range resolved {
				clean := true
				if !g.accept(&resolved[j]) {
					var r *Result
					r, clean = g.resolve(ctx, todo[j], fallback)
					resolved[j] = *r
				}
				if clean {
					g.store(ctx, cacheKey(todo[j]), &resolved[j])
				}
			}
			return resolved, nil
		}
		zap.L().Warn("geocode: census batch failed, falling back to single-address calls",
			zap.Int("addresses", len(todo)),
			zap.Error(err),
		)
	}
	return g.parallelGeocode(ctx, todo)
}

// parallelGeocode runs Geocode over addrs on a bounded worker set. Results
// are stored by input index so ordering never depends on timing.
func (g *geocoder) parallelGeocode(ctx context.Context, addrs []AddressInput) ([]Result, error) {
	results := make([]Result, len(addrs))

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(max(g.concurrency, 1))
	for i, addr := range addrs {
		eg.Go(func() error {
			r, err := g.Geocode(gCtx, addr)
			if err != nil {
				return err
			}
			results[i] = *r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (g *geocoder) store(ctx context.Context, key string, r *Result) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Put(ctx, key, r); err != nil {
		zap.L().Warn("geocode: cache write failed", zap.Error(err))
	}
}
