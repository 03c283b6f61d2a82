package main

import (
	"context"
	"time"

	"github.com/sells-group/pollsite-census/internal/fetcher"
	"github.com/sells-group/pollsite-census/internal/pipeline"
	"github.com/sells-group/pollsite-census/internal/repair"
	"github.com/sells-group/pollsite-census/internal/store"
	"github.com/sells-group/pollsite-census/pkg/geocode"
)

func newFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:     time.Duration(cfg.Census.TimeoutSecs) * time.Second,
		MaxAttempts: cfg.Census.MaxAttempts,
	})
}

// initGeocoder builds the geocoder from config. The returned close func
// releases the cache, if one was opened.
func initGeocoder(ctx context.Context) (geocode.Client, func() error, error) {
	opts := []geocode.Option{
		geocode.WithRateLimit(cfg.Geocode.RateLimit),
		geocode.WithConcurrency(cfg.Geocode.Concurrency),
		geocode.WithBatchAPI(cfg.Geocode.UseBatch),
	}
	if b := cfg.Geocode.Bounds; len(b) == 4 {
		opts = append(opts, geocode.WithBounds(geocode.Bounds{MinLon: b[0], MinLat: b[1], MaxLon: b[2], MaxLat: b[3]}))
	}
	if cfg.Geocode.GoogleAPIKey != "" {
		opts = append(opts, geocode.WithGoogleAPIKey(cfg.Geocode.GoogleAPIKey))
	}

	closeFn := func() error { return nil }
	if cfg.Geocode.CacheEnabled {
		cache, err := geocode.OpenCache(ctx, cfg.Geocode.CachePath, cfg.Geocode.CacheTTLDays)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, geocode.WithCache(cache))
		closeFn = cache.Close
	}
	return geocode.NewClient(opts...), closeFn, nil
}

// initStore opens the Postgres export, or returns nil when none is
// configured.
func initStore(ctx context.Context) (store.Store, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, nil
	}
	st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Table)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// newPipeline wires a pipeline from config. The returned close func
// releases the geocode cache.
func newPipeline(ctx context.Context, opts ...pipeline.Option) (*pipeline.Pipeline, func() error, error) {
	corrections, err := repair.LoadCorrections(cfg.Geocode.CorrectionsFile)
	if err != nil {
		return nil, nil, err
	}
	gc, closeFn, err := initGeocoder(ctx)
	if err != nil {
		return nil, nil, err
	}
	return pipeline.New(cfg, newFetcher(), gc, corrections, opts...), closeFn, nil
}
