package geocode

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T, ttlDays int) *Cache {
	t.Helper()
	c, err := OpenCache(context.Background(), filepath.Join(t.TempDir(), "cache.db"), ttlDays)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCacheKey_Deterministic(t *testing.T) {
	addr := AddressInput{
		Street:  "301 W 140th St",
		City:    "New York",
		State:   "NY",
		ZipCode: "10030",
	}

	key1 := cacheKey(addr)
	key2 := cacheKey(addr)
	assert.Equal(t, key1, key2)
	assert.Len(t, key1, 64) // SHA-256 hex is 64 chars
}

func TestCacheKey_CaseAndWhitespaceInsensitive(t *testing.T) {
	addr1 := AddressInput{Street: "100 Main St", City: "Bronx", State: "NY", ZipCode: "10451"}
	addr2 := AddressInput{Street: "100  MAIN ST", City: "BRONX", State: "ny", ZipCode: "10451"}

	assert.Equal(t, cacheKey(addr1), cacheKey(addr2))
}

func TestCacheKey_DifferentAddresses(t *testing.T) {
	addr1 := AddressInput{Street: "100 Main St", City: "Bronx", State: "NY"}
	addr2 := AddressInput{Street: "200 Main St", City: "Bronx", State: "NY"}

	assert.NotEqual(t, cacheKey(addr1), cacheKey(addr2))
}

func TestCache_PutGet(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t, 0)

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	want := &Result{
		Latitude:       40.8194,
		Longitude:      -73.9447,
		Source:         SourceCensus,
		Quality:        "rooftop",
		MatchedAddress: "301 W 140TH ST, NEW YORK, NY, 10030",
		Matched:        true,
	}
	require.NoError(t, c.Put(ctx, "k1", want))

	got, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestCache_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t, 0)

	require.NoError(t, c.Put(ctx, "k", &Result{Source: SourceCensus}))
	require.NoError(t, c.Put(ctx, "k", &Result{Latitude: 1, Longitude: 2, Source: SourceGoogle, Matched: true}))

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.True(t, got.Matched)
	assert.Equal(t, SourceGoogle, got.Source)
}

func TestCache_NoMatchIsCached(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t, 0)

	require.NoError(t, c.Put(ctx, "k", &Result{Source: SourceCensus}))
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.False(t, got.Matched)
}

func TestCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t, 30)

	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return start }
	require.NoError(t, c.Put(ctx, "k", &Result{Matched: true, Source: SourceCensus}))

	c.now = func() time.Time { return start.Add(29 * 24 * time.Hour) }
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok)

	c.now = func() time.Time { return start.Add(31 * 24 * time.Hour) }
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestCache_ReopenKeepsEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := OpenCache(ctx, path, 0)
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, "k", &Result{Latitude: 40.5, Matched: true, Source: SourceCensus}))
	require.NoError(t, c.Close())

	c, err = OpenCache(ctx, path, 0)
	require.NoError(t, err)
	defer c.Close() //nolint:errcheck

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.InDelta(t, 40.5, got.Latitude, 1e-9)
}
