package geocode

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const cacheMigration = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	address_hash    TEXT PRIMARY KEY,
	latitude        REAL NOT NULL,
	longitude       REAL NOT NULL,
	quality         TEXT NOT NULL DEFAULT '',
	matched_address TEXT NOT NULL DEFAULT '',
	matched         INTEGER NOT NULL,
	source          TEXT NOT NULL,
	cached_at       DATETIME NOT NULL
);
`

// Cache is a local SQLite store of geocode results, keyed by normalized
// address. Both matches and non-matches are cached.
type Cache struct {
	db      *sql.DB
	ttlDays int
	now     func() time.Time
}

// OpenCache opens (and migrates) a SQLite cache at dsn. A ttlDays of zero
// keeps entries forever.
func OpenCache(ctx context.Context, dsn string, ttlDays int) (*Cache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: open cache")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "geocode: cache exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, cacheMigration); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "geocode: migrate cache")
	}
	return &Cache{db: db, ttlDays: ttlDays, now: time.Now}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// cacheKey returns SHA-256 hex of the normalized address for cache lookup.
func cacheKey(addr AddressInput) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(formatOneLine(addr)), " "))
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// Get looks up a cached result, respecting the TTL. Lookup errors count as
// misses.
func (c *Cache) Get(ctx context.Context, key string) (*Result, bool) {
	var r Result
	var cachedAt time.Time
	row := c.db.QueryRowContext(ctx,
		`SELECT latitude, longitude, quality, matched_address, matched, source, cached_at
		 FROM geocode_cache WHERE address_hash = ?`, key)
	if err := row.Scan(&r.Latitude, &r.Longitude, &r.Quality, &r.MatchedAddress, &r.Matched, &r.Source, &cachedAt); err != nil {
		if err != sql.ErrNoRows {
			zap.L().Debug("geocode: cache lookup failed", zap.Error(err))
		}
		return nil, false
	}

	if c.ttlDays > 0 && c.now().Sub(cachedAt) > time.Duration(c.ttlDays)*24*time.Hour {
		return nil, false
	}

	keyPrefix := key
	if len(keyPrefix) > 12 {
		keyPrefix = keyPrefix[:12]
	}
	zap.L().Debug("geocode cache hit", zap.String("key", keyPrefix), zap.Bool("matched", r.Matched))
	return &r, true
}

// Put inserts or replaces a cached result.
func (c *Cache) Put(ctx context.Context, key string, r *Result) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO geocode_cache (address_hash, latitude, longitude, quality, matched_address, matched, source, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (address_hash) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			quality = excluded.quality,
			matched_address = excluded.matched_address,
			matched = excluded.matched,
			source = excluded.source,
			cached_at = excluded.cached_at`,
		key, r.Latitude, r.Longitude, r.Quality, r.MatchedAddress, r.Matched, r.Source, c.now().UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "geocode: store cache")
	}
	return nil
}
