package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/pollsite-census/internal/census"
	"github.com/sells-group/pollsite-census/internal/db"
	"github.com/sells-group/pollsite-census/internal/regress"
	"github.com/sells-group/pollsite-census/internal/tiger"
)

// DefaultSummaryTable is used when no table name is configured.
const DefaultSummaryTable = "tract_summary"

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool         db.Pool
	closeFn      func()
	summaryTable string
}

// NewPostgres connects to connString. summaryTable may be schema-qualified.
func NewPostgres(ctx context.Context, connString, summaryTable string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool, summaryTable, pool.Close), nil
}

func newPostgresStore(pool db.Pool, summaryTable string, closeFn func()) *PostgresStore {
	if summaryTable == "" {
		summaryTable = DefaultSummaryTable
	}
	return &PostgresStore{pool: pool, closeFn: closeFn, summaryTable: summaryTable}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const migrationTemplate = `
CREATE TABLE IF NOT EXISTS census_runs (
	id          UUID PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	tracts      INTEGER NOT NULL,
	sites       INTEGER NOT NULL,
	r2_a        DOUBLE PRECISION,
	r2_b        DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS %[1]s (
	run_id                     UUID NOT NULL REFERENCES census_runs(id),
	geoid                      TEXT NOT NULL,
	county_fips                TEXT,
	name                       TEXT,
	population                 DOUBLE PRECISION,
	poll_site_count            INTEGER NOT NULL,
	income_to_poverty          DOUBLE PRECISION,
	race_total                 DOUBLE PRECISION,
	pct_white                  DOUBLE PRECISION,
	pct_black                  DOUBLE PRECISION,
	pct_american_indian        DOUBLE PRECISION,
	pct_asian                  DOUBLE PRECISION,
	pct_pacific_islander       DOUBLE PRECISION,
	pct_other_race             DOUBLE PRECISION,
	pct_two_or_more_incl_other DOUBLE PRECISION,
	pct_two_or_more_excl_other DOUBLE PRECISION,
	geom_ewkb                  BYTEA,
	PRIMARY KEY (run_id, geoid)
);

CREATE TABLE IF NOT EXISTS census_run_sites (
	run_id         UUID NOT NULL REFERENCES census_runs(id),
	site_number    TEXT NOT NULL,
	site_name      TEXT NOT NULL,
	borough        TEXT,
	address        TEXT,
	latitude       DOUBLE PRECISION NOT NULL,
	longitude      DOUBLE PRECISION NOT NULL,
	geocode_source TEXT,
	geoid          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS census_run_coefficients (
	run_id   UUID NOT NULL REFERENCES census_runs(id),
	model    TEXT NOT NULL,
	term     TEXT NOT NULL,
	estimate DOUBLE PRECISION,
	std_err  DOUBLE PRECISION,
	t        DOUBLE PRECISION,
	p        DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS idx_census_run_sites_run_id ON census_run_sites(run_id);
CREATE INDEX IF NOT EXISTS idx_census_run_coefficients_run_id ON census_run_coefficients(run_id);
`

// Migrate creates the export tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	sql := fmt.Sprintf(migrationTemplate, db.Identifier(s.summaryTable).Sanitize())
	_, err := s.pool.Exec(ctx, sql)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var summaryColumns = []string{
	"run_id", "geoid", "county_fips", "name", "population", "poll_site_count",
	"income_to_poverty", "race_total",
	"pct_white", "pct_black", "pct_american_indian", "pct_asian",
	"pct_pacific_islander", "pct_other_race", "pct_two_or_more_incl_other", "pct_two_or_more_excl_other",
	"geom_ewkb",
}

var siteColumns = []string{
	"run_id", "site_number", "site_name", "borough", "address",
	"latitude", "longitude", "geocode_source", "geoid",
}

var coefficientColumns = []string{"run_id", "model", "term", "estimate", "std_err", "t", "p"}

// SaveExport writes one run in a single transaction: the run header and its
// summary rows are upserted, and the placed sites and model coefficients
// replace whatever an earlier export of the same run id left.
func (s *PostgresStore) SaveExport(ctx context.Context, e *Export) error {
	log := zap.L().With(zap.String("component", "store"), zap.String("run_id", e.Run.ID))

	summaries, err := s.summaryRows(e)
	if err != nil {
		return err
	}
	sites, coefs := siteRows(e), coefficientRows(e)

	err = db.InTx(ctx, s.pool, func(tx db.Conn) error {
		r := e.Run
		_, err := tx.Exec(ctx,
			`INSERT INTO census_runs (id, started_at, finished_at, tracts, sites, r2_a, r2_b)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET finished_at = EXCLUDED.finished_at, tracts = EXCLUDED.tracts,
				sites = EXCLUDED.sites, r2_a = EXCLUDED.r2_a, r2_b = EXCLUDED.r2_b`,
			r.ID, r.StartedAt, r.FinishedAt, r.Tracts, r.Sites, r.RSquaredA, r.RSquaredB,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert run %s", r.ID)
		}
		if _, err := db.Upsert(ctx, tx, db.Merge{
			Table:   s.summaryTable,
			Columns: summaryColumns,
			Keys:    []string{"run_id", "geoid"},
		}, summaries); err != nil {
			return err
		}
		if _, err := db.ReplaceScoped(ctx, tx, "census_run_sites", "run_id", r.ID, siteColumns, sites); err != nil {
			return err
		}
		_, err = db.ReplaceScoped(ctx, tx, "census_run_coefficients", "run_id", r.ID, coefficientColumns, coefs)
		return err
	})
	if err != nil {
		return err
	}

	log.Info("exported run",
		zap.Int("tracts", len(summaries)),
		zap.Int("sites", len(sites)),
		zap.Int("coefficients", len(coefs)),
	)
	return nil
}

func (s *PostgresStore) summaryRows(e *Export) ([][]any, error) {
	rows := make([][]any, 0, len(e.Summaries))
	for _, t := range e.Summaries {
		wkb, err := tiger.EncodeWKB(geomOrNil(t.Geometry))
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: encode tract %s", t.GEOID)
		}
		row := []any{e.Run.ID, t.GEOID, t.CountyFIPS, t.Name, t.Population, t.PollSiteCount, t.IncomeToPoverty, t.RaceTotal}
		for _, c := range census.RaceCategories {
			row = append(row, t.RacePercent[c])
		}
		rows = append(rows, append(row, wkb))
	}
	return rows, nil
}

// siteRows lists the sites placed in a tract; empty tracts have no site.
func siteRows(e *Export) [][]any {
	var rows [][]any
	for _, j := range e.Joined {
		if j.Site == nil {
			continue
		}
		ps := j.Site.Site
		rows = append(rows, []any{
			e.Run.ID, ps.SiteNumber, ps.SiteName, string(ps.Borough), ps.Address,
			*ps.Latitude, *ps.Longitude, ps.GeocodeSource, j.Tract.GEOID,
		})
	}
	return rows
}

func coefficientRows(e *Export) [][]any {
	if e.Models == nil {
		return nil
	}
	var rows [][]any
	for _, m := range []*regress.Result{e.Models.A, e.Models.B} {
		if m == nil {
			continue
		}
		for _, c := range m.Coefficients {
			rows = append(rows, []any{e.Run.ID, m.Name, c.Name, c.Estimate, c.StdErr, c.T, c.P})
		}
	}
	return rows
}

// ListRuns returns the most recent runs first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, started_at, finished_at, tracts, sites, r2_a, r2_b
		FROM census_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Tracts, &r.Sites, &r.RSquaredA, &r.RSquaredB); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs")
}

func geomOrNil(mp *geom.MultiPolygon) geom.T {
	if mp == nil {
		return nil
	}
	return mp
}
