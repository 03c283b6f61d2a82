// Package store exports finished runs to Postgres: one row per run, the tract
// summary table, the placed poll sites and the model coefficients.
package store

import (
	"context"
	"time"

	"github.com/sells-group/pollsite-census/internal/aggregate"
	"github.com/sells-group/pollsite-census/internal/regress"
	"github.com/sells-group/pollsite-census/internal/spatial"
)

// Run is the header row of an exported run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Tracts     int
	Sites      int
	RSquaredA  float64
	RSquaredB  float64
}

// Export is everything written for one run.
type Export struct {
	Run       Run
	Summaries []aggregate.TractSummary
	Joined    []spatial.JoinedRow
	Models    *regress.Models
}

// Store persists exported runs.
type Store interface {
	SaveExport(ctx context.Context, e *Export) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
