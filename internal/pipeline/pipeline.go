// Package pipeline runs the census analysis end to end: load, check, repair,
// join, aggregate, fit and report.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pollsite-census/internal/aggregate"
	"github.com/sells-group/pollsite-census/internal/census"
	"github.com/sells-group/pollsite-census/internal/config"
	"github.com/sells-group/pollsite-census/internal/fetcher"
	"github.com/sells-group/pollsite-census/internal/pollsite"
	"github.com/sells-group/pollsite-census/internal/quality"
	"github.com/sells-group/pollsite-census/internal/regress"
	"github.com/sells-group/pollsite-census/internal/repair"
	"github.com/sells-group/pollsite-census/internal/report"
	"github.com/sells-group/pollsite-census/internal/spatial"
	"github.com/sells-group/pollsite-census/internal/store"
	"github.com/sells-group/pollsite-census/pkg/geocode"
)

// Phase names, in run order.
const (
	PhaseLoad      = "load"
	PhaseCensus    = "census"
	PhaseRepair    = "repair"
	PhaseSpatial   = "spatial"
	PhaseMerge     = "merge"
	PhaseAggregate = "aggregate"
	PhaseRegress   = "regress"
	PhaseReport    = "report"
	PhaseExport    = "export"
)

// PhaseResult records the outcome of one phase.
type PhaseResult struct {
	Name     string
	Duration time.Duration
	Error    string
}

// Result is everything a run produced.
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Sites     []pollsite.PollSite
	Tracts    []census.Tract
	Quality   []*quality.Report
	Records   *quality.RecordReport
	Repair    repair.Stats
	Joined    []spatial.JoinedRow
	Join      *spatial.JoinReport
	Merged    []spatial.MergedRow
	Coverage  spatial.Coverage
	Summaries []aggregate.TractSummary
	Models    *regress.Models
	Files     []string
	Phases    []PhaseResult
}

// Pipeline runs the analysis against one configuration.
type Pipeline struct {
	cfg         *config.Config
	loader      *census.Loader
	geocoder    geocode.Client
	corrections repair.Corrections
	store       store.Store
	skipMaps    bool
	log         *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore exports every finished run to st.
func WithStore(st store.Store) Option {
	return func(p *Pipeline) {
		p.store = st
	}
}

// WithoutMaps skips rendering the borough maps.
func WithoutMaps() Option {
	return func(p *Pipeline) {
		p.skipMaps = true
	}
}

// New creates a Pipeline. The fetcher serves the census downloads, the
// geocoder the repair of sites without coordinates.
func New(cfg *config.Config, f fetcher.Fetcher, gc geocode.Client, corrections repair.Corrections, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:         cfg,
		loader:      census.NewLoader(cfg.Census, f),
		geocoder:    gc,
		corrections: corrections,
		log:         zap.L().With(zap.String("component", "pipeline")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LoadSites reads the poll-site extract and checks its raw table.
func (p *Pipeline) LoadSites() (*pollsite.Extract, *quality.Report, error) {
	ext, err := pollsite.Load(p.cfg.Input.PollSitesFile)
	if err != nil {
		return nil, nil, err
	}
	q := quality.Check("pollsites", ext.Header, ext.Rows)
	q.Log()

	numbers := make([]string, len(ext.Sites))
	for i, s := range ext.Sites {
		numbers[i] = s.SiteNumber
	}
	for _, d := range quality.DuplicateKeys(numbers) {
		p.log.Warn("site number repeats", zap.String("site_number", d.Key), zap.Int("count", d.Count))
	}
	return ext, q, nil
}

// LoadCensus reads the tract polygons with their population and the
// demographic extract, and checks the extract for repeated records.
func (p *Pipeline) LoadCensus(ctx context.Context) ([]census.Tract, []census.DemographicRecord, *quality.RecordReport, error) {
	tracts, err := p.loader.Tracts(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	records, err := p.loader.Demographics(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	rr := quality.CheckRecords(records)
	rr.Log()
	return tracts, records, rr, nil
}

// Repair geocodes every site without coordinates, in place.
func (p *Pipeline) Repair(ctx context.Context, sites []pollsite.PollSite) (repair.Stats, error) {
	return repair.New(p.geocoder, p.cfg.Input.State, p.corrections).Repair(ctx, sites)
}

// Run executes every phase and writes the report. Phases run in order and
// the first failure stops the run.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	log := p.log.With(zap.String("run_id", res.RunID))
	log.Info("starting run")

	var records []census.DemographicRecord

	steps := []step{
		{PhaseLoad, func() error {
			ext, q, err := p.LoadSites()
			if err != nil {
				return err
			}
			res.Sites = ext.Sites
			res.Quality = append(res.Quality, q)
			return nil
		}},
		{PhaseCensus, func() error {
			var err error
			res.Tracts, records, res.Records, err = p.LoadCensus(ctx)
			return err
		}},
		{PhaseRepair, func() error {
			var err error
			res.Repair, err = p.Repair(ctx, res.Sites)
			return err
		}},
		{PhaseSpatial, func() error {
			points, err := spatial.PointsFromSites(res.Sites, p.cfg.Spatial.PointSRID)
			if err != nil {
				return err
			}
			res.Joined, res.Join, err = spatial.JoinTracts(res.Tracts, points, p.cfg.Spatial.Strict)
			return err
		}},
		{PhaseMerge, func() error {
			race, err := census.PivotRace(records)
			if err != nil {
				return err
			}
			income, err := census.IncomeTable(records)
			if err != nil {
				return err
			}
			res.Merged, res.Coverage, err = spatial.MergeDemographics(res.Joined, race, income)
			return err
		}},
		{PhaseAggregate, func() error {
			var err error
			res.Summaries, err = aggregate.Summarize(res.Merged, res.Join.Assigned())
			return err
		}},
		{PhaseRegress, func() error {
			var err error
			res.Models, err = regress.FitModels(res.Summaries)
			return err
		}},
		{PhaseReport, func() error {
			var err error
			res.Files, err = report.Write(p.reportOptions(), report.Inputs{
				RunID:     res.RunID,
				Summaries: res.Summaries,
				Sites:     res.Sites,
				Models:    res.Models,
				Quality:   res.Quality,
				Records:   res.Records,
				Repair:    res.Repair,
				Join:      res.Join,
				Coverage:  res.Coverage,
			})
			return err
		}},
	}
	if p.store != nil {
		steps = append(steps, step{PhaseExport, func() error { return p.export(ctx, res) }})
	}

	for _, s := range steps {
		if err := p.phase(ctx, log, res, s.name, s.fn); err != nil {
			return res, err
		}
	}

	res.FinishedAt = time.Now().UTC()
	log.Info("run complete",
		zap.Int("tracts", len(res.Summaries)),
		zap.Int("sites", len(res.Sites)),
		zap.Int("files", len(res.Files)),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)
	return res, nil
}

type step struct {
	name string
	fn   func() error
}

// phase runs fn, timing it and recording its outcome on res.
func (p *Pipeline) phase(ctx context.Context, log *zap.Logger, res *Result, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrapf(err, "pipeline: %s", name)
	}
	start := time.Now()
	err := fn()
	pr := PhaseResult{Name: name, Duration: time.Since(start)}
	if err != nil {
		pr.Error = err.Error()
		res.Phases = append(res.Phases, pr)
		log.Error("phase failed", zap.String("phase", name), zap.Duration("duration", pr.Duration), zap.Error(err))
		return eris.Wrapf(err, "pipeline: %s", name)
	}
	res.Phases = append(res.Phases, pr)
	log.Info("phase complete", zap.String("phase", name), zap.Duration("duration", pr.Duration))
	return nil
}

func (p *Pipeline) reportOptions() report.Options {
	return report.Options{
		Dir:        p.cfg.Report.OutputDir,
		MapWidthIn: p.cfg.Report.MapWidthIn,
		MapFormat:  p.cfg.Report.MapFormat,
		XLSX:       p.cfg.Report.XLSX,
		SkipMaps:   p.skipMaps,
	}
}

func (p *Pipeline) export(ctx context.Context, res *Result) error {
	run := store.Run{
		ID:         res.RunID,
		StartedAt:  res.StartedAt,
		FinishedAt: time.Now().UTC(),
		Tracts:     len(res.Tracts),
		Sites:      len(res.Sites),
	}
	if res.Models != nil {
		run.RSquaredA = res.Models.A.RSquared
		run.RSquaredB = res.Models.B.RSquared
	}
	return p.store.SaveExport(ctx, &store.Export{
		Run:       run,
		Summaries: res.Summaries,
		Joined:    res.Joined,
		Models:    res.Models,
	})
}
