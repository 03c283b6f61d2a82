// Package report writes the run's outputs: borough maps, the regression
// summary, the tract summary table and the data-quality notes.
package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pollsite-census/internal/aggregate"
	"github.com/sells-group/pollsite-census/internal/pollsite"
	"github.com/sells-group/pollsite-census/internal/quality"
	"github.com/sells-group/pollsite-census/internal/regress"
	"github.com/sells-group/pollsite-census/internal/repair"
	"github.com/sells-group/pollsite-census/internal/spatial"
)

// Output file names.
const (
	RegressionFile = "regression.txt"
	SummaryCSVFile = "tract_summary.csv"
	SummaryXLSFile = "tract_summary.xlsx"
	QualityFile    = "quality.txt"
	RepairedFile   = "repaired_pollsites.csv"
)

// Options configures Write.
type Options struct {
	Dir        string
	MapWidthIn float64
	MapFormat  string
	XLSX       bool
	SkipMaps   bool
}

// Inputs is everything a finished run reports on.
type Inputs struct {
	RunID     string
	Summaries []aggregate.TractSummary
	Sites     []pollsite.PollSite
	Models    *regress.Models
	Quality   []*quality.Report
	Records   *quality.RecordReport
	Repair    repair.Stats
	Join      *spatial.JoinReport
	Coverage  spatial.Coverage
}

// Write renders every output into opts.Dir and returns the written paths.
func Write(opts Options, in Inputs) ([]string, error) {
	log := zap.L().With(zap.String("component", "report"))
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "report: create %s", opts.Dir)
	}

	var written []string
	save := func(name string, render func(io.Writer) error) error {
		var buf bytes.Buffer
		if err := render(&buf); err != nil {
			return err
		}
		path := filepath.Join(opts.Dir, name)
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return eris.Wrapf(err, "report: write %s", path)
		}
		written = append(written, path)
		return nil
	}

	if in.Models != nil {
		if err := save(RegressionFile, func(w io.Writer) error { return WriteRegression(w, in.Models) }); err != nil {
			return nil, err
		}
	}
	if err := save(SummaryCSVFile, func(w io.Writer) error { return WriteSummaryCSV(w, in.Summaries) }); err != nil {
		return nil, err
	}
	if err := save(QualityFile, func(w io.Writer) error { return WriteQuality(w, in) }); err != nil {
		return nil, err
	}
	if err := save(RepairedFile, func(w io.Writer) error { return pollsite.Write(w, in.Sites) }); err != nil {
		return nil, err
	}

	if opts.XLSX {
		path := filepath.Join(opts.Dir, SummaryXLSFile)
		if err := SaveSummaryXLSX(path, in.Summaries); err != nil {
			return nil, err
		}
		written = append(written, path)
	}

	if !opts.SkipMaps {
		maps, err := SaveBoroughMaps(opts.Dir, opts.MapWidthIn, opts.MapFormat, in.Summaries, in.Sites)
		if err != nil {
			return nil, err
		}
		written = append(written, maps...)
	}

	log.Info("report written", zap.String("dir", opts.Dir), zap.Int("files", len(written)))
	return written, nil
}

// WriteQuality renders the data-quality notes of a run.
func WriteQuality(w io.Writer, in Inputs) error {
	p := &printer{w: w}
	if in.RunID != "" {
		p.printf("run %s\n\n", in.RunID)
	}
	for _, q := range in.Quality {
		if q == nil {
			continue
		}
		if p.err == nil {
			p.err = q.WriteText(w)
		}
		p.printf("\n")
	}
	if in.Records != nil && p.err == nil {
		p.err = in.Records.WriteText(w)
		p.printf("\n")
	}

	r := in.Repair
	p.printf("geocoding: %d missing, %d resolved first pass, %d resolved after correction, %d unresolved\n\n",
		r.Missing, r.FirstPass, r.Corrected, r.Unresolved)

	if j := in.Join; j != nil {
		p.printf("spatial join: %d tracts, %d sites, %d rows, %d tracts without a site\n",
			j.Tracts, j.Sites, j.Rows, j.EmptyTracts)
		for _, pl := range j.OnBoundary {
			p.printf("  on boundary: site %s (%s) %v -> %s\n", pl.Site.SiteNumber, pl.Site.SiteName, pl.Candidates, pl.Assigned)
		}
		for _, pl := range j.Ambiguous {
			p.printf("  in several tracts: site %s (%s) %v -> %s\n", pl.Site.SiteNumber, pl.Site.SiteName, pl.Candidates, pl.Assigned)
		}
		for _, s := range j.Unassigned {
			p.printf("  outside every tract: site %s (%s) at %.6f, %.6f\n", s.SiteNumber, s.SiteName, s.Lat, s.Lon)
		}
		p.printf("\n")
	}

	if len(in.Coverage) > 0 {
		p.printf("tract ids by source:\n")
		for _, k := range in.Coverage.Keys() {
			p.printf("  %-20s %d\n", k.String(), in.Coverage[k])
		}
	}
	return eris.Wrap(p.err, "report: write quality")
}

// printer keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
