package census

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pollsite-census/internal/config"
	"github.com/sells-group/pollsite-census/internal/fetcher"
	"github.com/sells-group/pollsite-census/internal/tiger"
)

// Loader assembles the census inputs of a run, from the Census APIs or from
// local extracts when configured.
type Loader struct {
	cfg     config.CensusConfig
	fetcher fetcher.Fetcher
	acs     *ACSClient
	log     *zap.Logger
}

// NewLoader creates a Loader.
func NewLoader(cfg config.CensusConfig, f fetcher.Fetcher) *Loader {
	return &Loader{
		cfg:     cfg,
		fetcher: f,
		acs:     NewACSClient(f, cfg.BaseURL, cfg.Year, cfg.APIKey, cfg.StateFIPS, cfg.Counties),
		log:     zap.L().With(zap.String("component", "census")),
	}
}

// Population returns the population extract.
func (l *Loader) Population(ctx context.Context) ([]PopulationRow, error) {
	if l.cfg.PopulationFile != "" {
		l.log.Info("reading population extract", zap.String("path", l.cfg.PopulationFile))
		rows, err := LoadPopulationFile(l.cfg.PopulationFile)
		if err != nil {
			return nil, err
		}
		kept := rows[:0]
		for _, r := range rows {
			if l.inScope(r.GEOID) {
				kept = append(kept, r)
			}
		}
		return kept, nil
	}
	l.log.Info("querying ACS population", zap.Int("year", l.cfg.Year))
	return l.acs.Population(ctx)
}

// Demographics returns the long-format demographic extract.
func (l *Loader) Demographics(ctx context.Context) ([]DemographicRecord, error) {
	if l.cfg.DemographicsFile != "" {
		l.log.Info("reading demographic extract", zap.String("path", l.cfg.DemographicsFile))
		records, err := LoadDemographicsFile(l.cfg.DemographicsFile)
		if err != nil {
			return nil, err
		}
		kept := records[:0]
		for _, r := range records {
			if l.inScope(r.GEOID) {
				kept = append(kept, r)
			}
		}
		return kept, nil
	}
	l.log.Info("querying ACS demographics", zap.Int("year", l.cfg.Year))
	return l.acs.Demographics(ctx, DemographicVariables())
}

// Shapes returns the tract polygons of the configured counties.
func (l *Loader) Shapes(ctx context.Context) ([]tiger.TractShape, error) {
	var files tiger.Files
	var err error
	if l.cfg.TractsShapefile != "" {
		files, err = tiger.LocalFiles(l.cfg.TractsShapefile)
	} else {
		url := tiger.TractURL(l.cfg.TigerURL, l.cfg.TigerYear, l.cfg.StateFIPS)
		files, err = tiger.Download(ctx, l.fetcher, url, filepath.Join(l.cfg.TempDir, "tiger"))
	}
	if err != nil {
		return nil, err
	}

	srid, err := tiger.SRIDFromPRJ(files.Prj)
	if err != nil {
		return nil, err
	}
	shapes, err := tiger.ReadTracts(files.Shp, srid, l.cfg.Counties)
	if err != nil {
		return nil, err
	}
	if len(shapes) == 0 {
		return nil, eris.Errorf("census: no tracts for counties %v in %s", l.cfg.Counties, files.Shp)
	}
	l.log.Info("read tract polygons", zap.Int("tracts", len(shapes)), zap.Int("srid", srid))
	return shapes, nil
}

// Tracts returns tract polygons joined to their population estimates.
func (l *Loader) Tracts(ctx context.Context) ([]Tract, error) {
	shapes, err := l.Shapes(ctx)
	if err != nil {
		return nil, err
	}
	pop, err := l.Population(ctx)
	if err != nil {
		return nil, err
	}
	return JoinPopulation(shapes, pop)
}

// inScope reports whether a tract GEOID lies in the configured state and
// counties.
func (l *Loader) inScope(geoid string) bool {
	if len(geoid) < 5 || geoid[:2] != l.cfg.StateFIPS {
		return false
	}
	for _, c := range l.cfg.Counties {
		if geoid[2:5] == c {
			return true
		}
	}
	return false
}
