package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Input   InputConfig   `yaml:"input" mapstructure:"input"`
	Census  CensusConfig  `yaml:"census" mapstructure:"census"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Spatial SpatialConfig `yaml:"spatial" mapstructure:"spatial"`
	Report  ReportConfig  `yaml:"report" mapstructure:"report"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// InputConfig locates the poll-site extract.
type InputConfig struct {
	PollSitesFile string `yaml:"pollsites_file" mapstructure:"pollsites_file"`
	State         string `yaml:"state" mapstructure:"state"`
}

// CensusConfig configures the ACS API and TIGER/Line tract download.
type CensusConfig struct {
	APIKey      string   `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string   `yaml:"base_url" mapstructure:"base_url"`
	TigerURL    string   `yaml:"tiger_url" mapstructure:"tiger_url"`
	Year        int      `yaml:"year" mapstructure:"year"`
	TigerYear   int      `yaml:"tiger_year" mapstructure:"tiger_year"`
	StateFIPS   string   `yaml:"state_fips" mapstructure:"state_fips"`
	Counties    []string `yaml:"counties" mapstructure:"counties"`
	MaxAttempts int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	TempDir     string   `yaml:"temp_dir" mapstructure:"temp_dir"`

	// Local overrides; when set the corresponding download is skipped.
	PopulationFile   string `yaml:"population_file" mapstructure:"population_file"`
	DemographicsFile string `yaml:"demographics_file" mapstructure:"demographics_file"`
	TractsShapefile  string `yaml:"tracts_shapefile" mapstructure:"tracts_shapefile"`
}

// GeocodeConfig configures the address geocoder.
type GeocodeConfig struct {
	GoogleAPIKey    string  `yaml:"google_api_key" mapstructure:"google_api_key"`
	RateLimit       float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Concurrency     int     `yaml:"concurrency" mapstructure:"concurrency"`
	UseBatch        bool    `yaml:"use_batch" mapstructure:"use_batch"`
	CorrectionsFile string  `yaml:"corrections_file" mapstructure:"corrections_file"`
	CacheEnabled    bool    `yaml:"cache_enabled" mapstructure:"cache_enabled"`
	CachePath       string  `yaml:"cache_path" mapstructure:"cache_path"`
	CacheTTLDays    int     `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
	// Bounds is min_lon, min_lat, max_lon, max_lat. Matches outside it are
	// discarded. Empty disables the check.
	Bounds []float64 `yaml:"bounds" mapstructure:"bounds"`
}

// SpatialConfig configures point construction and the tract join.
type SpatialConfig struct {
	PointSRID int  `yaml:"point_srid" mapstructure:"point_srid"`
	Strict    bool `yaml:"strict" mapstructure:"strict"`
}

// ReportConfig configures the rendered output.
type ReportConfig struct {
	OutputDir  string  `yaml:"output_dir" mapstructure:"output_dir"`
	MapWidthIn float64 `yaml:"map_width_in" mapstructure:"map_width_in"`
	MapFormat  string  `yaml:"map_format" mapstructure:"map_format"`
	XLSX       bool    `yaml:"xlsx" mapstructure:"xlsx"`
}

// StoreConfig configures the optional Postgres export.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("POLLSITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("input.pollsites_file", "data/pollsites.csv")
	v.SetDefault("input.state", "NY")
	v.SetDefault("census.base_url", "https://api.census.gov/data")
	v.SetDefault("census.tiger_url", "https://www2.census.gov/geo/tiger")
	v.SetDefault("census.year", 2021)
	v.SetDefault("census.tiger_year", 2021)
	v.SetDefault("census.state_fips", "36")
	v.SetDefault("census.counties", []string{"005", "047", "061", "081", "085"})
	v.SetDefault("census.max_attempts", 1)
	v.SetDefault("census.timeout_secs", 120)
	v.SetDefault("census.temp_dir", "/tmp/pollsite-census")
	v.SetDefault("geocode.rate_limit", 10)
	v.SetDefault("geocode.concurrency", 8)
	v.SetDefault("geocode.use_batch", true)
	v.SetDefault("geocode.corrections_file", "corrections.yaml")
	v.SetDefault("geocode.cache_enabled", false)
	v.SetDefault("geocode.cache_path", "geocode_cache.db")
	v.SetDefault("geocode.bounds", []float64{-74.2591, 40.4774, -73.7004, 40.9176})
	v.SetDefault("spatial.point_srid", 4269)
	v.SetDefault("spatial.strict", true)
	v.SetDefault("report.output_dir", "report")
	v.SetDefault("report.map_width_in", 8)
	v.SetDefault("report.map_format", "png")
	v.SetDefault("report.xlsx", true)
	v.SetDefault("store.table", "tract_summary")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// Validate checks the settings a command needs before it starts any work.
// Mode is one of "run", "geocode", "check", or "tracts".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "check", "geocode", "run", "tracts":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode != "tracts" && c.Input.PollSitesFile == "" {
		errs = append(errs, "input.pollsites_file is required")
	}
	if mode == "geocode" || mode == "run" {
		if c.Input.State == "" {
			errs = append(errs, "input.state is required")
		}
		if c.Geocode.Concurrency < 1 || c.Geocode.Concurrency > 64 {
			errs = append(errs, "geocode.concurrency must be between 1 and 64")
		}
		if c.Geocode.RateLimit <= 0 {
			errs = append(errs, "geocode.rate_limit must be > 0")
		}
		if b := c.Geocode.Bounds; len(b) != 0 && (len(b) != 4 || b[0] >= b[2] || b[1] >= b[3]) {
			errs = append(errs, "geocode.bounds must be [min_lon, min_lat, max_lon, max_lat]")
		}
	}
	if mode == "tracts" || mode == "run" {
		if len(c.Census.StateFIPS) != 2 {
			errs = append(errs, "census.state_fips must be a 2-digit FIPS code")
		}
		if len(c.Census.Counties) == 0 {
			errs = append(errs, "census.counties must not be empty")
		}
		for _, county := range c.Census.Counties {
			if len(county) != 3 {
				errs = append(errs, "census.counties entries must be 3-digit FIPS codes")
				break
			}
		}
		if c.Census.Year <= 0 || c.Census.TigerYear <= 0 {
			errs = append(errs, "census.year and census.tiger_year must be set")
		}
		if c.Spatial.PointSRID <= 0 {
			errs = append(errs, "spatial.point_srid must be > 0")
		}
	}
	if mode == "run" && c.Report.OutputDir == "" {
		errs = append(errs, "report.output_dir is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
