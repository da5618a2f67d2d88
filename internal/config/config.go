package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Source   SourceConfig   `yaml:"source" mapstructure:"source"`
	Overpass OverpassConfig `yaml:"overpass" mapstructure:"overpass"`
	Names    NamesConfig    `yaml:"names" mapstructure:"names"`
	Scoring  ScoringConfig  `yaml:"scoring" mapstructure:"scoring"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures where scoring runs are recorded. Driver is
// "sqlite" (the file at Path) or "postgres" (source.database_url).
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	Path   string `yaml:"path" mapstructure:"path"`
}

// SourceConfig configures the PostGIS grid and POI source.
type SourceConfig struct {
	DatabaseURL string          `yaml:"database_url" mapstructure:"database_url"`
	GridTable   string          `yaml:"grid_table" mapstructure:"grid_table"`
	POITable    string          `yaml:"poi_table" mapstructure:"poi_table"`
	ScoreTable  string          `yaml:"score_table" mapstructure:"score_table"`
	Locations   []LocationLayer `yaml:"locations" mapstructure:"locations"`
	MaxConns    int32           `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32           `yaml:"min_conns" mapstructure:"min_conns"`
}

// LocationLayer is one administrative boundary table used for district
// matching and centroid naming. Layers are listed coarse to fine.
type LocationLayer struct {
	Table      string `yaml:"table" mapstructure:"table"`
	NameColumn string `yaml:"name_column" mapstructure:"name_column"`
}

// OverpassConfig configures POI loading from OpenStreetMap.
type OverpassConfig struct {
	Enabled     bool        `yaml:"enabled" mapstructure:"enabled"`
	Endpoint    string      `yaml:"endpoint" mapstructure:"endpoint"`
	TimeoutSecs int         `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Amenity     string      `yaml:"amenity" mapstructure:"amenity"`
	Retry       RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// NamesConfig configures centroid name resolution.
type NamesConfig struct {
	Enabled     bool        `yaml:"enabled" mapstructure:"enabled"`
	RateLimit   float64     `yaml:"rate_limit" mapstructure:"rate_limit"`
	CacheTTLHrs int         `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	Retry       RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig configures retries of transient upstream failures.
type RetryConfig struct {
	Attempts  int `yaml:"attempts" mapstructure:"attempts"`
	BackoffMs int `yaml:"backoff_ms" mapstructure:"backoff_ms"`
}

// ScoringConfig holds the interactive scoring defaults.
type ScoringConfig struct {
	Weights map[string]float64 `yaml:"weights" mapstructure:"weights"`
	TopN    int                `yaml:"top_n" mapstructure:"top_n"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables take precedence.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RISKGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "riskgrid.db")
	v.SetDefault("source.grid_table", "testing_shapes")
	v.SetDefault("source.poi_table", "ps_location_ascii")
	v.SetDefault("source.score_table", "grid_scores")
	v.SetDefault("source.max_conns", 10)
	v.SetDefault("source.min_conns", 2)
	v.SetDefault("source.locations", []map[string]any{
		{"table": "gadm41_ind_1", "name_column": "name_1"},
		{"table": "gadm41_ind_2", "name_column": "name_2"},
		{"table": "gadm41_ind_3", "name_column": "name_3"},
	})
	v.SetDefault("overpass.enabled", false)
	v.SetDefault("overpass.endpoint", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.timeout_secs", 60)
	v.SetDefault("overpass.amenity", "police")
	v.SetDefault("overpass.retry.attempts", 3)
	v.SetDefault("overpass.retry.backoff_ms", 2000)
	v.SetDefault("names.enabled", true)
	v.SetDefault("names.rate_limit", 20.0)
	v.SetDefault("names.cache_ttl_hours", 720)
	v.SetDefault("names.retry.attempts", 2)
	v.SetDefault("names.retry.backoff_ms", 200)
	v.SetDefault("scoring.weights.lighting_r", 0.18)
	v.SetDefault("scoring.weights.lst_celsiu", 0.22)
	v.SetDefault("scoring.weights.no2", 0.22)
	v.SetDefault("scoring.weights.uhi_intens", 0.18)
	v.SetDefault("scoring.weights.landcove_1", 0.10)
	v.SetDefault("scoring.weights.police_station", 0.10)
	v.SetDefault("scoring.top_n", 10)
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.allowed_origins", []string{"*"})
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

// Validate checks the settings a command depends on. Commands pass the
// name of the backend they are about to use.
func (c *Config) Validate(backend string) error {
	var errs []string

	switch backend {
	case "postgres":
		if c.Source.DatabaseURL == "" {
			errs = append(errs, "source.database_url is required")
		}
		if c.Source.GridTable == "" {
			errs = append(errs, "source.grid_table is required")
		}
		if len(c.Source.Locations) == 0 {
			errs = append(errs, "source.locations must list at least one layer")
		}
		for i, l := range c.Source.Locations {
			if l.Table == "" || l.NameColumn == "" {
				errs = append(errs, fmt.Sprintf("source.locations[%d] needs table and name_column", i))
			}
		}
	case "store":
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.Path == "" {
				errs = append(errs, "store.path is required")
			}
		case "postgres":
			if c.Source.DatabaseURL == "" {
				errs = append(errs, "source.database_url is required for the postgres store")
			}
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "file":
	default:
		return eris.Errorf("config: unknown mode %q", backend)
	}

	if err := ValidateScoring(c.Scoring); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateScoring checks that the scoring defaults are usable.
func ValidateScoring(c ScoringConfig) error {
	var errs []string

	for name, w := range c.Weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("scoring.weights.%s must be >= 0", name))
		}
	}
	if c.TopN <= 0 {
		errs = append(errs, "scoring.top_n must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("scoring: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadWeightsFile reads a YAML weight profile. Values are returned raw so
// the caller can sanitise non-numeric entries.
func LoadWeightsFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read weights file %s", path)
	}

	var doc struct {
		Weights map[string]any `yaml:"weights"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "config: parse weights file %s", path)
	}
	if len(doc.Weights) == 0 {
		return nil, eris.Errorf("config: weights file %s has no weights section", path)
	}
	return doc.Weights, nil
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
