// Package config loads application configuration and the global logger.
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
	OneMap    OneMapConfig    `yaml:"onemap" mapstructure:"onemap"`
	OSRM      OSRMConfig      `yaml:"osrm" mapstructure:"osrm"`
	CBD       CBDConfig       `yaml:"cbd" mapstructure:"cbd"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Input     InputConfig     `yaml:"input" mapstructure:"input"`
	Reference ReferenceConfig `yaml:"reference" mapstructure:"reference"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// OneMapConfig holds place-search API settings.
type OneMapConfig struct {
	Token   string  `yaml:"token" mapstructure:"token"`
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// OSRMConfig holds routing service settings.
type OSRMConfig struct {
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Retries    int    `yaml:"retries" mapstructure:"retries"`
	RetryDelay int    `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
}

// CBDConfig is the fixed central business district reference point.
type CBDConfig struct {
	Latitude  float64 `yaml:"latitude" mapstructure:"latitude"`
	Longitude float64 `yaml:"longitude" mapstructure:"longitude"`
}

// CacheConfig configures the persistent lookup caches.
type CacheConfig struct {
	// Driver selects the backend: "csv" (default) or "sqlite".
	Driver string `yaml:"driver" mapstructure:"driver"`
	// GeocodePath / DistancePath back the csv driver.
	GeocodePath  string `yaml:"geocode_path" mapstructure:"geocode_path"`
	DistancePath string `yaml:"distance_path" mapstructure:"distance_path"`
	// SQLitePath backs the sqlite driver.
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	// TransientErrors persists transient geocode failures as cache
	// entries. Off by default so later runs retry them.
	TransientErrors bool `yaml:"transient_errors" mapstructure:"transient_errors"`
}

// InputConfig names the property CSV columns forming the address.
type InputConfig struct {
	BlockColumn  string `yaml:"block_column" mapstructure:"block_column"`
	StreetColumn string `yaml:"street_column" mapstructure:"street_column"`
}

// ReferenceConfig points at the reference-data manifest.
type ReferenceConfig struct {
	Manifest string `yaml:"manifest" mapstructure:"manifest"`
}

// EnrichConfig tunes the enrichment run.
type EnrichConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
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
	v.SetEnvPrefix("GEOENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("onemap.base_url", "https://www.onemap.gov.sg")
	v.SetDefault("onemap.rps", 10.0) // one request per 100ms
	v.SetDefault("osrm.base_url", "http://router.project-osrm.org")
	v.SetDefault("osrm.retries", 3)
	v.SetDefault("osrm.retry_delay_secs", 1)
	v.SetDefault("cbd.latitude", 1.283871989921002)
	v.SetDefault("cbd.longitude", 103.85149113157198)
	v.SetDefault("cache.driver", "csv")
	v.SetDefault("cache.geocode_path", "geocoded_addresses.csv")
	v.SetDefault("cache.distance_path", "travel_distance_cache.csv")
	v.SetDefault("cache.sqlite_path", "geoenrich_cache.db")
	v.SetDefault("cache.transient_errors", false)
	v.SetDefault("input.block_column", "block / building")
	v.SetDefault("input.street_column", "street_name")
	v.SetDefault("reference.manifest", "reference.yaml")
	v.SetDefault("enrich.workers", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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
