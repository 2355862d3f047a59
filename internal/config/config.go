// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/secwatch/secfeeds/internal/feed"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	SlowAPI SlowAPIConfig `mapstructure:"slowapi"`
	API     APIConfig     `mapstructure:"api"`
	Logging LoggingConfig `mapstructure:"logging"`
	Sources []feed.Source `mapstructure:"sources"`
	Bulk    feed.Source   `mapstructure:"bulk"`
}

// ServerConfig controls the read-side HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// FetchConfig governs the ingestion cycle.
type FetchConfig struct {
	IntervalSeconds     int `mapstructure:"interval_seconds"`
	FreshnessDays       int `mapstructure:"freshness_days"`
	ItemCap             int `mapstructure:"item_cap"`
	HTTPTimeoutSeconds  int `mapstructure:"http_timeout_seconds"`
	CycleTimeoutSeconds int `mapstructure:"cycle_timeout_seconds"`
}

// SlowAPIConfig tunes the retry policy for the slow JSON endpoint.
type SlowAPIConfig struct {
	TimeoutSeconds     int `mapstructure:"timeout_seconds"`
	MaxAttempts        int `mapstructure:"max_attempts"`
	BackoffBaseSeconds int `mapstructure:"backoff_base_seconds"`
}

// APIConfig shapes the read-side query contract.
type APIConfig struct {
	KeySources  []string `mapstructure:"key_sources"`
	TopLimit    int      `mapstructure:"top_limit"`
	SourceLimit int      `mapstructure:"source_limit"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SECFEEDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.Sources) == 0 {
		cfg.Sources = DefaultSources(cfg.Fetch.ItemCap)
	}
	if cfg.Bulk.URL == "" {
		cfg.Bulk = DefaultBulkSource(cfg.Fetch.ItemCap)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("fetch.interval_seconds", 300)
	v.SetDefault("fetch.freshness_days", 20)
	v.SetDefault("fetch.item_cap", 10)
	v.SetDefault("fetch.http_timeout_seconds", 10)
	v.SetDefault("fetch.cycle_timeout_seconds", 600)
	v.SetDefault("slowapi.timeout_seconds", 90)
	v.SetDefault("slowapi.max_attempts", 5)
	v.SetDefault("slowapi.backoff_base_seconds", 1)
	v.SetDefault("api.key_sources", []string{"The Hacker News", "BleepingComputer", "SecurityWeek"})
	v.SetDefault("api.top_limit", 5)
	v.SetDefault("api.source_limit", 50)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.IntervalSeconds <= 0 {
		return fmt.Errorf("fetch.interval_seconds must be > 0")
	}
	if c.Fetch.FreshnessDays <= 0 {
		return fmt.Errorf("fetch.freshness_days must be > 0")
	}
	if c.SlowAPI.MaxAttempts <= 0 {
		return fmt.Errorf("slowapi.max_attempts must be > 0")
	}
	if c.SlowAPI.TimeoutSeconds <= 0 {
		return fmt.Errorf("slowapi.timeout_seconds must be > 0")
	}
	for _, src := range c.Sources {
		if src.Name == "" || src.URL == "" {
			return fmt.Errorf("every source needs a name and a url")
		}
		switch src.Kind {
		case feed.KindRSS, feed.KindHTMLIndex, feed.KindSlowJSON:
		default:
			return fmt.Errorf("source %q has unknown kind %q", src.Name, src.Kind)
		}
	}
	if c.Bulk.URL == "" {
		return fmt.Errorf("bulk.url must be set")
	}
	if c.Bulk.Kind != feed.KindBulkGzip {
		return fmt.Errorf("bulk source %q must have kind %q, got %q", c.Bulk.Name, feed.KindBulkGzip, c.Bulk.Kind)
	}
	return nil
}

// Interval returns the wall-clock delay between ingestion cycles.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Fetch.IntervalSeconds) * time.Second
}

// FreshnessWindow returns the retention window for stored records.
func (c Config) FreshnessWindow() time.Duration {
	return time.Duration(c.Fetch.FreshnessDays) * 24 * time.Hour
}

// CycleTimeout bounds one full prune+fetch+commit cycle.
func (c Config) CycleTimeout() time.Duration {
	return time.Duration(c.Fetch.CycleTimeoutSeconds) * time.Second
}

// HTTPTimeout is the per-request budget for ordinary sources.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Fetch.HTTPTimeoutSeconds) * time.Second
}

// SlowAPITimeout is the per-attempt budget for the slow JSON endpoint.
func (c Config) SlowAPITimeout() time.Duration {
	return time.Duration(c.SlowAPI.TimeoutSeconds) * time.Second
}

// SlowAPIBackoffBase is the unit delay for the slow endpoint's backoff.
func (c Config) SlowAPIBackoffBase() time.Duration {
	return time.Duration(c.SlowAPI.BackoffBaseSeconds) * time.Second
}
