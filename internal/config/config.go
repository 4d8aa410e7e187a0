// Package config provides application configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"ratefeed/internal/currency"
	"ratefeed/internal/query"
)

// Source kinds.
const (
	SourceHTTP = "http"
	SourceSQL  = "sql"
)

// Storage kinds.
const (
	StorageRedis = "redis"
	StorageSQL   = "sql"
)

// Config holds the complete application configuration.
type Config struct {
	Server    ServerConfig
	Source    SourceConfig
	Storage   StorageConfig
	Fetch     FetchConfig
	Worker    WorkerConfig
	Scheduler SchedulerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port          int  `mapstructure:"port"`
	ServeSwagger  bool `mapstructure:"serve_swagger"`
	ServeAsynqmon bool `mapstructure:"serve_asynqmon"`
}

// SourceConfig selects and configures the exchange rate data source.
type SourceConfig struct {
	Kind       string `mapstructure:"kind"`
	Resource   string `mapstructure:"resource"`
	BaseURL    string `mapstructure:"base_url"`
	Path       string `mapstructure:"path"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
	Driver     string `mapstructure:"driver"`
	DSN        string `mapstructure:"dsn"`
	Table      string `mapstructure:"table"`

	// MaxBodyBytes caps an HTTP source response.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// StorageConfig selects the durable key-value store for the series and the selection.
type StorageConfig struct {
	Kind      string `mapstructure:"kind"`
	RedisAddr string `mapstructure:"redis_addr"` // Redis instance for the KV store when kind is redis.
	Driver    string `mapstructure:"driver"`
	DSN       string `mapstructure:"dsn"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// FetchConfig holds fetch pipeline settings.
type FetchConfig struct {
	DiscardStale    bool   `mapstructure:"discard_stale"`
	TimeoutSec      int    `mapstructure:"timeout_sec"`
	LookbackDays    int    `mapstructure:"lookback_days"`
	DefaultCurrency string `mapstructure:"default_currency"`
	// Timezone is an IANA name; empty means the host's local zone.
	Timezone string `mapstructure:"timezone"`
}

// WorkerConfig holds background worker and task queue settings.
type WorkerConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	RedisAddr        string `mapstructure:"redis_addr"` // Redis instance for the Asynq task queue.
	Concurrency      int    `mapstructure:"concurrency"`
	TimeoutSec       int    `mapstructure:"timeout_sec"`
	CheckIntervalSec int    `mapstructure:"check_interval_sec"`
}

// SchedulerConfig holds the periodic refresh settings. An empty RefreshCron disables it.
type SchedulerConfig struct {
	RefreshCron string `mapstructure:"refresh_cron"`
}

// Lookback returns the default selection window.
func (c FetchConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// Timeout returns the per-fetch bound, zero for none.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.serve_swagger", true)
	v.SetDefault("server.serve_asynqmon", true)
	v.SetDefault("source.kind", SourceHTTP)
	v.SetDefault("source.resource", query.DefaultResource)
	v.SetDefault("source.base_url", "http://localhost:9090")
	v.SetDefault("source.path", "/exchange_rates")
	v.SetDefault("source.timeout_sec", 10)
	v.SetDefault("source.max_body_bytes", 8<<20)
	v.SetDefault("source.driver", "pgx")
	v.SetDefault("source.dsn", "")
	v.SetDefault("source.table", "exchange_rates")
	v.SetDefault("storage.kind", StorageSQL)
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "ratefeed.db")
	v.SetDefault("storage.key_prefix", "exchange_data:")
	v.SetDefault("fetch.discard_stale", true)
	v.SetDefault("fetch.timeout_sec", 30)
	v.SetDefault("fetch.lookback_days", 7)
	v.SetDefault("fetch.default_currency", string(currency.Default))
	v.SetDefault("fetch.timezone", "")
	v.SetDefault("worker.enabled", false)
	v.SetDefault("worker.redis_addr", "localhost:6380")
	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.timeout_sec", 60)
	v.SetDefault("worker.check_interval_sec", 5)
	v.SetDefault("scheduler.refresh_cron", "")
}

// LoadConfig reads configuration from config files, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		fmt.Printf("No .env file found or error loading it: %v\n", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Config search paths
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./internal/config")

	if err := v.ReadInConfig(); err != nil {
		// It's okay if no config file, we have defaults and env
		fmt.Printf("Config file not found: %v\n", err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("RATEFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Fetch.DefaultCurrency = strings.ToUpper(strings.TrimSpace(cfg.Fetch.DefaultCurrency))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks that all required configuration fields are set and valid.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be positive, got %d", c.Server.Port))
	}

	switch c.Source.Kind {
	case SourceHTTP:
		if c.Source.BaseURL == "" {
			errs = append(errs, fmt.Errorf("source.base_url is required (set RATEFEED_SOURCE_BASE_URL)"))
		}
		if c.Source.MaxBodyBytes <= 0 {
			errs = append(errs, fmt.Errorf("source.max_body_bytes must be positive, got %d", c.Source.MaxBodyBytes))
		}
	case SourceSQL:
		if c.Source.DSN == "" {
			errs = append(errs, fmt.Errorf("source.dsn is required (set RATEFEED_SOURCE_DSN)"))
		}
		if c.Source.Table == "" {
			errs = append(errs, fmt.Errorf("source.table is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("source.kind must be %q or %q, got %q", SourceHTTP, SourceSQL, c.Source.Kind))
	}
	if c.Source.TimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("source.timeout_sec must be positive, got %d", c.Source.TimeoutSec))
	}

	switch c.Storage.Kind {
	case StorageRedis:
		if c.Storage.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("storage.redis_addr is required (set RATEFEED_STORAGE_REDIS_ADDR)"))
		}
	case StorageSQL:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required (set RATEFEED_STORAGE_DSN)"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.kind must be %q or %q, got %q", StorageRedis, StorageSQL, c.Storage.Kind))
	}

	if c.Fetch.TimeoutSec < 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout_sec must be non-negative, got %d", c.Fetch.TimeoutSec))
	}
	if c.Fetch.LookbackDays <= 0 {
		errs = append(errs, fmt.Errorf("fetch.lookback_days must be positive, got %d", c.Fetch.LookbackDays))
	}
	if _, err := currency.Parse(c.Fetch.DefaultCurrency); err != nil {
		errs = append(errs, fmt.Errorf("fetch.default_currency: %w", err))
	}
	if c.Fetch.Timezone != "" {
		if _, err := time.LoadLocation(c.Fetch.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("fetch.timezone: %w", err))
		}
	}

	if c.Worker.Enabled {
		if c.Worker.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("worker.redis_addr is required (set RATEFEED_WORKER_REDIS_ADDR)"))
		}
		if c.Worker.Concurrency <= 0 {
			errs = append(errs, fmt.Errorf("worker.concurrency must be positive, got %d", c.Worker.Concurrency))
		}
		if c.Worker.TimeoutSec <= 0 {
			errs = append(errs, fmt.Errorf("worker.timeout_sec must be positive, got %d", c.Worker.TimeoutSec))
		}
		if c.Worker.CheckIntervalSec <= 0 {
			errs = append(errs, fmt.Errorf("worker.check_interval_sec must be positive, got %d", c.Worker.CheckIntervalSec))
		}
	}

	return errors.Join(errs...)
}
