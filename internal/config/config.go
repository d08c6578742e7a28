// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Storage backends accepted by storage.backend.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Progress ProgressConfig `mapstructure:"progress"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	DB       DBConfig       `mapstructure:"db"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// CrawlerConfig sizes the worker pools and the fetcher.
type CrawlerConfig struct {
	DownloadPoolSize      int    `mapstructure:"download_pool_size"`
	ParsePoolSize         int    `mapstructure:"parse_pool_size"`
	MaxDepth              int    `mapstructure:"max_depth"`
	UserAgent             string `mapstructure:"user_agent"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	RespectRobots         bool   `mapstructure:"respect_robots"`
}

// StorageConfig selects where article bodies are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	RootDir   string `mapstructure:"root_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// ProgressConfig tunes the progress hub. A non-empty Topic publishes finished
// crawl runs to Pub/Sub.
type ProgressConfig struct {
	BufferSize     int    `mapstructure:"buffer_size"`
	MaxBatchEvents int    `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int    `mapstructure:"max_batch_wait_ms"`
	Topic          string `mapstructure:"topic"`
}

// PubSubConfig holds the Pub/Sub project.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// DBConfig controls the optional Postgres run store. An empty DSN keeps runs
// in memory.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from defaults, an optional file and CRAWLER_* variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("crawler.download_pool_size", 8)
	v.SetDefault("crawler.parse_pool_size", 4)
	v.SetDefault("crawler.max_depth", 3)
	v.SetDefault("crawler.user_agent", "wikicrawler/0.1")
	v.SetDefault("crawler.request_timeout_seconds", 15)
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.root_dir", "./data")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait_ms", 500)
	v.SetDefault("progress.topic", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "crawl_runs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 {
		errs = append(errs, errors.New("server.port must be > 0"))
	}
	if c.Crawler.DownloadPoolSize <= 0 {
		errs = append(errs, errors.New("crawler.download_pool_size must be > 0"))
	}
	if c.Crawler.ParsePoolSize <= 0 {
		errs = append(errs, errors.New("crawler.parse_pool_size must be > 0"))
	}
	if c.Crawler.MaxDepth <= 0 {
		errs = append(errs, errors.New("crawler.max_depth must be > 0"))
	}
	if c.Crawler.RequestTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("crawler.request_timeout_seconds must be > 0"))
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.RootDir == "" {
			errs = append(errs, errors.New("storage.root_dir is required for the local backend"))
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			errs = append(errs, errors.New("storage.gcs_bucket is required for the gcs backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of local, gcs, memory", c.Storage.Backend))
	}
	if c.Progress.Topic != "" && c.PubSub.ProjectID == "" {
		errs = append(errs, errors.New("pubsub.project_id is required when progress.topic is set"))
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	return errors.Join(errs...)
}

// RequestTimeout is the per-download deadline.
func (c CrawlerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// MaxBatchWait is the longest a progress event waits for its batch.
func (c ProgressConfig) MaxBatchWait() time.Duration {
	return time.Duration(c.MaxBatchWaitMs) * time.Millisecond
}

// RequestTimeout bounds each HTTP handler.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}
