// Package config loads the indexer configuration from an optional YAML file,
// a .env file and TI_* environment variables, in that order of precedence
// (later wins). Command-line flags are applied on top by the caller.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/logger"
)

// Config is the top-level configuration.
type Config struct {
	Index   IndexConfig   `yaml:"index"`
	Search  SearchConfig  `yaml:"search"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Redis   RedisConfig   `yaml:"redis"`
	Tracing TracingConfig `yaml:"tracing"`
}

// IndexConfig controls how files are indexed.
type IndexConfig struct {
	Threads       int  `yaml:"threads"`
	BatchMerge    bool `yaml:"batchMerge"`
	StemCacheSize int  `yaml:"stemCacheSize"`
}

type SearchConfig struct {
	Exact bool `yaml:"exact"`
}

// OutputConfig holds the paths used when an output flag is given without a
// value.
type OutputConfig struct {
	Index   string `yaml:"index"`
	Counts  string `yaml:"counts"`
	Results string `yaml:"results"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint, off unless enabled.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// RedisConfig holds the optional query result cache settings.
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`
	KeyPrefix string        `yaml:"keyPrefix"`
	Timeout   time.Duration `yaml:"timeout"`
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load builds a Config from defaults, the YAML file at path when path is not
// empty, and the environment. A .env file in the working directory is loaded
// into the environment first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.IOFailure("reading config file "+path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, "parsing config file %s: %v", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Threads:       5,
			StemCacheSize: 10000,
		},
		Output: OutputConfig{
			Index:   "index.json",
			Counts:  "counts.json",
			Results: "results.json",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			CacheTTL:  10 * time.Minute,
			KeyPrefix: "textindex:",
			Timeout:   500 * time.Millisecond,
		},
	}
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	if c.Index.Threads < 0 {
		return apperrors.Newf(apperrors.ErrInvalidInput, "index.threads must not be negative, got %d", c.Index.Threads)
	}
	if c.Index.StemCacheSize < 0 {
		return apperrors.Newf(apperrors.ErrInvalidInput, "index.stemCacheSize must not be negative, got %d", c.Index.StemCacheSize)
	}
	if !logger.ValidLevel(c.Logging.Level) {
		return apperrors.Newf(apperrors.ErrInvalidInput, "unknown logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text", "auto":
	default:
		return apperrors.Newf(apperrors.ErrInvalidInput, "unknown logging.format %q", c.Logging.Format)
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return apperrors.Newf(apperrors.ErrInvalidInput, "metrics.port out of range: %d", c.Metrics.Port)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "redis.addr is required when redis is enabled")
	}
	return nil
}

// applyEnvOverrides reads TI_* variables. Values that do not parse are
// ignored.
func applyEnvOverrides(cfg *Config) {
	envInt("TI_INDEX_THREADS", &cfg.Index.Threads)
	envBool("TI_INDEX_BATCH_MERGE", &cfg.Index.BatchMerge)
	envInt("TI_INDEX_STEM_CACHE_SIZE", &cfg.Index.StemCacheSize)
	envBool("TI_SEARCH_EXACT", &cfg.Search.Exact)
	envString("TI_OUTPUT_INDEX", &cfg.Output.Index)
	envString("TI_OUTPUT_COUNTS", &cfg.Output.Counts)
	envString("TI_OUTPUT_RESULTS", &cfg.Output.Results)
	envString("TI_LOGGING_LEVEL", &cfg.Logging.Level)
	envString("TI_LOGGING_FORMAT", &cfg.Logging.Format)
	envBool("TI_METRICS_ENABLED", &cfg.Metrics.Enabled)
	envInt("TI_METRICS_PORT", &cfg.Metrics.Port)
	envBool("TI_REDIS_ENABLED", &cfg.Redis.Enabled)
	envString("TI_REDIS_ADDR", &cfg.Redis.Addr)
	envString("TI_REDIS_PASSWORD", &cfg.Redis.Password)
	envInt("TI_REDIS_DB", &cfg.Redis.DB)
	envDuration("TI_REDIS_CACHE_TTL", &cfg.Redis.CacheTTL)
	envString("TI_REDIS_KEY_PREFIX", &cfg.Redis.KeyPrefix)
	envBool("TI_TRACING_ENABLED", &cfg.Tracing.Enabled)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("threads=%d batchMerge=%t exact=%t redis=%t metrics=%t tracing=%t",
		c.Index.Threads, c.Index.BatchMerge, c.Search.Exact, c.Redis.Enabled, c.Metrics.Enabled, c.Tracing.Enabled)
}
