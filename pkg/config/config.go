// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Index, Query, Logging, Metrics, Redis, Kafka, Journal, Watch).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/mir/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Index   IndexConfig   `yaml:"index"`
	Query   QueryConfig   `yaml:"query"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Redis   RedisConfig   `yaml:"redis"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Journal JournalConfig `yaml:"journal"`
	Watch   WatchConfig   `yaml:"watch"`
}

// IndexConfig controls document discovery, encoding resolution and where
// generations are persisted.
type IndexConfig struct {
	DataDir                string  `yaml:"dataDir"`
	Suffix                 string  `yaml:"suffix"`
	SampleBytes            int64   `yaml:"sampleBytes"`
	ReplaceBelowConfidence float64 `yaml:"replaceBelowConfidence"`
	LargeFileConfidence    float64 `yaml:"largeFileConfidence"`
	Workers                int     `yaml:"workers"`
	InstructionsFile       string  `yaml:"instructionsFile"`
	DedupTombstones        bool    `yaml:"dedupTombstones"`
}

// ResolveDataDir returns the directory holding generations for root.
func (c IndexConfig) ResolveDataDir(root string) string {
	if c.DataDir == "" {
		return root
	}
	return c.DataDir
}

// QueryConfig controls query evaluation defaults.
type QueryConfig struct {
	DefaultMode int `yaml:"defaultMode"`
	Limit       int `yaml:"limit"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server and textfile export.
type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Port         int    `yaml:"port"`
	TextfilePath string `yaml:"textfilePath"`
}

// RedisConfig holds Redis connection and query cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled bool        `yaml:"enabled"`
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexComplete string `yaml:"indexComplete"`
}

// JournalConfig selects the SQL database that records indexing runs.
type JournalConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// WatchConfig controls the filesystem watcher that drives incremental updates.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with local batch-run defaults.
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			Suffix:                 ".txt",
			SampleBytes:            100000,
			ReplaceBelowConfidence: 0.63,
			LargeFileConfidence:    0.4,
			DedupTombstones:        true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				IndexComplete: "index.complete",
			},
		},
		Journal: JournalConfig{
			Driver:          "sqlite",
			MaxOpenConns:    1,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
	}
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Index.SampleBytes <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "", "index.sampleBytes must be positive, got %d", c.Index.SampleBytes)
	}
	if c.Index.ReplaceBelowConfidence < 0 || c.Index.ReplaceBelowConfidence > 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "", "index.replaceBelowConfidence must be in [0,1], got %v", c.Index.ReplaceBelowConfidence)
	}
	if c.Index.LargeFileConfidence < 0 || c.Index.LargeFileConfidence > 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "", "index.largeFileConfidence must be in [0,1], got %v", c.Index.LargeFileConfidence)
	}
	if c.Index.Suffix == "" {
		return apperrors.New(apperrors.ErrInvalidConfig, "", "index.suffix must not be empty")
	}
	if c.Index.Workers < 0 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "", "index.workers must not be negative, got %d", c.Index.Workers)
	}
	if c.Journal.Enabled && c.Journal.Driver != "postgres" && c.Journal.Driver != "sqlite" {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "", "journal.driver must be postgres or sqlite, got %q", c.Journal.Driver)
	}
	return nil
}

// applyEnvOverrides reads MIR_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIR_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("MIR_INDEX_SUFFIX"); v != "" {
		cfg.Index.Suffix = v
	}
	if v := os.Getenv("MIR_INDEX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.Workers = n
		}
	}
	if v := os.Getenv("MIR_INDEX_INSTRUCTIONS"); v != "" {
		cfg.Index.InstructionsFile = v
	}
	if v := os.Getenv("MIR_QUERY_DEFAULT_MODE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Query.DefaultMode = n
		}
	}
	if v := os.Getenv("MIR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIR_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("MIR_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.TextfilePath = v
	}
	if v := os.Getenv("MIR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("MIR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MIR_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("MIR_JOURNAL_DSN"); v != "" {
		cfg.Journal.DSN = v
		cfg.Journal.Enabled = true
	}
	if v := os.Getenv("MIR_JOURNAL_DRIVER"); v != "" {
		cfg.Journal.Driver = v
	}
}
