package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/StrathCole/ivindex-go/pkg/index"
)

// Load loads configuration from YAML file and environment variables. A .env
// file next to the config file is loaded first when present; variables
// already set in the environment win.
func Load(path string) (*Config, error) {
	// Validate and sanitize path
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	if err := LoadEnvFile(filepath.Join(filepath.Dir(absPath), ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	// Read config file
	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse expands ${VAR} references and decodes YAML with defaults applied.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs into the environment without
// overriding variables that are already set.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.HTTP.Addr == "" {
		cfg.Server.HTTP.Addr = ":8080"
	}
	if cfg.Server.AggregateMode == "" {
		cfg.Server.AggregateMode = "median"
	}

	// Index defaults
	if cfg.Index.RefreshInterval.ToDuration() == 0 {
		cfg.Index.RefreshInterval = Duration(15 * time.Second)
	}
	if cfg.Index.FetchTimeout.ToDuration() == 0 {
		cfg.Index.FetchTimeout = Duration(10 * time.Second)
	}
	if cfg.Index.MaturityDays == 0 {
		cfg.Index.MaturityDays = index.DefaultIndexMaturityDays
	}
	if cfg.Index.HalfLife == 0 {
		cfg.Index.HalfLife = index.DefaultHalfLife
	}

	// Source defaults
	for i := range cfg.Sources {
		if cfg.Sources[i].Weight == 0 {
			cfg.Sources[i].Weight = 1.0
		}
	}

	// Storage defaults
	if cfg.Storage.BatchSize == 0 {
		cfg.Storage.BatchSize = 1
	}
	if cfg.Storage.Redis.Addr == "" {
		cfg.Storage.Redis.Addr = "localhost:6379"
	}
	for _, sql := range []*SQLConfig{&cfg.Storage.MySQL, &cfg.Storage.Postgres} {
		if sql.Table == "" {
			sql.Table = DefaultTable
		}
		if sql.Timeout.ToDuration() == 0 {
			sql.Timeout = Duration(5 * time.Second)
		}
	}
	if cfg.Storage.Elasticsearch.IndexName == "" {
		cfg.Storage.Elasticsearch.IndexName = DefaultTable
	}

	// Metrics defaults
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// EnabledSources returns the enabled source entries.
func (c *Config) EnabledSources() []SourceConfig {
	out := make([]SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// SourceWeights maps source names to their aggregation weights.
func (c *Config) SourceWeights() map[string]float64 {
	weights := make(map[string]float64, len(c.Sources))
	for _, s := range c.EnabledSources() {
		weights[s.Name] = s.Weight
	}
	return weights
}

