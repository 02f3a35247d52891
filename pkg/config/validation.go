package config

import (
	"fmt"
	"os"
	"strings"
)

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	if err := validateServerConfig(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateIndexConfig(&cfg.Index); err != nil {
		return fmt.Errorf("index config: %w", err)
	}

	if len(cfg.Sources) == 0 {
		return ErrNoSourcesConfigured
	}
	for i, source := range cfg.Sources {
		if err := validateSourceConfig(&source); err != nil {
			return fmt.Errorf("source %d (%s.%s): %w", i, source.Type, source.Name, err)
		}
	}
	if len(cfg.EnabledSources()) == 0 {
		return ErrNoSourcesEnabled
	}

	if err := validateStorageConfig(&cfg.Storage); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateServerConfig(cfg *ServerConfig) error {
	switch strings.ToLower(cfg.AggregateMode) {
	case "median", "average", "adaptive":
	default:
		return fmt.Errorf("%w: %s (must be 'median', 'average', or 'adaptive')", ErrInvalidAggregateMode, cfg.AggregateMode)
	}

	if cfg.HTTP.TLS.Enabled {
		if cfg.HTTP.TLS.Cert == "" || cfg.HTTP.TLS.Key == "" {
			return ErrTLSConfigIncomplete
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Cert); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSCertNotFound, cfg.HTTP.TLS.Cert)
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Key); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSKeyNotFound, cfg.HTTP.TLS.Key)
		}
	}

	return nil
}

func validateIndexConfig(cfg *IndexConfig) error {
	if len(cfg.Underlyings) == 0 {
		return ErrNoUnderlyings
	}

	switch {
	case cfg.MaturityDays <= 0:
		return fmt.Errorf("%w: maturity_days must be > 0", ErrInvalidIndexParam)
	case cfg.HalfLife <= 0:
		return fmt.Errorf("%w: half_life must be > 0", ErrInvalidIndexParam)
	case cfg.SpreadMultiplier < 0 || (cfg.SpreadMin != nil && *cfg.SpreadMin < 0):
		return fmt.Errorf("%w: spread_multiplier and spread_min must be >= 0", ErrInvalidIndexParam)
	case cfg.RangeMultiplier != 0 && cfg.RangeMultiplier <= 1:
		return fmt.Errorf("%w: range_multiplier must be > 1", ErrInvalidIndexParam)
	case cfg.BidCutoff < 0:
		return fmt.Errorf("%w: bid_cutoff must be >= 0", ErrInvalidIndexParam)
	case cfg.ExpiryHourUTC != nil && (*cfg.ExpiryHourUTC < 0 || *cfg.ExpiryHourUTC > 23):
		return fmt.Errorf("%w: expiry_hour_utc must be within 0-23", ErrInvalidIndexParam)
	case cfg.HistorySize < 0:
		return fmt.Errorf("%w: history_size must be >= 0", ErrInvalidIndexParam)
	case cfg.RefreshInterval.ToDuration() < 0 || cfg.FetchTimeout.ToDuration() < 0:
		return fmt.Errorf("%w: durations must be positive", ErrInvalidIndexParam)
	}

	return nil
}

func validateSourceConfig(cfg *SourceConfig) error {
	if cfg.Type == "" {
		return ErrSourceTypeRequired
	}
	if strings.ToLower(cfg.Type) != "cex" {
		return fmt.Errorf("%w: %s (must be 'cex')", ErrInvalidSourceType, cfg.Type)
	}
	if cfg.Name == "" {
		return ErrSourceNameRequired
	}
	if cfg.Weight < 0 {
		return ErrSourceWeightMustBeNonNegative
	}
	return nil
}

func validateStorageConfig(cfg *StorageConfig) error {
	if cfg.MySQL.Enabled && cfg.MySQL.DSN == "" {
		return fmt.Errorf("mysql: %w", ErrStorageDSNRequired)
	}
	if cfg.Postgres.Enabled && cfg.Postgres.DSN == "" {
		return fmt.Errorf("postgres: %w", ErrStorageDSNRequired)
	}
	if cfg.Elasticsearch.Enabled && len(cfg.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("elasticsearch: %w", ErrStorageAddressRequired)
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis: %w", ErrStorageAddressRequired)
	}
	return nil
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %s (must be one of: debug, info, warn, error)", ErrInvalidLogLevel, cfg.Level)
	}

	switch strings.ToLower(cfg.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: %s (must be 'json' or 'text')", ErrInvalidLogFormat, cfg.Format)
	}

	return nil
}
