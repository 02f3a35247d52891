package config

import (
	"time"

	"github.com/StrathCole/ivindex-go/pkg/index"
)

// Config is the root configuration structure
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Index   IndexConfig    `yaml:"index"`
	Sources []SourceConfig `yaml:"sources"`
	Storage StorageConfig  `yaml:"storage"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Logging LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the API server and cross-source aggregation
type ServerConfig struct {
	HTTP          HTTPConfig     `yaml:"http"`
	WebSocket     WSConfig       `yaml:"websocket"`
	AggregateMode string         `yaml:"aggregate_mode"`
	Adaptive      AdaptiveConfig `yaml:"adaptive"`
}

// HTTPConfig configures the HTTP server
type HTTPConfig struct {
	Addr string    `yaml:"addr"`
	TLS  TLSConfig `yaml:"tls"`
}

// WSConfig configures the WebSocket stream. Without an addr the stream is
// served on the HTTP port.
type WSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TLSConfig holds TLS certificate configuration
type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
}

// AdaptiveConfig tunes the adaptive aggregate mode
type AdaptiveConfig struct {
	Sensitivity float64 `yaml:"sensitivity"`
	FinalMode   string  `yaml:"final_mode"`
}

// IndexConfig configures the index computation and the refresh loop
type IndexConfig struct {
	Underlyings      []string `yaml:"underlyings"`
	RefreshInterval  Duration `yaml:"refresh_interval"`
	FetchTimeout     Duration `yaml:"fetch_timeout"`
	MaturityDays     float64  `yaml:"maturity_days"`
	HalfLife         float64  `yaml:"half_life"` // in refresh cycles
	SpreadMultiplier float64  `yaml:"spread_multiplier"`
	SpreadMin        *float64 `yaml:"spread_min"` // 0 disables the floor
	RangeMultiplier  float64  `yaml:"range_multiplier"`
	BidCutoff        int      `yaml:"bid_cutoff"`
	ExpiryHourUTC    *int     `yaml:"expiry_hour_utc"`
	HistorySize      int      `yaml:"history_size"`
	IncludeATM       *bool    `yaml:"include_atm"`
}

// Params converts the section to computation parameters.
func (c IndexConfig) Params() index.Params {
	p := index.Params{
		SpreadMultiplier:  c.SpreadMultiplier,
		IndexMaturityDays: c.MaturityDays,
		RangeMult:         c.RangeMultiplier,
		BidCutoff:         c.BidCutoff,
		HalfLife:          c.HalfLife,
		ExpiryHourUTC:     index.DefaultExpiryHourUTC,
		SpreadMin:         index.DefaultSpreadMin,
		IncludeATM:        true,
		HistorySize:       c.HistorySize,
	}
	if c.ExpiryHourUTC != nil {
		p.ExpiryHourUTC = *c.ExpiryHourUTC
	}
	if c.IncludeATM != nil {
		p.IncludeATM = *c.IncludeATM
	}
	if c.SpreadMin != nil {
		p.SpreadMin = *c.SpreadMin
	}
	return p.WithDefaults()
}

// SourceConfig configures a market data source
type SourceConfig struct {
	Type    string                 `yaml:"type"`
	Name    string                 `yaml:"name"`
	Enabled bool                   `yaml:"enabled"`
	Weight  float64                `yaml:"weight"` // aggregation weight, 0 means 1.0
	Config  map[string]interface{} `yaml:"config"`
}

// StorageConfig configures the sinks and the state store
type StorageConfig struct {
	BatchSize     int         `yaml:"batch_size"`
	Terminal      bool        `yaml:"terminal"`
	MySQL         SQLConfig   `yaml:"mysql"`
	Postgres      SQLConfig   `yaml:"postgres"`
	Elasticsearch ESConfig    `yaml:"elasticsearch"`
	Redis         RedisConfig `yaml:"redis"`
}

// DefaultTable is the table and index name of stored index values.
const DefaultTable = "index_value"

// SQLConfig configures a SQL sink
type SQLConfig struct {
	Enabled         bool     `yaml:"enabled"`
	DSN             string   `yaml:"dsn"`
	Table           string   `yaml:"table"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	Timeout         Duration `yaml:"timeout"`
}

// ESConfig configures the Elasticsearch sink
type ESConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Addresses    []string `yaml:"addresses"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	IndexName    string   `yaml:"index_name"`
	MaxIdleConns int      `yaml:"max_idle_conns"`
	Timeout      Duration `yaml:"timeout"`
}

// RedisConfig configures the state store
type RedisConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Addr      string   `yaml:"addr"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	KeyPrefix string   `yaml:"key_prefix"`
	Timeout   Duration `yaml:"timeout"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
