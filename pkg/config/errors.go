// Package config provides configuration loading and validation for ivindex-go.
package config

import "errors"

var (
	// ErrNoSourcesConfigured indicates that no market data sources are configured.
	ErrNoSourcesConfigured = errors.New("at least one source must be configured")
	// ErrNoSourcesEnabled indicates that no sources are enabled.
	ErrNoSourcesEnabled = errors.New("no sources enabled")
	// ErrInvalidAggregateMode indicates that the aggregation mode is invalid.
	ErrInvalidAggregateMode = errors.New("invalid aggregate_mode")
	// ErrTLSConfigIncomplete indicates that TLS config is incomplete.
	ErrTLSConfigIncomplete = errors.New("TLS cert and key must be specified when TLS is enabled")
	// ErrTLSCertNotFound indicates that the TLS cert file was not found.
	ErrTLSCertNotFound = errors.New("TLS cert file not found")
	// ErrTLSKeyNotFound indicates that the TLS key file was not found.
	ErrTLSKeyNotFound = errors.New("TLS key file not found")
	// ErrNoUnderlyings indicates that index.underlyings is empty.
	ErrNoUnderlyings = errors.New("at least one underlying must be configured")
	// ErrInvalidIndexParam indicates an out of range index parameter.
	ErrInvalidIndexParam = errors.New("invalid index parameter")
	// ErrSourceTypeRequired indicates that source type is required.
	ErrSourceTypeRequired = errors.New("source type is required")
	// ErrSourceNameRequired indicates that source name is required.
	ErrSourceNameRequired = errors.New("source name is required")
	// ErrInvalidSourceType indicates that the source type is invalid.
	ErrInvalidSourceType = errors.New("invalid source type")
	// ErrSourceWeightMustBeNonNegative indicates that source weight must be >= 0.
	ErrSourceWeightMustBeNonNegative = errors.New("weight must be >= 0")
	// ErrStorageDSNRequired indicates an enabled SQL sink without a DSN.
	ErrStorageDSNRequired = errors.New("dsn is required when enabled")
	// ErrStorageAddressRequired indicates an enabled sink without an address.
	ErrStorageAddressRequired = errors.New("address is required when enabled")
	// ErrInvalidLogLevel indicates that the log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates that the log format is invalid.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
