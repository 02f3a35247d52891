package sources

import (
	"fmt"
	"strings"
	"time"

	"github.com/StrathCole/ivindex-go/pkg/logging"
)

// GetLoggerFromConfig extracts logger from config map or returns a noop
// logger. main.go passes its logger under the "logger" key.
func GetLoggerFromConfig(config map[string]interface{}) *logging.Logger {
	if loggerInterface, ok := config["logger"]; ok {
		if logger, ok := loggerInterface.(*logging.Logger); ok {
			return logger
		}
	}
	return logging.NewNoopLogger()
}

// ParseUnderlyings extracts the underlying list from config.
// Expected format: underlyings: ["BTC", "ETH"].
func ParseUnderlyings(config map[string]interface{}) ([]string, error) {
	raw, ok := config["underlyings"]
	if !ok {
		return nil, fmt.Errorf("%w: 'underlyings' key", ErrInvalidConfig)
	}

	var items []string
	switch v := raw.(type) {
	case []string:
		items = v
	case []interface{}:
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: underlyings[%d] is %T", ErrInvalidConfig, i, item)
			}
			items = append(items, s)
		}
	default:
		return nil, fmt.Errorf("%w: underlyings must be a list, got %T", ErrInvalidConfig, raw)
	}

	seen := make(map[string]bool, len(items))
	underlyings := make([]string, 0, len(items))
	for _, item := range items {
		u := NormalizeUnderlying(item)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		underlyings = append(underlyings, u)
	}

	if len(underlyings) == 0 {
		return nil, fmt.Errorf("%w", ErrNoUnderlyingsConfigured)
	}
	return underlyings, nil
}

// ParseHTTPOptions reads timeout, rate_limit, burst, breaker_failures and
// breaker_timeout from config. Missing keys keep their defaults.
func ParseHTTPOptions(config map[string]interface{}) (HTTPOptions, error) {
	var opts HTTPOptions
	var err error

	if opts.Timeout, err = getDuration(config, "timeout"); err != nil {
		return opts, err
	}
	if opts.BreakerTimeout, err = getDuration(config, "breaker_timeout"); err != nil {
		return opts, err
	}
	opts.RateLimit = getFloat(config, "rate_limit", DefaultRateLimit)
	opts.Burst = getInt(config, "burst", DefaultBurst)
	opts.BreakerFailures = uint32(getInt(config, "breaker_failures", DefaultBreakerFailures))
	return opts, nil
}

// GetString returns config[key] as a string, or def.
func GetString(config map[string]interface{}, key, def string) string {
	if v, ok := config[key].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getInt(m map[string]interface{}, key string, defaultVal int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return defaultVal
	}
}

func getFloat(m map[string]interface{}, key string, defaultVal float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return defaultVal
	}
}

func getDuration(m map[string]interface{}, key string) (time.Duration, error) {
	switch v := m[key].(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Second, nil
	default:
		return 0, fmt.Errorf("%w: %s is %T", ErrInvalidConfig, key, v)
	}
}
