package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/StrathCole/ivindex-go/pkg/logging"
	"github.com/StrathCole/ivindex-go/pkg/metrics"
	"github.com/StrathCole/ivindex-go/pkg/version"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HTTPOptions tunes the REST plumbing shared by venue adapters.
type HTTPOptions struct {
	Timeout         time.Duration
	RateLimit       float64 // requests per second, 0 disables throttling
	Burst           int
	BreakerFailures uint32        // consecutive failures that open the breaker
	BreakerTimeout  time.Duration // open state duration before a half-open probe
}

// Default HTTP options.
const (
	DefaultHTTPTimeout     = 10 * time.Second
	DefaultRateLimit       = 5.0
	DefaultBurst           = 5
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 30 * time.Second
)

func (o HTTPOptions) withDefaults() HTTPOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultHTTPTimeout
	}
	if o.Burst <= 0 {
		o.Burst = DefaultBurst
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = DefaultBreakerFailures
	}
	if o.BreakerTimeout <= 0 {
		o.BreakerTimeout = DefaultBreakerTimeout
	}
	return o
}

// BaseSource provides common functionality for all market data sources
type BaseSource struct {
	name        string
	sourcetype  SourceType
	underlyings []string
	lastUpdate  time.Time
	updateMu    sync.RWMutex
	healthy     bool
	healthMu    sync.RWMutex
	stopChan    chan struct{}
	logger      *logging.Logger

	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewBaseSource creates a new base source serving the given underlyings.
func NewBaseSource(name string, sourcetype SourceType, underlyings []string, logger *logging.Logger, opts HTTPOptions) *BaseSource {
	opts = opts.withDefaults()
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	seen := make(map[string]bool, len(underlyings))
	normalized := make([]string, 0, len(underlyings))
	for _, u := range underlyings {
		n := NormalizeUnderlying(u)
		if !seen[n] {
			seen[n] = true
			normalized = append(normalized, n)
		}
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	b := &BaseSource{
		name:        name,
		sourcetype:  sourcetype,
		underlyings: normalized,
		stopChan:    make(chan struct{}),
		logger:      logger.With("source", name),
		client:      &http.Client{Timeout: opts.Timeout},
		limiter:     rate.NewLimiter(limit, opts.Burst),
	}
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("Circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})
	return b
}

// Name returns the source name
func (b *BaseSource) Name() string {
	return b.name
}

// Type returns the source type
func (b *BaseSource) Type() SourceType {
	return b.sourcetype
}

// Underlyings returns the underlyings this source provides
func (b *BaseSource) Underlyings() []string {
	return b.underlyings
}

// Supports reports whether the source serves the underlying.
func (b *BaseSource) Supports(underlying string) bool {
	u := NormalizeUnderlying(underlying)
	for _, have := range b.underlyings {
		if have == u {
			return true
		}
	}
	return false
}

// IsHealthy returns the health status
func (b *BaseSource) IsHealthy() bool {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.healthy
}

// SetHealthy sets the health status
func (b *BaseSource) SetHealthy(healthy bool) {
	b.healthMu.Lock()
	b.healthy = healthy
	b.healthMu.Unlock()
	metrics.RecordSourceHealth(b.name, string(b.sourcetype), healthy)
}

// LastUpdate returns the time of the last successful fetch
func (b *BaseSource) LastUpdate() time.Time {
	b.updateMu.RLock()
	defer b.updateMu.RUnlock()
	return b.lastUpdate
}

// SetLastUpdate sets the last update time
func (b *BaseSource) SetLastUpdate(t time.Time) {
	b.updateMu.Lock()
	defer b.updateMu.Unlock()
	b.lastUpdate = t
}

// MarkFetch records the outcome of a snapshot fetch started at start.
func (b *BaseSource) MarkFetch(start time.Time, err error) {
	metrics.RecordSourceFetch(b.name, time.Since(start), err)
	if err != nil {
		b.SetHealthy(false)
		return
	}
	b.SetLastUpdate(time.Now())
	b.SetHealthy(true)
}

// GetJSON performs a throttled GET through the circuit breaker and decodes
// the JSON body into out.
func (b *BaseSource) GetJSON(ctx context.Context, url string, out interface{}) error {
	select {
	case <-b.stopChan:
		return ErrSourceStopped
	default:
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRateLimitExceeded, err)
	}

	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.get(ctx, url, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %w", ErrCircuitOpen, b.name, err)
	}
	return err
}

func (b *BaseSource) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.AgentString())
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimitExceeded, url)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, url)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return nil
}

// BreakerState returns the circuit breaker state.
func (b *BaseSource) BreakerState() gobreaker.State {
	return b.breaker.State()
}

// StopChan returns the stop channel
func (b *BaseSource) StopChan() <-chan struct{} {
	return b.stopChan
}

// Close closes the stop channel
func (b *BaseSource) Close() {
	select {
	case <-b.stopChan:
	default:
		close(b.stopChan)
	}
}

// Logger returns the logger
func (b *BaseSource) Logger() *logging.Logger {
	return b.logger
}
