// Package engine drives the refresh cycle: it fetches snapshots from every
// source, computes raw variances, aggregates them across sources, advances
// the smoothing state of each underlying and publishes the result.
package engine

import (
	"context"
	"time"

	"github.com/StrathCole/ivindex-go/pkg/index"
)

// Update is the outcome of one cycle for one underlying.
type Update struct {
	CycleID    string                      `json:"cycle_id"`
	Underlying string                      `json:"underlying"`
	Timestamp  time.Time                   `json:"timestamp"`
	Value      float64                     `json:"value"`
	Sigma2Raw  float64                     `json:"sigma2_raw"`
	Sigma2     float64                     `json:"sigma2"`
	Method     string                      `json:"method"`
	Sources    []string                    `json:"sources"`
	Terms      map[string]index.TermResult `json:"terms"`
	Rates      []index.RatePoint           `json:"rates"`
}

// Publisher receives every update the engine produces.
type Publisher interface {
	Publish(ctx context.Context, u Update) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, u Update) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, u Update) error {
	return f(ctx, u)
}

// StateStore persists the smoothing state of each underlying so a restart
// resumes the EWMA instead of reseeding it.
type StateStore interface {
	Load(ctx context.Context, underlying string) (index.IndexState, bool, error)
	Save(ctx context.Context, underlying string, state index.IndexState) error
}

// Config tunes the engine loop.
type Config struct {
	Underlyings  []string
	Interval     time.Duration
	FetchTimeout time.Duration
	Weights      map[string]float64
}

// Default loop settings.
const (
	DefaultInterval     = 15 * time.Second
	DefaultFetchTimeout = 10 * time.Second
)
