package sources

import (
	"context"
	"time"

	"github.com/StrathCole/ivindex-go/pkg/index"
)

// SourceType represents the type of market data source
type SourceType string

const (
	// SourceTypeCEX is a centralized exchange options venue.
	SourceTypeCEX SourceType = "cex"
)

// Source is the market data capability consumed by the index engine. One
// snapshot covers the whole options chain of one underlying.
type Source interface {
	// Initialize prepares the source for operation
	Initialize(ctx context.Context) error

	// FetchSnapshot returns the raw option chain for an underlying
	FetchSnapshot(ctx context.Context, underlying string) (index.Snapshot, error)

	// Stop halts the source and cleans up resources
	Stop() error

	// Name returns the unique name of this source
	Name() string

	// Type returns the type of this source
	Type() SourceType

	// Underlyings returns the underlyings this source provides
	Underlyings() []string

	// IsHealthy returns whether the last fetch succeeded
	IsHealthy() bool

	// LastUpdate returns the timestamp of the last successful fetch
	LastUpdate() time.Time
}

// SourceFactory is a function that creates a new Source instance
type SourceFactory func(config map[string]interface{}) (Source, error)
