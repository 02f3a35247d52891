package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/StrathCole/ivindex-go/pkg/index"
	"github.com/StrathCole/ivindex-go/pkg/logging"
	"github.com/StrathCole/ivindex-go/pkg/metrics"
	"github.com/StrathCole/ivindex-go/pkg/server/aggregator"
	"github.com/StrathCole/ivindex-go/pkg/server/sources"
)

// Engine owns the smoothing state of every underlying. RunCycle is the only
// writer; readers get copies.
type Engine struct {
	cfg        Config
	sources    []sources.Source
	calculator *index.Calculator
	aggregator aggregator.Aggregator
	store      StateStore
	publishers []Publisher
	logger     *logging.Logger
	now        func() time.Time

	mu     sync.RWMutex
	states map[string]index.IndexState
	latest map[string]Update
}

// Option configures an Engine.
type Option func(*Engine)

// WithStateStore persists smoothing state after every update.
func WithStateStore(store StateStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithPublishers adds update publishers.
func WithPublishers(p ...Publisher) Option {
	return func(e *Engine) { e.publishers = append(e.publishers, p...) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an engine.
func New(cfg Config, srcs []sources.Source, calc *index.Calculator, agg aggregator.Aggregator, logger *logging.Logger, opts ...Option) (*Engine, error) {
	if len(srcs) == 0 {
		return nil, ErrNoSources
	}
	if len(cfg.Underlyings) == 0 {
		return nil, ErrNoUnderlyings
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	underlyings := make([]string, 0, len(cfg.Underlyings))
	for _, u := range cfg.Underlyings {
		underlyings = append(underlyings, sources.NormalizeUnderlying(u))
	}
	cfg.Underlyings = underlyings

	e := &Engine{
		cfg:        cfg,
		sources:    srcs,
		calculator: calc,
		aggregator: agg,
		logger:     logger.With("component", "engine"),
		now:        time.Now,
		states:     make(map[string]index.IndexState),
		latest:     make(map[string]Update),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Restore loads the persisted state of every underlying. A missing store or
// missing entry leaves the state empty.
func (e *Engine) Restore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	for _, u := range e.cfg.Underlyings {
		state, ok, err := e.store.Load(ctx, u)
		if err != nil {
			return errors.Wrapf(err, "restore state for %s", u)
		}
		if !ok {
			continue
		}
		e.mu.Lock()
		e.states[u] = state
		e.mu.Unlock()
		e.logger.Info("Restored index state", "underlying", u, "value", state.Value, "cycles", state.Cycles)
	}
	return nil
}

// Run executes a cycle immediately and then on every interval until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Starting index engine",
		"underlyings", e.cfg.Underlyings,
		"interval", e.cfg.Interval.String(),
		"sources", len(e.sources))

	e.RunCycle(ctx)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Index engine stopped")
			return ctx.Err()
		case <-ticker.C:
			e.RunCycle(ctx)
		}
	}
}

// RunCycle performs one refresh of every underlying and returns the updates
// produced. Underlyings that fail keep their previous value.
func (e *Engine) RunCycle(ctx context.Context) []Update {
	cycleID := uuid.NewString()
	start := time.Now()
	now := e.now().UTC()
	logger := e.logger.With("cycle", cycleID)

	snapshots := e.fetch(ctx, logger)

	var updates []Update
	for _, u := range e.cfg.Underlyings {
		upd, err := e.process(cycleID, u, snapshots[u], now, logger)
		if err != nil {
			metrics.RecordCycleFailure(u, failureReason(err))
			logger.Warn("Keeping previous index value", "underlying", u, "error", err)
			continue
		}
		e.commit(ctx, upd, logger)
		updates = append(updates, upd)
	}

	metrics.RecordCycle(time.Since(start))
	logger.Debug("Cycle complete", "updates", len(updates), "duration", time.Since(start).String())
	return updates
}

// fetch queries every source for every underlying it serves in parallel.
// Failed fetches are logged and skipped.
func (e *Engine) fetch(ctx context.Context, logger *logging.Logger) map[string]map[string]index.Snapshot {
	var mu sync.Mutex
	out := make(map[string]map[string]index.Snapshot)

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range e.sources {
		for _, u := range e.cfg.Underlyings {
			if !serves(src, u) {
				continue
			}
			src, u := src, u
			g.Go(func() error {
				fctx, cancel := context.WithTimeout(gctx, e.cfg.FetchTimeout)
				defer cancel()

				snap, err := src.FetchSnapshot(fctx, u)
				if err != nil {
					logger.Warn("Snapshot fetch failed", "source", src.Name(), "underlying", u, "error", err)
					return nil
				}
				mu.Lock()
				if out[u] == nil {
					out[u] = make(map[string]index.Snapshot)
				}
				out[u][src.Name()] = snap
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()
	return out
}

// process turns the snapshots of one underlying into an update and advances
// its state. On error the state is left untouched.
func (e *Engine) process(cycleID, underlying string, snaps map[string]index.Snapshot, now time.Time, logger *logging.Logger) (upd Update, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", index.ErrComputation, r)
		}
	}()

	if len(snaps) == 0 {
		return upd, ErrNoSnapshots
	}

	terms := make(map[string]index.TermResult, len(snaps))
	estimates := make(map[string]map[string]aggregator.Estimate, len(snaps))
	var lastErr error
	for name, snap := range snaps {
		res, err := e.calculator.Compute(snap, now)
		recordQuoteStats(name, res.Stats)
		if err != nil {
			lastErr = err
			logger.Warn("Source variance failed", "source", name, "underlying", underlying, "error", err)
			continue
		}
		metrics.RecordTermVariance(underlying, name, string(index.NearTerm), res.Near.Sigma2)
		metrics.RecordTermVariance(underlying, name, string(index.NextTerm), res.Next.Sigma2)

		terms[name] = res
		estimates[name] = map[string]aggregator.Estimate{
			underlying: {
				Underlying: underlying,
				Sigma2:     decimal.NewFromFloat(res.Sigma2Raw),
				Timestamp:  now,
				Source:     name,
			},
		}
	}
	if len(estimates) == 0 {
		if lastErr != nil {
			return upd, fmt.Errorf("%w: %w", ErrNoEstimates, lastErr)
		}
		return upd, ErrNoEstimates
	}

	aggregated, err := e.aggregator.Aggregate(estimates, e.cfg.Weights)
	if err != nil {
		return upd, err
	}
	est, ok := aggregated[underlying]
	if !ok {
		return upd, fmt.Errorf("%w: %s", aggregator.ErrNoEstimatesForUnderlying, underlying)
	}
	raw := est.Sigma2.InexactFloat64()

	e.mu.RLock()
	prev := e.states[underlying]
	e.mu.RUnlock()
	next := e.calculator.Step(prev, raw, now)

	names := make([]string, 0, len(terms))
	var buckets []index.VarianceEstimate
	for name, res := range terms {
		names = append(names, name)
		buckets = append(buckets, res.Near, res.Next)
	}
	sort.Strings(names)

	upd = Update{
		CycleID:    cycleID,
		Underlying: underlying,
		Timestamp:  now,
		Value:      next.Value,
		Sigma2Raw:  raw,
		Sigma2:     next.Smoothed,
		Method:     est.Source,
		Sources:    names,
		Terms:      terms,
		Rates:      index.TermStructure(buckets),
	}

	e.mu.Lock()
	e.states[underlying] = next
	e.latest[underlying] = upd
	e.mu.Unlock()
	return upd, nil
}

// commit persists the new state and hands the update to the publishers.
func (e *Engine) commit(ctx context.Context, upd Update, logger *logging.Logger) {
	metrics.RecordIndex(upd.Underlying, upd.Value, upd.Sigma2Raw, upd.Sigma2)
	logger.Info("Index updated",
		"underlying", upd.Underlying,
		"value", upd.Value,
		"sigma2_raw", upd.Sigma2Raw,
		"sources", upd.Sources)

	if e.store != nil {
		state, _ := e.State(upd.Underlying)
		if err := e.store.Save(ctx, upd.Underlying, state); err != nil {
			logger.Error("Failed to persist index state", "underlying", upd.Underlying, "error", errors.WithStack(err))
		}
	}
	for _, p := range e.publishers {
		if err := p.Publish(ctx, upd); err != nil {
			logger.Warn("Publisher failed", "underlying", upd.Underlying, "error", err)
		}
	}
}

// Latest returns the last update of an underlying.
func (e *Engine) Latest(underlying string) (Update, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	upd, ok := e.latest[sources.NormalizeUnderlying(underlying)]
	return upd, ok
}

// LatestAll returns the last update of every underlying that has one.
func (e *Engine) LatestAll() map[string]Update {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]Update, len(e.latest))
	for u, upd := range e.latest {
		out[u] = upd
	}
	return out
}

// State returns a copy of the smoothing state of an underlying.
func (e *Engine) State(underlying string) (index.IndexState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.states[sources.NormalizeUnderlying(underlying)]
	if !ok {
		return index.IndexState{}, false
	}
	s.History = append([]index.IndexPoint(nil), s.History...)
	return s, true
}

// Underlyings returns the configured underlyings.
func (e *Engine) Underlyings() []string {
	return e.cfg.Underlyings
}

// Sources returns the engine's sources.
func (e *Engine) Sources() []sources.Source {
	return e.sources
}

func serves(src sources.Source, underlying string) bool {
	for _, u := range src.Underlyings() {
		if u == underlying {
			return true
		}
	}
	return false
}

func recordQuoteStats(source string, s index.QuoteStats) {
	metrics.RecordQuotes(source, "accepted", s.Accepted)
	metrics.RecordQuotes(source, "rejected", s.Rejected)
	metrics.RecordQuotes(source, "parse_error", s.ParseErrors)
	metrics.RecordQuotes(source, "missing_data", s.MissingData)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrNoSnapshots):
		return "fetch"
	case errors.Is(err, index.ErrComputation):
		return "computation"
	case errors.Is(err, index.ErrEmptyBucket), errors.Is(err, index.ErrNoTerms):
		return "empty_bucket"
	case errors.Is(err, ErrNoEstimates):
		return "no_estimates"
	default:
		return "aggregation"
	}
}
