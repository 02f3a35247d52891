// Package storage persists published index values to terminal, MySQL,
// PostgreSQL and Elasticsearch sinks, and keeps the smoothing state in Redis.
package storage

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/StrathCole/ivindex-go/pkg/logging"
	"github.com/StrathCole/ivindex-go/pkg/metrics"
	"github.com/StrathCole/ivindex-go/pkg/server/engine"
)

// Record is the stored form of one index update.
type Record struct {
	CycleID    string    `json:"cycle_id" db:"cycle_id"`
	Underlying string    `json:"underlying" db:"underlying"`
	Value      float64   `json:"value" db:"value"`
	Sigma2     float64   `json:"sigma2" db:"sigma2"`
	Sigma2Raw  float64   `json:"sigma2_raw" db:"sigma2_raw"`
	Method     string    `json:"method" db:"method"`
	Timestamp  time.Time `json:"timestamp" db:"ts"`
}

// RecordFromUpdate converts an engine update.
func RecordFromUpdate(u engine.Update) Record {
	return Record{
		CycleID:    u.CycleID,
		Underlying: u.Underlying,
		Value:      u.Value,
		Sigma2:     u.Sigma2,
		Sigma2Raw:  u.Sigma2Raw,
		Method:     u.Method,
		Timestamp:  u.Timestamp,
	}
}

// Sink stores batches of records.
type Sink interface {
	Name() string
	Commit(ctx context.Context, data []Record) error
	Close() error
}

// Recorder buffers updates and commits them to every sink once the buffer
// holds batchSize records.
type Recorder struct {
	sinks     []Sink
	batchSize int
	logger    *logging.Logger

	mu     sync.Mutex
	buffer []Record
}

// NewRecorder creates a recorder. A batchSize below 1 commits every update.
func NewRecorder(sinks []Sink, batchSize int, logger *logging.Logger) *Recorder {
	if batchSize < 1 {
		batchSize = 1
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Recorder{
		sinks:     sinks,
		batchSize: batchSize,
		logger:    logger.With("component", "recorder"),
	}
}

// Publish implements engine.Publisher.
func (r *Recorder) Publish(ctx context.Context, u engine.Update) error {
	r.mu.Lock()
	r.buffer = append(r.buffer, RecordFromUpdate(u))
	if len(r.buffer) < r.batchSize {
		r.mu.Unlock()
		return nil
	}
	batch := r.buffer
	r.buffer = nil
	r.mu.Unlock()

	return r.commit(ctx, batch)
}

// Flush commits buffered records regardless of the batch size.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.buffer
	r.buffer = nil
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return r.commit(ctx, batch)
}

// Close flushes and closes every sink.
func (r *Recorder) Close(ctx context.Context) error {
	err := r.Flush(ctx)
	for _, s := range r.sinks {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", s.Name())
		}
	}
	return err
}

// commit writes the batch to all sinks. Every sink is attempted; the first
// failure is returned.
func (r *Recorder) commit(ctx context.Context, batch []Record) error {
	var first error
	for _, s := range r.sinks {
		err := s.Commit(ctx, batch)
		metrics.RecordStorageCommit(s.Name(), err)
		if err != nil {
			err = errors.Wrapf(err, "commit %d records to %s", len(batch), s.Name())
			r.logger.Error("Storage commit failed", "sink", s.Name(), "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// withTimeout derives a request context when timeout is positive.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return ctx, func() {}
}
