// Package aggregator combines the per-source raw variances of an underlying
// into a single raw variance before smoothing.
package aggregator

import (
	"fmt"

	"github.com/StrathCole/ivindex-go/pkg/logging"
)

const (
	// ModeMedian uses weighted median aggregation with outlier rejection.
	ModeMedian = "median"
	// ModeAverage uses weighted average aggregation.
	ModeAverage = "average"
	// ModeAdaptive uses adaptive threshold filtering with configurable sensitivity.
	ModeAdaptive = "adaptive"
)

// Aggregator defines the interface for variance aggregation strategies.
type Aggregator interface {
	// Aggregate combines estimates keyed source -> underlying into one
	// estimate per underlying. sourceWeights maps source names to their
	// weights (1.0 = standard, 0.5 = half weight).
	Aggregate(sourceEstimates map[string]map[string]Estimate, sourceWeights map[string]float64) (map[string]Estimate, error)
}

// AdaptiveConfig holds configuration for adaptive aggregator.
type AdaptiveConfig struct {
	Sensitivity float64 // k constant (1.5 = strict, 2.0 = tolerant)
	FinalMode   string  // "median" or "average" for final aggregation
}

// NewAggregator creates an aggregator based on the specified mode.
func NewAggregator(mode string, logger *logging.Logger) (Aggregator, error) {
	return NewAggregatorWithConfig(mode, logger, nil)
}

// NewAggregatorWithConfig creates an aggregator with optional configuration.
func NewAggregatorWithConfig(mode string, logger *logging.Logger, adaptiveConfig *AdaptiveConfig) (Aggregator, error) {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	switch mode {
	case ModeMedian:
		return NewMedianAggregator(logger), nil
	case ModeAverage:
		return NewAverageAggregator(logger), nil
	case ModeAdaptive:
		var sensitivity float64
		var finalMode string
		if adaptiveConfig != nil {
			sensitivity = adaptiveConfig.Sensitivity
			finalMode = adaptiveConfig.FinalMode
		}
		return NewAdaptiveAggregator(logger, sensitivity, finalMode), nil
	default:
		return nil, fmt.Errorf("%w: %s (supported: median, average, adaptive)", ErrUnknownMode, mode)
	}
}
