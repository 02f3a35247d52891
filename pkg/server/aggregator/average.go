package aggregator

import (
	"fmt"
	"time"

	"github.com/StrathCole/ivindex-go/pkg/logging"
	"github.com/StrathCole/ivindex-go/pkg/metrics"
)

// AverageAggregator aggregates variances using the weighted arithmetic mean.
type AverageAggregator struct {
	logger *logging.Logger
}

var _ Aggregator = (*AverageAggregator)(nil)

// NewAverageAggregator creates a new average aggregator
func NewAverageAggregator(logger *logging.Logger) *AverageAggregator {
	return &AverageAggregator{
		logger: logger,
	}
}

// Aggregate computes the weighted average per underlying.
func (a *AverageAggregator) Aggregate(sourceEstimates map[string]map[string]Estimate, sourceWeights map[string]float64) (map[string]Estimate, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAggregation(ModeAverage, time.Since(start))
	}()

	if len(sourceEstimates) == 0 {
		return nil, fmt.Errorf("%w", ErrNoSourceEstimates)
	}

	result := make(map[string]Estimate)
	for underlying, values := range groupByUnderlying(sourceEstimates, sourceWeights) {
		if len(values) == 0 {
			continue
		}
		result[underlying] = Estimate{
			Underlying: underlying,
			Sigma2:     weightedAverage(values),
			Timestamp:  latest(values),
			Source:     ModeAverage,
		}
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("%w", ErrNoEstimatesComputed)
	}

	a.logger.Debug("Aggregated variances using average", "underlyings", len(result))
	return result, nil
}
