package aggregator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/ivindex-go/pkg/logging"
	"github.com/StrathCole/ivindex-go/pkg/metrics"
)

// OutlierThreshold is the relative deviation from the median beyond which
// a source's variance is rejected.
const OutlierThreshold = 0.25

// MedianAggregator aggregates variances using a weighted median and rejects
// outliers.
type MedianAggregator struct {
	logger    *logging.Logger
	threshold decimal.Decimal
}

var _ Aggregator = (*MedianAggregator)(nil)

// NewMedianAggregator creates a new median aggregator.
func NewMedianAggregator(logger *logging.Logger) *MedianAggregator {
	return &MedianAggregator{
		logger:    logger,
		threshold: decimal.NewFromFloat(OutlierThreshold),
	}
}

// Aggregate computes the weighted median per underlying with outlier
// detection.
func (a *MedianAggregator) Aggregate(sourceEstimates map[string]map[string]Estimate, sourceWeights map[string]float64) (map[string]Estimate, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAggregation(ModeMedian, time.Since(start))
	}()

	if len(sourceEstimates) == 0 {
		return nil, fmt.Errorf("%w", ErrNoSourceEstimates)
	}

	result := make(map[string]Estimate)
	for underlying, values := range groupByUnderlying(sourceEstimates, sourceWeights) {
		est, err := a.computeMedianWithOutlierRejection(underlying, values)
		if err != nil {
			a.logger.Warn("Failed to compute median", "underlying", underlying, "error", err)
			continue
		}
		result[underlying] = est
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("%w", ErrNoEstimatesComputed)
	}

	a.logger.Debug("Aggregated variances", "underlyings", len(result))
	return result, nil
}

func (a *MedianAggregator) computeMedianWithOutlierRejection(underlying string, values []estimateWithSource) (Estimate, error) {
	if len(values) == 0 {
		return Estimate{}, fmt.Errorf("%w: %s", ErrNoEstimatesForUnderlying, underlying)
	}

	if len(values) == 1 {
		est := values[0].estimate
		est.Underlying = underlying
		return est, nil
	}

	sortByValue(values)
	initialMedian := weightedMedian(values)

	filtered := values
	if !initialMedian.IsZero() {
		filtered = make([]estimateWithSource, 0, len(values))
		for _, v := range values {
			deviationPct := v.estimate.Sigma2.Sub(initialMedian).Abs().Div(initialMedian.Abs())
			if deviationPct.GreaterThan(a.threshold) {
				a.logger.Debug("Rejecting outlier",
					"underlying", underlying,
					"source", v.source,
					"sigma2", v.estimate.Sigma2.String(),
					"median", initialMedian.String(),
					"deviation_pct", deviationPct.Mul(decimal.NewFromInt(100)).String())

				metrics.RecordOutlierRejection(underlying, v.source)
				continue
			}
			filtered = append(filtered, v)
		}
	}

	if len(filtered) == 0 {
		a.logger.Warn("All estimates rejected as outliers, using initial median",
			"underlying", underlying,
			"initial_count", len(values))
		filtered = values
	}

	return Estimate{
		Underlying: underlying,
		Sigma2:     weightedMedian(filtered),
		Timestamp:  latest(filtered),
		Source:     ModeMedian,
	}, nil
}
