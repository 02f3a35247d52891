package aggregator

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/ivindex-go/pkg/logging"
	"github.com/StrathCole/ivindex-go/pkg/metrics"
)

// AdaptiveAggregator uses statistical filtering with configurable sensitivity.
// It computes the median and standard deviation of the source variances and
// keeps those with |σ²i - median| <= k * σ.
type AdaptiveAggregator struct {
	logger      *logging.Logger
	sensitivity float64 // k constant (e.g., 1.5-2.0)
	finalMode   string  // "median" or "average" for final aggregation
}

var _ Aggregator = (*AdaptiveAggregator)(nil)

// NewAdaptiveAggregator creates a new adaptive aggregator.
// sensitivity: k value for filtering (1.5 = strict, 2.0 = tolerant)
// finalMode: "median" or "average" for final aggregation of filtered values.
func NewAdaptiveAggregator(logger *logging.Logger, sensitivity float64, finalMode string) *AdaptiveAggregator {
	if sensitivity <= 0 {
		sensitivity = 1.5
	}
	if finalMode != ModeMedian && finalMode != ModeAverage {
		finalMode = ModeAverage
	}

	return &AdaptiveAggregator{
		logger:      logger,
		sensitivity: sensitivity,
		finalMode:   finalMode,
	}
}

// Aggregate computes variances using adaptive threshold filtering.
func (a *AdaptiveAggregator) Aggregate(sourceEstimates map[string]map[string]Estimate, sourceWeights map[string]float64) (map[string]Estimate, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAggregation(ModeAdaptive, time.Since(start))
	}()

	if len(sourceEstimates) == 0 {
		return nil, fmt.Errorf("%w", ErrNoSourceEstimates)
	}

	result := make(map[string]Estimate)
	for underlying, values := range groupByUnderlying(sourceEstimates, sourceWeights) {
		est, err := a.computeAdaptive(underlying, values)
		if err != nil {
			a.logger.Warn("Failed to compute adaptive variance", "underlying", underlying, "error", err)
			continue
		}
		result[underlying] = est
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("%w", ErrNoEstimatesComputed)
	}

	a.logger.Debug("Aggregated variances using adaptive threshold",
		"underlyings", len(result),
		"sensitivity", a.sensitivity,
		"final_mode", a.finalMode)

	return result, nil
}

// computeAdaptive filters by |σ²i - median| <= k * stddev, then aggregates
// the remaining values with the final mode.
func (a *AdaptiveAggregator) computeAdaptive(underlying string, values []estimateWithSource) (Estimate, error) {
	if len(values) == 0 {
		return Estimate{}, fmt.Errorf("%w: %s", ErrNoEstimatesForUnderlying, underlying)
	}

	if len(values) == 1 {
		est := values[0].estimate
		est.Underlying = underlying
		return est, nil
	}

	sorted := make([]estimateWithSource, len(values))
	copy(sorted, values)
	sortByValue(sorted)

	median := simpleMedian(sorted)
	stdDev := stdDevAround(values, median)

	threshold := decimal.NewFromFloat(a.sensitivity).Mul(stdDev)
	filtered := make([]estimateWithSource, 0, len(values))
	rejectedCount := 0
	for _, v := range values {
		deviation := v.estimate.Sigma2.Sub(median).Abs()
		if deviation.GreaterThan(threshold) {
			a.logger.Debug("Rejecting outlier (adaptive)",
				"underlying", underlying,
				"source", v.source,
				"sigma2", v.estimate.Sigma2.String(),
				"median", median.String(),
				"deviation", deviation.String(),
				"threshold", threshold.String())

			metrics.RecordOutlierRejection(underlying, v.source)
			rejectedCount++
			continue
		}
		filtered = append(filtered, v)
	}

	if len(filtered) == 0 {
		a.logger.Warn("All estimates rejected by adaptive filter, using all estimates",
			"underlying", underlying,
			"initial_count", len(values),
			"stddev", stdDev.String())
		filtered = values
	}

	a.logger.Debug("Adaptive filtering complete",
		"underlying", underlying,
		"initial_count", len(values),
		"filtered_count", len(filtered),
		"rejected_count", rejectedCount)

	var final decimal.Decimal
	if a.finalMode == ModeMedian {
		sortByValue(filtered)
		final = weightedMedian(filtered)
	} else {
		final = weightedAverage(filtered)
	}

	return Estimate{
		Underlying: underlying,
		Sigma2:     final,
		Timestamp:  latest(filtered),
		Source:     fmt.Sprintf("adaptive_%s", a.finalMode),
	}, nil
}

// simpleMedian computes the unweighted median of a sorted list.
func simpleMedian(sorted []estimateWithSource) decimal.Decimal {
	n := len(sorted)
	if n == 0 {
		return decimal.Zero
	}
	if n%2 == 0 {
		return sorted[n/2-1].estimate.Sigma2.Add(sorted[n/2].estimate.Sigma2).Div(decimal.NewFromInt(2))
	}
	return sorted[n/2].estimate.Sigma2
}

// stdDevAround computes sqrt(Σ(σ²i - center)² / n).
func stdDevAround(values []estimateWithSource, center decimal.Decimal) decimal.Decimal {
	if len(values) < 2 {
		return decimal.Zero
	}

	sumSquaredDev := decimal.Zero
	for _, v := range values {
		deviation := v.estimate.Sigma2.Sub(center)
		sumSquaredDev = sumSquaredDev.Add(deviation.Mul(deviation))
	}

	variance, _ := sumSquaredDev.Div(decimal.NewFromInt(int64(len(values)))).Float64()
	return decimal.NewFromFloat(math.Sqrt(variance))
}
