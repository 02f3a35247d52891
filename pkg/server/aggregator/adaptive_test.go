package aggregator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/ivindex-go/pkg/logging"
)

func est(v float64) Estimate {
	return Estimate{Sigma2: decimal.NewFromFloat(v), Timestamp: time.Now()}
}

func closeTo(t *testing.T, want float64, got decimal.Decimal) {
	t.Helper()
	diff := got.Sub(decimal.NewFromFloat(want)).Abs()
	assert.True(t, diff.LessThan(decimal.NewFromFloat(1e-9)), "expected %v, got %s", want, got)
}

func TestAdaptiveAggregator_SingleSource(t *testing.T) {
	agg := NewAdaptiveAggregator(logging.NewNoopLogger(), 1.5, "average")

	result, err := agg.Aggregate(map[string]map[string]Estimate{
		"deribit": {"BTC": est(0.36)},
	}, nil)
	require.NoError(t, err)
	require.Len(t, result, 1)

	assert.Equal(t, "BTC", result["BTC"].Underlying)
	assert.True(t, result["BTC"].Sigma2.Equal(decimal.NewFromFloat(0.36)))
}

func TestAdaptiveAggregator_WithOutliers(t *testing.T) {
	agg := NewAdaptiveAggregator(logging.NewNoopLogger(), 1.5, "average")

	result, err := agg.Aggregate(map[string]map[string]Estimate{
		"deribit":    {"BTC": est(0.36)},
		"okx":        {"BTC": est(0.37)},
		"binance":    {"BTC": est(0.35)},
		"bad_source": {"BTC": est(1.5)},
	}, nil)
	require.NoError(t, err)
	require.Len(t, result, 1)

	closeTo(t, 0.36, result["BTC"].Sigma2)
	assert.Equal(t, "adaptive_average", result["BTC"].Source)
}

func TestAdaptiveAggregator_MedianFinalMode(t *testing.T) {
	agg := NewAdaptiveAggregator(logging.NewNoopLogger(), 2.0, "median")

	result, err := agg.Aggregate(map[string]map[string]Estimate{
		"source1": {"BTC": est(0.30)},
		"source2": {"BTC": est(0.36)},
		"source3": {"BTC": est(0.33)},
		"source4": {"BTC": est(0.39)},
		"source5": {"BTC": est(0.36)},
	}, nil)
	require.NoError(t, err)

	assert.True(t, result["BTC"].Sigma2.Equal(decimal.NewFromFloat(0.36)))
}

func TestAdaptiveAggregator_WithWeights(t *testing.T) {
	agg := NewAdaptiveAggregator(logging.NewNoopLogger(), 1.5, "average")

	result, err := agg.Aggregate(map[string]map[string]Estimate{
		"deribit": {"BTC": est(0.36)},
		"okx":     {"BTC": est(0.39)},
	}, map[string]float64{"deribit": 2.0, "okx": 1.0})
	require.NoError(t, err)

	// (0.36 * 2 + 0.39) / 3
	closeTo(t, 0.37, result["BTC"].Sigma2)
}

func TestAdaptiveAggregator_UnderlyingNormalization(t *testing.T) {
	agg := NewAdaptiveAggregator(logging.NewNoopLogger(), 1.5, "average")

	result, err := agg.Aggregate(map[string]map[string]Estimate{
		"deribit": {"BTC": est(0.36)},
		"okx":     {"btc": est(0.37)},
		"binance": {"XBT": est(0.35)},
	}, nil)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Contains(t, result, "BTC")
}

func TestAdaptiveAggregator_AllOutliersRejected(t *testing.T) {
	agg := NewAdaptiveAggregator(logging.NewNoopLogger(), 0.01, "average")

	result, err := agg.Aggregate(map[string]map[string]Estimate{
		"source1": {"BTC": est(0.2)},
		"source2": {"BTC": est(0.4)},
		"source3": {"BTC": est(0.6)},
		"source4": {"BTC": est(0.9)},
	}, nil)
	require.NoError(t, err)
	require.Len(t, result, 1)

	// Falls back to all four
	closeTo(t, 0.525, result["BTC"].Sigma2)
}

func TestAdaptiveAggregator_Defaults(t *testing.T) {
	logger := logging.NewNoopLogger()

	assert.Equal(t, 1.5, NewAdaptiveAggregator(logger, 0, "average").sensitivity)
	assert.Equal(t, 1.5, NewAdaptiveAggregator(logger, -1.0, "average").sensitivity)
	assert.Equal(t, ModeAverage, NewAdaptiveAggregator(logger, 1.5, "").finalMode)
	assert.Equal(t, ModeAverage, NewAdaptiveAggregator(logger, 1.5, "invalid").finalMode)
}

func TestAdaptiveAggregator_EmptyInput(t *testing.T) {
	agg := NewAdaptiveAggregator(logging.NewNoopLogger(), 1.5, "average")

	result, err := agg.Aggregate(map[string]map[string]Estimate{}, nil)
	assert.ErrorIs(t, err, ErrNoSourceEstimates)
	assert.Nil(t, result)
}

func TestAdaptiveAggregator_MultipleUnderlyings(t *testing.T) {
	agg := NewAdaptiveAggregator(logging.NewNoopLogger(), 1.5, "average")

	result, err := agg.Aggregate(map[string]map[string]Estimate{
		"deribit": {"BTC": est(0.36), "ETH": est(0.49)},
		"okx":     {"BTC": est(0.37), "ETH": est(0.50)},
	}, nil)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Contains(t, result, "BTC")
	assert.Contains(t, result, "ETH")
}
