package aggregator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/ivindex-go/pkg/logging"
)

func TestMedianAggregator_RejectsOutlier(t *testing.T) {
	agg := NewMedianAggregator(logging.NewNoopLogger())

	result, err := agg.Aggregate(map[string]map[string]Estimate{
		"deribit": {"BTC": est(0.36)},
		"okx":     {"BTC": est(0.37)},
		"binance": {"BTC": est(0.35)},
		"stale":   {"BTC": est(0.60)},
	}, nil)
	require.NoError(t, err)

	assert.True(t, result["BTC"].Sigma2.Equal(decimal.NewFromFloat(0.36)), "got %s", result["BTC"].Sigma2)
	assert.Equal(t, ModeMedian, result["BTC"].Source)
}

func TestMedianAggregator_ZeroMedian(t *testing.T) {
	agg := NewMedianAggregator(logging.NewNoopLogger())

	result, err := agg.Aggregate(map[string]map[string]Estimate{
		"a": {"BTC": est(0)},
		"b": {"BTC": est(0)},
	}, nil)
	require.NoError(t, err)
	assert.True(t, result["BTC"].Sigma2.IsZero())
}

func TestMedianAggregator_KeepsLatestTimestamp(t *testing.T) {
	agg := NewMedianAggregator(logging.NewNoopLogger())
	older := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Minute)

	result, err := agg.Aggregate(map[string]map[string]Estimate{
		"a": {"ETH": {Sigma2: decimal.NewFromFloat(0.5), Timestamp: older}},
		"b": {"ETH": {Sigma2: decimal.NewFromFloat(0.5), Timestamp: newer}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, newer, result["ETH"].Timestamp)
}

func TestAverageAggregator_Weighted(t *testing.T) {
	agg := NewAverageAggregator(logging.NewNoopLogger())

	result, err := agg.Aggregate(map[string]map[string]Estimate{
		"deribit": {"BTC": est(0.3)},
		"okx":     {"BTC": est(0.6)},
	}, map[string]float64{"okx": 2})
	require.NoError(t, err)

	closeTo(t, 0.5, result["BTC"].Sigma2)
	assert.Equal(t, ModeAverage, result["BTC"].Source)
}

func TestNewAggregator(t *testing.T) {
	for _, mode := range []string{ModeMedian, ModeAverage, ModeAdaptive} {
		agg, err := NewAggregator(mode, nil)
		require.NoError(t, err, mode)
		assert.NotNil(t, agg)
	}

	_, err := NewAggregator("tvwap", nil)
	assert.ErrorIs(t, err, ErrUnknownMode)

	agg, err := NewAggregatorWithConfig(ModeAdaptive, nil, &AdaptiveConfig{Sensitivity: 2, FinalMode: ModeMedian})
	require.NoError(t, err)
	adaptive, ok := agg.(*AdaptiveAggregator)
	require.True(t, ok)
	assert.Equal(t, 2.0, adaptive.sensitivity)
	assert.Equal(t, ModeMedian, adaptive.finalMode)
}
