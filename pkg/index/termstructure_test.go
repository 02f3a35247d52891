package index

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedianUnderlying(t *testing.T) {
	quotes := []Quote{
		{UnderlyingPrice: 101},
		{UnderlyingPrice: 0},
		{UnderlyingPrice: 99},
		{UnderlyingPrice: 100},
	}
	assert.Equal(t, 100.0, MedianUnderlying(quotes))
	assert.Zero(t, MedianUnderlying(nil))
}

func TestImpliedInterestRate(t *testing.T) {
	assert.InDelta(t, math.Log(1.02)/0.25, ImpliedInterestRate(102, 100, 0.25), 1e-12)
	assert.Zero(t, ImpliedInterestRate(102, 0, 0.25))
	assert.Zero(t, ImpliedInterestRate(102, 100, 0))
}

func TestTermStructure(t *testing.T) {
	later := testExpiry.AddDate(0, 1, 0)
	estimates := []VarianceEstimate{
		{Expiry: later, ImpliedRate: 0.06},
		{Expiry: testExpiry, ImpliedRate: 0.04},
		{Expiry: testExpiry, ImpliedRate: 0.02},
	}

	points := TermStructure(estimates)

	require.Len(t, points, 2)
	assert.Equal(t, testExpiry, points[0].Expiry)
	assert.InDelta(t, 0.03, points[0].Rate, 1e-12)
	assert.Equal(t, later, points[1].Expiry)
	assert.InDelta(t, 0.06, points[1].Rate, 1e-12)
}
