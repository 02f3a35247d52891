package index

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLambda_HalfLife(t *testing.T) {
	for _, h := range []float64{1, 10, 42.5} {
		assert.InDelta(t, 0.5, math.Pow(Lambda(h), h), 1e-12)
	}
}

func TestEWMA(t *testing.T) {
	lambda := Lambda(DefaultHalfLife)

	s := 0.25
	for i := 0; i < 50; i++ {
		s = EWMA(lambda, s, 0.25)
	}
	assert.InDelta(t, 0.25, s, 1e-12)

	assert.InDelta(t, 0.5*1+0.5*3, EWMA(0.5, 1, 3), 1e-12)
}

func TestBlendWeights(t *testing.T) {
	tNear := 20.0 / daysPerYear
	tNext := 55.0 / daysPerYear
	tIndex := 30.0 / daysPerYear

	wNear, wNext := BlendWeights(tNear, tNext, tIndex)

	assert.Greater(t, wNear, 0.0)
	assert.Greater(t, wNext, 0.0)
	// The time-scaled weights interpolate linearly to tIndex.
	assert.InDelta(t, 1.0, wNear*tIndex+wNext*tNext, 1e-6)
	assert.InDelta(t, 25.0/35.0, wNear*tIndex, 1e-6)
}

func TestBlendWeights_IndexAtNear(t *testing.T) {
	wNear, wNext := BlendWeights(0.1, 0.2, 0.1)
	assert.InDelta(t, 0.0, wNext, 1e-6)
	assert.InDelta(t, 10.0, wNear, 1e-4)
}

func TestRawVariance(t *testing.T) {
	assert.InDelta(t, 0.7, RawVariance(0.5, 0.4, 1, 0.5), 1e-12)
}

func TestIndexFromVariance(t *testing.T) {
	assert.InDelta(t, 50.0, IndexFromVariance(0.25), 1e-12)
	assert.Zero(t, IndexFromVariance(0))
	assert.Zero(t, IndexFromVariance(-0.01))
	assert.Zero(t, IndexFromVariance(math.NaN()))
}
