package index

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeltaK(t *testing.T) {
	tests := []struct {
		name    string
		strikes []float64
		want    []float64
	}{
		{"empty", nil, []float64{}},
		{"single", []float64{100}, []float64{0}},
		{"pair", []float64{90, 100}, []float64{10, 10}},
		{"uneven", []float64{80, 90, 110, 140}, []float64{10, 15, 25, 30}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeltaK(tt.strikes))
		})
	}
}

func threePointGrid() []StrikePrice {
	return []StrikePrice{
		{Strike: 90, Mid: 1, Type: Put},
		{Strike: 100, Mid: 2, Type: Put, ATM: true},
		{Strike: 110, Mid: 1, Type: Call},
	}
}

func TestImpliedVariance(t *testing.T) {
	sum := 10.0/8100 + 2*10.0/10000 + 10.0/12100

	got := ImpliedVariance(threePointGrid(), 100, 100, 1)
	assert.InDelta(t, 2*sum, got, 1e-12)

	got = ImpliedVariance(threePointGrid(), 105, 100, 0.5)
	want := 2/0.5*1.05*sum - 0.05*0.05/0.5
	assert.InDelta(t, want, got, 1e-12)
}

func TestImpliedVariance_ZeroMaturity(t *testing.T) {
	assert.Zero(t, ImpliedVariance(threePointGrid(), 100, 100, 0))
	assert.Zero(t, ImpliedVariance(threePointGrid(), 100, 100, -0.1))
}

func TestImpliedRate(t *testing.T) {
	assert.InDelta(t, math.Log(1.05)/0.5, ImpliedRate(105, 100, 0.5), 1e-12)
	assert.Zero(t, ImpliedRate(105, 100, 0))
	assert.Zero(t, ImpliedRate(105, 0, 1))
}
