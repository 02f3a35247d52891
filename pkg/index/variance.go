package index

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DeltaK returns the strike intervals of an ascending strike grid: central
// differences inside, one-sided differences at both ends.
func DeltaK(strikes []float64) []float64 {
	n := len(strikes)
	d := make([]float64, n)
	if n < 2 {
		return d
	}
	d[0] = strikes[1] - strikes[0]
	d[n-1] = strikes[n-1] - strikes[n-2]
	for i := 1; i < n-1; i++ {
		d[i] = (strikes[i+1] - strikes[i-1]) / 2
	}
	return d
}

// ImpliedRate is the rate proxy r = (ln Fimp − ln KATM)/T used to discount
// the strike contributions. Zero when T is zero.
func ImpliedRate(fimp, katm, t float64) float64 {
	if t <= 0 || fimp <= 0 || katm <= 0 {
		return 0
	}
	return (math.Log(fimp) - math.Log(katm)) / t
}

// ImpliedVariance evaluates the discretized variance swap formula
//
//	σ² = (2/T) Σ e^{rT} ΔK/K² V(K) − (1/T)(Fimp/KATM − 1)²
//
// over an ascending grid. It returns 0 when T is zero.
func ImpliedVariance(grid []StrikePrice, fimp, katm, t float64) float64 {
	if t <= 0 || katm <= 0 {
		return 0
	}

	strikes := make([]float64, len(grid))
	mids := make([]float64, len(grid))
	for i, p := range grid {
		strikes[i] = p.Strike
		mids[i] = p.Mid
	}

	discount := math.Exp(ImpliedRate(fimp, katm, t) * t)
	weights := DeltaK(strikes)
	for i, k := range strikes {
		weights[i] = discount * weights[i] / (k * k)
	}

	sum := floats.Dot(weights, mids)
	correction := fimp/katm - 1
	return 2/t*sum - correction*correction/t
}
