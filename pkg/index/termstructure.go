package index

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// RatePoint is the average implied interest rate of one expiry.
type RatePoint struct {
	Expiry time.Time `json:"expiry"`
	Rate   float64   `json:"rate"`
}

// ImpliedInterestRate returns (ln F − ln S)/T, or zero when undefined.
func ImpliedInterestRate(forward, spot, t float64) float64 {
	if t <= 0 || forward <= 0 || spot <= 0 {
		return 0
	}
	return (math.Log(forward) - math.Log(spot)) / t
}

// MedianUnderlying returns the median underlying price of the quotes,
// ignoring non-positive values.
func MedianUnderlying(quotes []Quote) float64 {
	prices := make([]float64, 0, len(quotes))
	for _, q := range quotes {
		if q.UnderlyingPrice > 0 {
			prices = append(prices, q.UnderlyingPrice)
		}
	}
	if len(prices) == 0 {
		return 0
	}
	sort.Float64s(prices)
	return stat.Quantile(0.5, stat.Empirical, prices, nil)
}

// TermStructure averages the implied rates of the estimates per expiry,
// ordered by expiry.
func TermStructure(estimates []VarianceEstimate) []RatePoint {
	rates := make(map[int64][]float64)
	expiries := make(map[int64]time.Time)
	for _, e := range estimates {
		key := e.Expiry.Unix()
		rates[key] = append(rates[key], e.ImpliedRate)
		expiries[key] = e.Expiry
	}

	points := make([]RatePoint, 0, len(rates))
	for key, rs := range rates {
		points = append(points, RatePoint{Expiry: expiries[key], Rate: stat.Mean(rs, nil)})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Expiry.Before(points[j].Expiry) })
	return points
}
