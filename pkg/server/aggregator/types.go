package aggregator

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/ivindex-go/pkg/server/sources"
)

// Estimate is one raw (unsmoothed) variance for an underlying. As an input
// Source names the venue; as an output it names the aggregation mode.
type Estimate struct {
	Underlying string          `json:"underlying"`
	Sigma2     decimal.Decimal `json:"sigma2"`
	Timestamp  time.Time       `json:"timestamp"`
	Source     string          `json:"source"`
}

// estimateWithSource tracks which source provided an estimate and its weight.
type estimateWithSource struct {
	estimate Estimate
	source   string
	weight   float64
}

// groupByUnderlying collects estimates by normalized underlying with the
// source weight attached (1.0 when unspecified).
func groupByUnderlying(sourceEstimates map[string]map[string]Estimate, sourceWeights map[string]float64) map[string][]estimateWithSource {
	grouped := make(map[string][]estimateWithSource)
	for sourceName, estimates := range sourceEstimates {
		weight := 1.0
		if w, ok := sourceWeights[sourceName]; ok {
			weight = w
		}

		for underlying, est := range estimates {
			key := sources.NormalizeUnderlying(underlying)
			grouped[key] = append(grouped[key], estimateWithSource{
				estimate: est,
				source:   sourceName,
				weight:   weight,
			})
		}
	}
	return grouped
}

func sortByValue(values []estimateWithSource) {
	sort.Slice(values, func(i, j int) bool {
		return values[i].estimate.Sigma2.LessThan(values[j].estimate.Sigma2)
	})
}

// latest returns the most recent timestamp of the group.
func latest(values []estimateWithSource) time.Time {
	var ts time.Time
	for _, v := range values {
		if v.estimate.Timestamp.After(ts) {
			ts = v.estimate.Timestamp
		}
	}
	return ts
}

// weightedMedian computes the weighted median of a sorted list: the value
// where cumulative weight reaches 50% of total weight.
func weightedMedian(values []estimateWithSource) decimal.Decimal {
	n := len(values)
	if n == 0 {
		return decimal.Zero
	}
	if n == 1 {
		return values[0].estimate.Sigma2
	}

	totalWeight := 0.0
	for _, v := range values {
		totalWeight += v.weight
	}

	targetWeight := totalWeight / 2.0
	cumulativeWeight := 0.0
	for i, v := range values {
		cumulativeWeight += v.weight
		if cumulativeWeight >= targetWeight {
			// Exactly at 50%: average with the next value
			if cumulativeWeight == targetWeight && i+1 < n {
				return v.estimate.Sigma2.Add(values[i+1].estimate.Sigma2).Div(decimal.NewFromInt(2))
			}
			return v.estimate.Sigma2
		}
	}

	return values[n/2].estimate.Sigma2
}

// weightedAverage calculates the weighted arithmetic mean.
func weightedAverage(values []estimateWithSource) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	if len(values) == 1 {
		return values[0].estimate.Sigma2
	}

	weightedSum := decimal.Zero
	totalWeight := 0.0
	for _, v := range values {
		weightedSum = weightedSum.Add(v.estimate.Sigma2.Mul(decimal.NewFromFloat(v.weight)))
		totalWeight += v.weight
	}

	if totalWeight == 0 {
		return decimal.Zero
	}
	return weightedSum.Div(decimal.NewFromFloat(totalWeight))
}
