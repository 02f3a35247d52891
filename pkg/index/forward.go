package index

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// EstimateForward computes the implied forward of one expiry from the
// call/put pair (same strike) whose mid prices are closest:
//
//	Fimp = K + mark × (Cmid − Pmid)
//
// where mark is the mean mark price of the selected pair. Without any pair
// it returns a zero Fimp and ErrEmptyBucket.
func EstimateForward(expiry time.Time, calls, puts []Quote) (ForwardPriceEstimate, error) {
	putsByStrike := make(map[float64]Quote, len(puts))
	for _, p := range puts {
		putsByStrike[p.Strike] = p
	}

	sorted := make([]Quote, len(calls))
	copy(sorted, calls)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Strike < sorted[j].Strike })

	var (
		found   bool
		minDiff = math.Inf(1)
		best    ForwardPriceEstimate
	)
	for _, c := range sorted {
		p, ok := putsByStrike[c.Strike]
		if !ok {
			continue
		}
		diff := c.Mid() - p.Mid()
		if math.Abs(diff) < minDiff {
			minDiff = math.Abs(diff)
			mark := (c.MarkPrice + p.MarkPrice) / 2
			best = ForwardPriceEstimate{
				Expiry:          expiry,
				StrikeAtMinDiff: c.Strike,
				Fimp:            c.Strike + mark*diff,
			}
			found = true
		}
	}

	if !found {
		return ForwardPriceEstimate{Expiry: expiry}, fmt.Errorf("%w: no call/put pair for %s", ErrEmptyBucket, expiry.Format("2006-01-02"))
	}
	return best, nil
}
