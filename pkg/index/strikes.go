package index

import (
	"fmt"
	"math"
	"sort"
)

// ATMStrike returns the largest strike strictly below fimp.
func ATMStrike(quotes []Quote, fimp float64) (float64, error) {
	katm := math.Inf(-1)
	for _, q := range quotes {
		if q.Strike < fimp && q.Strike > katm {
			katm = q.Strike
		}
	}
	if math.IsInf(katm, -1) {
		return 0, fmt.Errorf("%w: fimp %.4f", ErrNoATMStrike, fimp)
	}
	return katm, nil
}

// TickSize approximates the minimum price increment as the smallest
// positive bid. It is zero when no quote has a positive bid.
func TickSize(quotes []Quote) float64 {
	tick := math.Inf(1)
	for _, q := range quotes {
		if q.Bid > 0 && q.Bid < tick {
			tick = q.Bid
		}
	}
	if math.IsInf(tick, 1) {
		return 0
	}
	return tick
}

// OTMFilter selects the out-of-the-money strike grid of a bucket.
type OTMFilter struct {
	RangeMult  float64
	BidCutoff  int
	IncludeATM bool
}

// Select returns calls above katm and puts below katm inside
// [fimp/RangeMult, fimp×RangeMult], ordered by ascending strike. With
// IncludeATM the katm strike is added at the average call/put mid when both
// legs exist. The grid is then scanned once by ascending strike and cut at the
// BidCutoff-th consecutive quote bidding at or below the tick size.
func (f OTMFilter) Select(bucket ExpiryBucket, fimp, katm float64) []StrikePrice {
	kmin := fimp / f.RangeMult
	kmax := fimp * f.RangeMult
	tick := TickSize(bucket.Quotes())

	inRange := func(k float64) bool { return k >= kmin && k <= kmax }

	grid := make([]StrikePrice, 0, len(bucket.Calls)+len(bucket.Puts)+1)
	var atmCall, atmPut *Quote
	for i, q := range bucket.Calls {
		switch {
		case q.Strike == katm:
			atmCall = &bucket.Calls[i]
		case q.Strike > katm && inRange(q.Strike):
			grid = append(grid, pointOf(q))
		}
	}
	for i, q := range bucket.Puts {
		switch {
		case q.Strike == katm:
			atmPut = &bucket.Puts[i]
		case q.Strike < katm && inRange(q.Strike):
			grid = append(grid, pointOf(q))
		}
	}
	if f.IncludeATM && atmCall != nil && atmPut != nil && inRange(katm) {
		grid = append(grid, StrikePrice{
			Strike: katm,
			Mid:    (atmCall.Mid() + atmPut.Mid()) / 2,
			Bid:    (atmCall.Bid + atmPut.Bid) / 2,
			Type:   Put,
			ATM:    true,
		})
	}

	sort.SliceStable(grid, func(i, j int) bool { return grid[i].Strike < grid[j].Strike })
	return f.cut(grid, tick)
}

func pointOf(q Quote) StrikePrice {
	return StrikePrice{Strike: q.Strike, Mid: q.Mid(), Bid: q.Bid, Type: q.Type}
}

// cut keeps points up to, not including, the BidCutoff-th consecutive point
// bidding at or below tick.
func (f OTMFilter) cut(points []StrikePrice, tick float64) []StrikePrice {
	consecutive := 0
	for i, p := range points {
		if p.Bid > tick {
			consecutive = 0
			continue
		}
		consecutive++
		if consecutive >= f.BidCutoff {
			return points[:i]
		}
	}
	return points
}
