package index

import (
	"fmt"
	"math"
	"sort"
	"time"
)

const daysPerYear = 365.0

// TimeToMaturity returns the year fraction between now and expiry, floored
// at zero.
func TimeToMaturity(expiry, now time.Time) float64 {
	d := expiry.Sub(now)
	if d <= 0 {
		return 0
	}
	return d.Hours() / 24 / daysPerYear
}

// GroupByExpiry buckets quotes by expiry, ordered by ascending expiry.
func GroupByExpiry(quotes []Quote) []ExpiryBucket {
	byExpiry := make(map[int64]*ExpiryBucket)
	for _, q := range quotes {
		key := q.Expiry.Unix()
		b, ok := byExpiry[key]
		if !ok {
			b = &ExpiryBucket{Expiry: q.Expiry}
			byExpiry[key] = b
		}
		if q.Type == Call {
			b.Calls = append(b.Calls, q)
		} else {
			b.Puts = append(b.Puts, q)
		}
	}

	buckets := make([]ExpiryBucket, 0, len(byExpiry))
	for _, b := range byExpiry {
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Expiry.Before(buckets[j].Expiry)
	})
	return buckets
}

// TermSelection is the chosen near and next term bucket. Either may be nil.
type TermSelection struct {
	Near *ExpiryBucket
	Next *ExpiryBucket
}

// SelectTerms splits quotes into near term (days to expiry at most
// maturityDays) and next term (beyond), and picks the expiry with the most
// quotes in each partition. Expired quotes are ignored. Ties go to the
// expiry closest to the index maturity, then to the earlier one.
func SelectTerms(quotes []Quote, now time.Time, maturityDays float64) (TermSelection, error) {
	var sel TermSelection
	for _, b := range GroupByExpiry(quotes) {
		if b.Expiry.Before(now) {
			continue
		}
		days := TimeToMaturity(b.Expiry, now) * daysPerYear
		bucket := b
		if days <= maturityDays {
			bucket.Term = NearTerm
			sel.Near = moreRelevant(sel.Near, &bucket, now, maturityDays)
		} else {
			bucket.Term = NextTerm
			sel.Next = moreRelevant(sel.Next, &bucket, now, maturityDays)
		}
	}

	if sel.Near == nil && sel.Next == nil {
		return sel, fmt.Errorf("%w: %d quotes", ErrNoTerms, len(quotes))
	}
	return sel, nil
}

// moreRelevant returns the bucket with the higher quote count.
func moreRelevant(current, candidate *ExpiryBucket, now time.Time, maturityDays float64) *ExpiryBucket {
	if current == nil {
		return candidate
	}
	if candidate.Len() != current.Len() {
		if candidate.Len() > current.Len() {
			return candidate
		}
		return current
	}
	distCurrent := math.Abs(TimeToMaturity(current.Expiry, now)*daysPerYear - maturityDays)
	distCandidate := math.Abs(TimeToMaturity(candidate.Expiry, now)*daysPerYear - maturityDays)
	if distCandidate < distCurrent {
		return candidate
	}
	return current
}
