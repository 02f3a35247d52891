package index

import "math"

// Validator is the no-arbitrage sanity filter applied to normalized quotes.
type Validator struct {
	SpreadMultiplier float64
	SpreadMin        float64
}

// NewValidator creates a validator with the given spread constants.
func NewValidator(spreadMultiplier, spreadMin float64) Validator {
	return Validator{SpreadMultiplier: spreadMultiplier, SpreadMin: spreadMin}
}

// IsValid reports whether the quote passes the bid/mark/ask ordering and
// spread width checks.
func (v Validator) IsValid(q Quote) bool {
	if q.Bid > q.Ask || q.MarkPrice <= 0 {
		return false
	}
	if q.MarkPrice < q.Bid || q.MarkPrice > q.Ask {
		return false
	}

	bidSpread := math.Max(0, q.MarkPrice-q.Bid)
	askSpread := math.Max(0, q.Ask-q.MarkPrice)
	mas := math.Min(bidSpread, askSpread) * v.SpreadMultiplier
	gms := v.SpreadMin * v.SpreadMultiplier

	return bidSpread+askSpread <= math.Max(mas, gms)
}

// Filter returns the valid quotes and the number rejected.
func (v Validator) Filter(quotes []Quote) ([]Quote, int) {
	valid := make([]Quote, 0, len(quotes))
	for _, q := range quotes {
		if v.IsValid(q) {
			valid = append(valid, q)
		}
	}
	return valid, len(quotes) - len(valid)
}
