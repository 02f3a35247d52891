package index

import "time"

var testExpiry = time.Date(2024, 6, 28, 8, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

// quote builds a validated-shape quote with mark at the mid.
func quote(typ OptionType, strike, mid, halfSpread float64) Quote {
	return Quote{
		Symbol:          "BTC/USD:BTC-240628",
		Base:            "BTC",
		Strike:          strike,
		Expiry:          testExpiry,
		Type:            typ,
		Bid:             mid - halfSpread,
		Ask:             mid + halfSpread,
		MarkPrice:       mid,
		UnderlyingPrice: 100,
	}
}

func quoteWithBid(typ OptionType, strike, bid float64) Quote {
	return Quote{
		Strike:    strike,
		Expiry:    testExpiry,
		Type:      typ,
		Bid:       bid,
		Ask:       bid + 1,
		MarkPrice: bid + 0.5,
	}
}
