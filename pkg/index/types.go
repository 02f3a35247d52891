// Package index implements the implied-variance index computation: quote
// normalization and validation, term selection, forward price estimation,
// OTM strike selection, discrete variance and the term blend with EWMA
// smoothing.
package index

import (
	"time"
)

// OptionType is the call/put flag of an option quote.
type OptionType string

const (
	Call OptionType = "C"
	Put  OptionType = "P"
)

// Venue identifies the exchange a raw payload came from.
type Venue string

const (
	VenueDeribit Venue = "deribit"
	VenueOKX     Venue = "okx"
	VenueBinance Venue = "binance"
)

// Term tags an expiry bucket relative to the index maturity.
type Term string

const (
	NearTerm Term = "near_term"
	NextTerm Term = "next_term"
)

// Quote is one normalized option quote. All prices are absolute (USD).
type Quote struct {
	Venue           Venue      `json:"venue"`
	Symbol          string     `json:"symbol"`
	Base            string     `json:"base"`
	Strike          float64    `json:"strike"`
	Expiry          time.Time  `json:"expiry"`
	Type            OptionType `json:"type"`
	Bid             float64    `json:"bid"`
	Ask             float64    `json:"ask"`
	MarkPrice       float64    `json:"mark_price"`
	UnderlyingPrice float64    `json:"underlying_price"`
	Timestamp       time.Time  `json:"timestamp"`
}

// Mid returns the bid/ask midpoint.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// ExpiryBucket holds the quotes of a single expiry.
type ExpiryBucket struct {
	Expiry time.Time
	Term   Term
	Calls  []Quote
	Puts   []Quote
}

// Len returns the number of quotes in the bucket.
func (b ExpiryBucket) Len() int {
	return len(b.Calls) + len(b.Puts)
}

// Quotes returns calls followed by puts.
func (b ExpiryBucket) Quotes() []Quote {
	all := make([]Quote, 0, b.Len())
	all = append(all, b.Calls...)
	return append(all, b.Puts...)
}

// ForwardPriceEstimate is the implied forward of one expiry.
type ForwardPriceEstimate struct {
	Expiry          time.Time `json:"expiry"`
	StrikeAtMinDiff float64   `json:"strike_at_min_diff"`
	Fimp            float64   `json:"fimp"`
}

// StrikePrice is one point of the OTM strike grid.
type StrikePrice struct {
	Strike float64    `json:"strike"`
	Mid    float64    `json:"mid"`
	Bid    float64    `json:"bid"`
	Type   OptionType `json:"type"`
	// ATM is set for the averaged call/put point at the ATM strike.
	ATM bool `json:"atm,omitempty"`
}

// VarianceEstimate is the implied variance of one expiry bucket.
type VarianceEstimate struct {
	Expiry      time.Time `json:"expiry"`
	Term        Term      `json:"term"`
	Sigma2      float64   `json:"sigma2"`
	T           float64   `json:"t"`
	Fimp        float64   `json:"fimp"`
	KATM        float64   `json:"katm"`
	Rate        float64   `json:"rate"`
	ImpliedRate float64   `json:"implied_rate"`
	Strikes     int       `json:"strikes"`
}

// Params configures the computation. Zero values are replaced by defaults
// in WithDefaults, except SpreadMin and IncludeATM whose zero values are
// meaningful; start from DefaultParams to get their defaults.
type Params struct {
	SpreadMultiplier  float64
	SpreadMin         float64
	IndexMaturityDays float64
	RangeMult         float64
	BidCutoff         int
	HalfLife          float64
	ExpiryHourUTC     int
	IncludeATM        bool
	HistorySize       int
}

// Default parameter values.
const (
	DefaultSpreadMultiplier  = 10.0
	DefaultSpreadMin         = 0.0005
	DefaultIndexMaturityDays = 30.0
	DefaultRangeMult         = 2.5
	DefaultBidCutoff         = 5
	DefaultHalfLife          = 10.0
	DefaultExpiryHourUTC     = 8
	DefaultHistorySize       = 120
)

// DefaultParams returns the default parameter set.
func DefaultParams() Params {
	return Params{
		SpreadMultiplier:  DefaultSpreadMultiplier,
		SpreadMin:         DefaultSpreadMin,
		IndexMaturityDays: DefaultIndexMaturityDays,
		RangeMult:         DefaultRangeMult,
		BidCutoff:         DefaultBidCutoff,
		HalfLife:          DefaultHalfLife,
		ExpiryHourUTC:     DefaultExpiryHourUTC,
		IncludeATM:        true,
		HistorySize:       DefaultHistorySize,
	}
}

// WithDefaults fills zero fields with defaults. SpreadMin and IncludeATM are
// left as is since a zero spread floor is valid.
func (p Params) WithDefaults() Params {
	if p.SpreadMultiplier == 0 {
		p.SpreadMultiplier = DefaultSpreadMultiplier
	}
	if p.IndexMaturityDays == 0 {
		p.IndexMaturityDays = DefaultIndexMaturityDays
	}
	if p.RangeMult == 0 {
		p.RangeMult = DefaultRangeMult
	}
	if p.BidCutoff == 0 {
		p.BidCutoff = DefaultBidCutoff
	}
	if p.HalfLife == 0 {
		p.HalfLife = DefaultHalfLife
	}
	if p.HistorySize == 0 {
		p.HistorySize = DefaultHistorySize
	}
	return p
}
