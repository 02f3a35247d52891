package index

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var calcNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// deribitLeg builds a Deribit quote from USD prices on an underlying of 100.
func deribitLeg(expiry string, strike float64, typ OptionType, mid float64) RawQuote {
	const underlying = 100.0
	return DeribitQuote{
		InstrumentName: fmt.Sprintf("BTC-%s-%g-%s", expiry, strike, typ),
		Bid:            ptr((mid - 0.5) / underlying),
		Ask:            ptr((mid + 0.5) / underlying),
		Info: DeribitInfo{
			MarkPrice:       ptr(mid / underlying),
			UnderlyingPrice: ptr(underlying),
		},
	}
}

func expiryLegs(expiry string) []RawQuote {
	return []RawQuote{
		deribitLeg(expiry, 90, Call, 12),
		deribitLeg(expiry, 100, Call, 5),
		deribitLeg(expiry, 110, Call, 2),
		deribitLeg(expiry, 120, Call, 1),
		deribitLeg(expiry, 80, Put, 1),
		deribitLeg(expiry, 90, Put, 2),
		deribitLeg(expiry, 100, Put, 5),
		deribitLeg(expiry, 110, Put, 12),
	}
}

func calcSnapshot() Snapshot {
	var quotes []RawQuote
	quotes = append(quotes, expiryLegs("21JUN24")...)
	quotes = append(quotes, expiryLegs("26JUL24")...)
	return Snapshot{
		Source:     "deribit",
		Venue:      VenueDeribit,
		Underlying: "BTC",
		Quotes:     quotes,
		FetchedAt:  calcNow,
	}
}

func newTestCalculator(t *testing.T) *Calculator {
	t.Helper()
	c, err := NewCalculator(DefaultParams())
	require.NoError(t, err)
	return c
}

func TestCalculator_Compute(t *testing.T) {
	c := newTestCalculator(t)

	res, err := c.Compute(calcSnapshot(), calcNow)
	require.NoError(t, err)

	assert.Equal(t, QuoteStats{Raw: 16, Normalized: 16, Accepted: 16}, res.Stats)

	for _, est := range []VarianceEstimate{res.Near, res.Next} {
		assert.InDelta(t, 100, est.Fimp, 1e-9)
		assert.Equal(t, 90.0, est.KATM)
		assert.Equal(t, 5, est.Strikes)
		assert.Greater(t, est.Sigma2, 0.0)
		assert.InDelta(t, 0, est.ImpliedRate, 1e-9)
	}
	assert.Equal(t, NearTerm, res.Near.Term)
	assert.Equal(t, NextTerm, res.Next.Term)
	assert.Less(t, res.Near.T, res.Next.T)

	assert.Greater(t, res.WeightNear, 0.0)
	assert.Greater(t, res.WeightNext, 0.0)
	want := res.WeightNear*res.Near.Sigma2 + res.WeightNext*res.Next.Sigma2
	assert.InDelta(t, want, res.Sigma2Raw, 1e-12)
}

func TestCalculator_BucketVarianceClosedForm(t *testing.T) {
	c := newTestCalculator(t)
	quotes, _ := c.Prepare(calcSnapshot())
	sel, err := SelectTerms(quotes, calcNow, DefaultIndexMaturityDays)
	require.NoError(t, err)

	est, err := c.BucketVariance(*sel.Near, calcNow)
	require.NoError(t, err)

	// Grid 80..120 with the ATM point at 90 averaging the 90 call and put.
	sum := 10.0/6400*1 + 10.0/8100*7 + 10.0/10000*5 + 10.0/12100*2 + 10.0/14400*1
	tt := TimeToMaturity(sel.Near.Expiry, calcNow)
	discount := 100.0 / 90.0
	corr := 100.0/90.0 - 1
	want := 2/tt*discount*sum - corr*corr/tt

	assert.InDelta(t, want, est.Sigma2, 1e-9)
	assert.InDelta(t, math.Log(100.0/90.0)/tt, est.Rate, 1e-9)
}

func TestCalculator_CountsDroppedQuotes(t *testing.T) {
	c := newTestCalculator(t)
	snap := calcSnapshot()
	snap.Quotes = append(snap.Quotes,
		DeribitQuote{InstrumentName: "BTC-PERPETUAL", Info: DeribitInfo{MarkPrice: ptr(1), UnderlyingPrice: ptr(100)}},
		DeribitQuote{InstrumentName: "BTC-26JUL24-130-C", Info: DeribitInfo{UnderlyingPrice: ptr(100)}},
		DeribitQuote{
			InstrumentName: "BTC-26JUL24-140-C",
			Bid:            ptr(0),
			Ask:            ptr(0.2),
			Info:           DeribitInfo{MarkPrice: ptr(0.01), UnderlyingPrice: ptr(100)},
		},
	)

	res, err := c.Compute(snap, calcNow)
	require.NoError(t, err)
	assert.Equal(t, QuoteStats{
		Raw:         19,
		ParseErrors: 1,
		MissingData: 1,
		Normalized:  17,
		Rejected:    1,
		Accepted:    16,
	}, res.Stats)
}

func TestCalculator_RequiresBothTerms(t *testing.T) {
	c := newTestCalculator(t)
	snap := calcSnapshot()
	snap.Quotes = expiryLegs("21JUN24")

	res, err := c.Compute(snap, calcNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyBucket)
	assert.Equal(t, 8, res.Stats.Accepted)

	snap.Quotes = nil
	_, err = c.Compute(snap, calcNow)
	assert.ErrorIs(t, err, ErrNoTerms)
}

func TestCalculator_Step(t *testing.T) {
	c := newTestCalculator(t)

	s := c.Step(IndexState{}, 0.04, calcNow)
	assert.InDelta(t, 20, s.Value, 1e-9)

	s = c.Step(s, 0.04, calcNow.Add(time.Minute))
	assert.InDelta(t, 20, s.Value, 1e-9)
	assert.Len(t, s.History, 2)
}

func TestNewCalculator_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Params)
	}{
		{"negative multiplier", func(p *Params) { p.SpreadMultiplier = -1 }},
		{"negative spread min", func(p *Params) { p.SpreadMin = -0.1 }},
		{"negative maturity", func(p *Params) { p.IndexMaturityDays = -30 }},
		{"range multiplier of one", func(p *Params) { p.RangeMult = 1 }},
		{"negative cutoff", func(p *Params) { p.BidCutoff = -1 }},
		{"negative half-life", func(p *Params) { p.HalfLife = -2 }},
		{"expiry hour out of range", func(p *Params) { p.ExpiryHourUTC = 24 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.modify(&p)
			_, err := NewCalculator(p)
			assert.ErrorIs(t, err, ErrInvalidParams)
		})
	}
}

func TestNewCalculator_FillsDefaults(t *testing.T) {
	c, err := NewCalculator(Params{})
	require.NoError(t, err)
	assert.Equal(t, DefaultRangeMult, c.Params().RangeMult)
	assert.InDelta(t, Lambda(DefaultHalfLife), c.Lambda(), 1e-12)
	assert.Zero(t, c.Params().SpreadMin)
}

func TestNewCalculator_KeepsZeroSpreadMin(t *testing.T) {
	p := DefaultParams()
	p.SpreadMin = 0
	c, err := NewCalculator(p)
	require.NoError(t, err)
	assert.Zero(t, c.Params().SpreadMin)
}
