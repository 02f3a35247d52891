package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestATMStrike(t *testing.T) {
	quotes := []Quote{
		quote(Call, 60, 1, 0.1),
		quote(Put, 80, 1, 0.1),
		quote(Call, 70, 1, 0.1),
		quote(Call, 90, 1, 0.1),
	}

	katm, err := ATMStrike(quotes, 85)
	require.NoError(t, err)
	assert.Equal(t, 80.0, katm)

	katm, err = ATMStrike(quotes, 90)
	require.NoError(t, err)
	assert.Equal(t, 80.0, katm, "strike equal to forward is not below it")

	_, err = ATMStrike(quotes, 60)
	assert.ErrorIs(t, err, ErrNoATMStrike)
}

func TestTickSize(t *testing.T) {
	quotes := []Quote{
		quoteWithBid(Call, 100, 0),
		quoteWithBid(Call, 110, 0.3),
		quoteWithBid(Put, 90, 0.05),
	}
	assert.Equal(t, 0.05, TickSize(quotes))
	assert.Zero(t, TickSize([]Quote{quoteWithBid(Put, 90, 0)}))
}

func selectBucket() ExpiryBucket {
	return ExpiryBucket{
		Expiry: testExpiry,
		Calls: []Quote{
			quoteWithBid(Call, 180, 3),
			quoteWithBid(Call, 90, 12),
			quoteWithBid(Call, 100, 6),
			quoteWithBid(Call, 110, 5),
			quoteWithBid(Call, 120, 4),
			quoteWithBid(Call, 130, 0.1),
			quoteWithBid(Call, 140, 0.1),
			quoteWithBid(Call, 150, 0.1),
			quoteWithBid(Call, 160, 0.1),
			quoteWithBid(Call, 170, 0.1),
		},
		Puts: []Quote{
			quoteWithBid(Put, 40, 0.2),
			quoteWithBid(Put, 50, 0.5),
			quoteWithBid(Put, 60, 1),
			quoteWithBid(Put, 70, 2),
			quoteWithBid(Put, 80, 3),
			quoteWithBid(Put, 90, 4),
			quoteWithBid(Put, 100, 5),
			quoteWithBid(Put, 110, 9),
		},
	}
}

func strikesOf(grid []StrikePrice) []float64 {
	out := make([]float64, len(grid))
	for i, p := range grid {
		out[i] = p.Strike
	}
	return out
}

func TestOTMFilter_Select(t *testing.T) {
	f := OTMFilter{RangeMult: 2.5, BidCutoff: 5, IncludeATM: true}

	grid := f.Select(selectBucket(), 102, 100)

	require.Len(t, grid, 12)
	assert.Equal(t,
		[]float64{50, 60, 70, 80, 90, 100, 110, 120, 130, 140, 150, 160},
		strikesOf(grid))

	atm := grid[5]
	assert.True(t, atm.ATM)
	assert.InDelta(t, 6.0, atm.Mid, 1e-9)

	for _, p := range grid[:5] {
		assert.Equal(t, Put, p.Type)
	}
	for _, p := range grid[6:] {
		assert.Equal(t, Call, p.Type)
	}
}

func TestOTMFilter_WithoutATM(t *testing.T) {
	f := OTMFilter{RangeMult: 2.5, BidCutoff: 5}

	grid := f.Select(selectBucket(), 102, 100)

	require.Len(t, grid, 11)
	assert.NotContains(t, strikesOf(grid), 100.0)
}

func TestOTMFilter_CutoffResets(t *testing.T) {
	bucket := ExpiryBucket{
		Expiry: testExpiry,
		Calls: []Quote{
			quoteWithBid(Call, 110, 0.1),
			quoteWithBid(Call, 120, 0.1),
			quoteWithBid(Call, 130, 1),
			quoteWithBid(Call, 140, 0.1),
			quoteWithBid(Call, 150, 0.1),
			quoteWithBid(Call, 160, 0.1),
		},
	}
	f := OTMFilter{RangeMult: 2, BidCutoff: 3}

	grid := f.Select(bucket, 105, 100)

	assert.Equal(t, []float64{110, 120, 130, 140, 150}, strikesOf(grid))
}

func TestOTMFilter_CutoffScansAscending(t *testing.T) {
	bucket := ExpiryBucket{
		Expiry: testExpiry,
		Calls: []Quote{
			quoteWithBid(Call, 110, 3),
			quoteWithBid(Call, 120, 3),
		},
	}
	for _, k := range []float64{50, 55, 60, 65, 70} {
		bucket.Puts = append(bucket.Puts, quoteWithBid(Put, k, 0.1))
	}
	for _, k := range []float64{75, 80, 85, 90, 95} {
		bucket.Puts = append(bucket.Puts, quoteWithBid(Put, k, 2))
	}
	f := OTMFilter{RangeMult: 2.5, BidCutoff: 5}

	grid := f.Select(bucket, 102, 100)

	assert.Equal(t, []float64{50, 55, 60, 65}, strikesOf(grid))
}

func TestOTMFilter_RangeIsInclusive(t *testing.T) {
	bucket := ExpiryBucket{
		Expiry: testExpiry,
		Calls:  []Quote{quoteWithBid(Call, 200, 1), quoteWithBid(Call, 201, 1)},
		Puts:   []Quote{quoteWithBid(Put, 50, 1), quoteWithBid(Put, 49, 1)},
	}
	f := OTMFilter{RangeMult: 2, BidCutoff: 5}

	grid := f.Select(bucket, 100, 99)

	assert.Equal(t, []float64{50, 200}, strikesOf(grid))
}
