package index

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Normalizer turns venue snapshots into canonical quotes.
type Normalizer struct {
	expiryHour time.Duration
}

// NewNormalizer creates a normalizer that places expiries at the given UTC
// hour of the expiry date.
func NewNormalizer(expiryHourUTC int) *Normalizer {
	return &Normalizer{expiryHour: time.Duration(expiryHourUTC) * time.Hour}
}

// Normalize converts every raw quote of the snapshot. Quotes that fail are
// dropped and their errors (wrapping ErrParse or ErrMissingData) returned
// alongside the successful quotes.
func (n *Normalizer) Normalize(s Snapshot) ([]Quote, []error) {
	marks := joinMarkPrices(s.Venue, s.MarkPrices)

	quotes := make([]Quote, 0, len(s.Quotes))
	var errs []error
	for _, raw := range s.Quotes {
		var (
			q   Quote
			err error
		)
		switch r := raw.(type) {
		case DeribitQuote:
			q, err = normalizeDeribit(r)
		case OKXQuote:
			q, err = normalizeOKX(r, marks)
		case BinanceQuote:
			q, err = normalizeBinance(r, marks)
		default:
			err = fmt.Errorf("%w: %T", ErrUnknownVenue, raw)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}

		info, err := ParseSymbol(q.Symbol)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		q.Base = info.Base
		q.Strike = info.Strike
		q.Type = info.Type
		q.Expiry = info.Expiry.Add(n.expiryHour)
		if q.Timestamp.IsZero() {
			q.Timestamp = s.FetchedAt
		}
		quotes = append(quotes, q)
	}
	return quotes, errs
}

// joinMarkPrices re-keys a venue mark table by unified symbol.
func joinMarkPrices(venue Venue, raw map[string]float64) map[string]float64 {
	joined := make(map[string]float64, len(raw))
	for symbol, mark := range raw {
		var (
			unified string
			err     error
		)
		switch venue {
		case VenueOKX:
			unified, err = OKXInstIDToSymbol(symbol)
		case VenueBinance:
			unified, err = BinanceSymbol(symbol)
		default:
			unified = symbol
		}
		if err != nil {
			continue
		}
		joined[unified] = mark
	}
	return joined
}

func normalizeDeribit(r DeribitQuote) (Quote, error) {
	symbol, err := DeribitSymbol(r.InstrumentName)
	if err != nil {
		return Quote{}, err
	}
	if r.Info.MarkPrice == nil {
		return Quote{}, fmt.Errorf("%w: %s mark_price", ErrMissingData, r.InstrumentName)
	}
	if r.Info.UnderlyingPrice == nil || *r.Info.UnderlyingPrice <= 0 {
		return Quote{}, fmt.Errorf("%w: %s underlying_price", ErrMissingData, r.InstrumentName)
	}
	underlying := *r.Info.UnderlyingPrice
	return Quote{
		Venue:           VenueDeribit,
		Symbol:          symbol,
		Bid:             valueOrZero(r.Bid) * underlying,
		Ask:             valueOrZero(r.Ask) * underlying,
		MarkPrice:       *r.Info.MarkPrice * underlying,
		UnderlyingPrice: underlying,
		Timestamp:       r.Timestamp,
	}, nil
}

func normalizeOKX(r OKXQuote, marks map[string]float64) (Quote, error) {
	symbol, err := OKXInstIDToSymbol(r.InstID)
	if err != nil {
		return Quote{}, err
	}
	mark, ok := marks[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s mark price", ErrMissingData, r.InstID)
	}
	if r.UnderlyingPrice == nil || *r.UnderlyingPrice <= 0 {
		return Quote{}, fmt.Errorf("%w: %s underlying price", ErrMissingData, r.InstID)
	}
	underlying := *r.UnderlyingPrice
	return Quote{
		Venue:           VenueOKX,
		Symbol:          symbol,
		Bid:             valueOrZero(r.Bid) * underlying,
		Ask:             valueOrZero(r.Ask) * underlying,
		MarkPrice:       mark * underlying,
		UnderlyingPrice: underlying,
		Timestamp:       r.Timestamp,
	}, nil
}

func normalizeBinance(r BinanceQuote, marks map[string]float64) (Quote, error) {
	symbol, err := BinanceSymbol(r.Symbol)
	if err != nil {
		return Quote{}, err
	}
	mark, ok := marks[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s mark price", ErrMissingData, r.Symbol)
	}
	return Quote{
		Venue:           VenueBinance,
		Symbol:          symbol,
		Bid:             parseOrZero(r.Info.BidPrice),
		Ask:             parseOrZero(r.Info.AskPrice),
		MarkPrice:       mark,
		UnderlyingPrice: parseOrZero(r.Info.ExercisePrice),
		Timestamp:       r.Timestamp,
	}, nil
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func parseOrZero(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
