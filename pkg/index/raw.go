package index

import "time"

// RawQuote is a venue payload record awaiting normalization. The set of
// implementations is closed: DeribitQuote, OKXQuote and BinanceQuote.
type RawQuote interface {
	Venue() Venue
	isRawQuote()
}

// DeribitInfo is the nested info object of a Deribit book summary. Prices
// are in coin units.
type DeribitInfo struct {
	MarkPrice       *float64 `json:"mark_price"`
	UnderlyingPrice *float64 `json:"underlying_price"`
}

// DeribitQuote is one Deribit option record. Bid and ask are in coin units.
type DeribitQuote struct {
	InstrumentName string      `json:"instrument_name"`
	Bid            *float64    `json:"bid_price"`
	Ask            *float64    `json:"ask_price"`
	Info           DeribitInfo `json:"info"`
	Timestamp      time.Time   `json:"timestamp"`
}

// OKXQuote is one OKX option ticker. Bid and ask are in coin units; the mark
// price is joined from Snapshot.MarkPrices.
type OKXQuote struct {
	InstID          string    `json:"inst_id"`
	Bid             *float64  `json:"bid"`
	Ask             *float64  `json:"ask"`
	UnderlyingPrice *float64  `json:"underlying_price"`
	Timestamp       time.Time `json:"timestamp"`
}

// BinanceInfo holds the string encoded book fields of a Binance ticker.
type BinanceInfo struct {
	BidPrice      string `json:"bidPrice"`
	AskPrice      string `json:"askPrice"`
	ExercisePrice string `json:"exercisePrice"`
}

// BinanceQuote is one Binance options ticker. Prices are in USDT; the mark
// price is joined from Snapshot.MarkPrices.
type BinanceQuote struct {
	Symbol    string      `json:"symbol"`
	Info      BinanceInfo `json:"info"`
	Timestamp time.Time   `json:"timestamp"`
}

func (DeribitQuote) Venue() Venue { return VenueDeribit }
func (OKXQuote) Venue() Venue     { return VenueOKX }
func (BinanceQuote) Venue() Venue { return VenueBinance }

func (DeribitQuote) isRawQuote() {}
func (OKXQuote) isRawQuote()     {}
func (BinanceQuote) isRawQuote() {}

// Snapshot is everything one venue returned for one underlying in a cycle.
// MarkPrices is keyed by the venue's own symbol and holds venue-unit prices.
type Snapshot struct {
	Source     string
	Venue      Venue
	Underlying string
	Quotes     []RawQuote
	MarkPrices map[string]float64
	FetchedAt  time.Time
}
