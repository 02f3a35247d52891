package cex

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/StrathCole/ivindex-go/pkg/index"
	"github.com/StrathCole/ivindex-go/pkg/server/sources"
)

const binanceAPIURL = "https://eapi.binance.com"

// BinanceSource fetches option tickers and marks from the Binance European
// options API.
type BinanceSource struct {
	*sources.BaseSource

	apiURL string
}

type binanceTicker struct {
	Symbol        string `json:"symbol"`
	BidPrice      string `json:"bidPrice"`
	AskPrice      string `json:"askPrice"`
	ExercisePrice string `json:"exercisePrice"`
	CloseTime     int64  `json:"closeTime"`
}

type binanceMark struct {
	Symbol    string `json:"symbol"`
	MarkPrice string `json:"markPrice"`
}

type binanceIndex struct {
	Time       int64  `json:"time"`
	IndexPrice string `json:"indexPrice"`
}

// NewBinanceSource creates a new Binance options source
func NewBinanceSource(config map[string]interface{}) (sources.Source, error) {
	underlyings, err := sources.ParseUnderlyings(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse underlyings: %w", err)
	}
	opts, err := sources.ParseHTTPOptions(config)
	if err != nil {
		return nil, err
	}

	base := sources.NewBaseSource("binance", sources.SourceTypeCEX, underlyings, sources.GetLoggerFromConfig(config), opts)
	return &BinanceSource{
		BaseSource: base,
		apiURL:     sources.GetString(config, "api_url", binanceAPIURL),
	}, nil
}

// Initialize prepares the source for operation
func (s *BinanceSource) Initialize(ctx context.Context) error {
	s.Logger().Info("Initializing Binance source", "underlyings", s.Underlyings(), "api_url", s.apiURL)
	return nil
}

// Stop stops the source
func (s *BinanceSource) Stop() error {
	s.Close()
	s.Logger().Info("Binance source stopped")
	return nil
}

// FetchSnapshot fetches all option tickers of an underlying. The ticker
// endpoint lists every underlying, so results are filtered by symbol prefix.
func (s *BinanceSource) FetchSnapshot(ctx context.Context, underlying string) (snap index.Snapshot, err error) {
	base := sources.NormalizeUnderlying(underlying)
	if !s.Supports(base) {
		return snap, fmt.Errorf("%w: %s on %s", sources.ErrUnsupportedUnderlying, underlying, s.Name())
	}

	start := time.Now()
	defer func() { s.MarkFetch(start, err) }()

	var tickers []binanceTicker
	if err = s.GetJSON(ctx, s.apiURL+"/eapi/v1/ticker", &tickers); err != nil {
		return snap, err
	}

	prefix := base + "-"
	filtered := tickers[:0]
	for _, t := range tickers {
		if strings.HasPrefix(t.Symbol, prefix) {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		return snap, fmt.Errorf("%w: binance %s", sources.ErrNoQuotesInResponse, base)
	}

	var marks []binanceMark
	if err = s.GetJSON(ctx, s.apiURL+"/eapi/v1/mark", &marks); err != nil {
		return snap, err
	}

	var idx binanceIndex
	if err = s.GetJSON(ctx, s.apiURL+"/eapi/v1/index?underlying="+url.QueryEscape(base+"USDT"), &idx); err != nil {
		return snap, err
	}

	markTable := make(map[string]float64, len(marks))
	for _, m := range marks {
		if !strings.HasPrefix(m.Symbol, prefix) {
			continue
		}
		if v, ok := parseOptionalFloat(m.MarkPrice); ok {
			markTable[m.Symbol] = v
		}
	}

	quotes := make([]index.RawQuote, 0, len(filtered))
	for _, t := range filtered {
		exercise := t.ExercisePrice
		if v, ok := parseOptionalFloat(exercise); !ok || v <= 0 {
			exercise = idx.IndexPrice
		}
		var ts time.Time
		if t.CloseTime > 0 {
			ts = time.UnixMilli(t.CloseTime).UTC()
		}
		quotes = append(quotes, index.BinanceQuote{
			Symbol: t.Symbol,
			Info: index.BinanceInfo{
				BidPrice:      t.BidPrice,
				AskPrice:      t.AskPrice,
				ExercisePrice: exercise,
			},
			Timestamp: ts,
		})
	}

	s.Logger().Debug("Fetched option tickers", "underlying", base, "count", len(quotes), "marks", len(markTable))
	return index.Snapshot{
		Source:     s.Name(),
		Venue:      index.VenueBinance,
		Underlying: base,
		Quotes:     quotes,
		MarkPrices: markTable,
		FetchedAt:  time.Now().UTC(),
	}, nil
}
