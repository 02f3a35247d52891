package cex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/StrathCole/ivindex-go/pkg/index"
	"github.com/StrathCole/ivindex-go/pkg/server/sources"
)

const okxAPIURL = "https://www.okx.com"

// OKXSource fetches option tickers, mark prices and the underlying spot
// price from the OKX v5 REST API.
type OKXSource struct {
	*sources.BaseSource

	apiURL string
}

// okxTicker is one option ticker. Prices are strings in coin units and
// empty when the side of the book is empty.
type okxTicker struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
	BidPx  string `json:"bidPx"`
	AskPx  string `json:"askPx"`
	Ts     string `json:"ts"`
}

type okxMarkPrice struct {
	InstID string `json:"instId"`
	MarkPx string `json:"markPx"`
}

type okxResponse[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

func (r okxResponse[T]) err() error {
	if r.Code != "0" {
		return fmt.Errorf("%w: %s - %s", sources.ErrAPIError, r.Code, r.Msg)
	}
	return nil
}

// NewOKXSource creates a new OKX REST source
func NewOKXSource(config map[string]interface{}) (sources.Source, error) {
	underlyings, err := sources.ParseUnderlyings(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse underlyings: %w", err)
	}
	opts, err := sources.ParseHTTPOptions(config)
	if err != nil {
		return nil, err
	}

	base := sources.NewBaseSource("okx", sources.SourceTypeCEX, underlyings, sources.GetLoggerFromConfig(config), opts)
	return &OKXSource{
		BaseSource: base,
		apiURL:     sources.GetString(config, "api_url", okxAPIURL),
	}, nil
}

// Initialize prepares the source for operation
func (s *OKXSource) Initialize(ctx context.Context) error {
	s.Logger().Info("Initializing OKX source", "underlyings", s.Underlyings(), "api_url", s.apiURL)
	return nil
}

// Stop stops the source
func (s *OKXSource) Stop() error {
	s.Close()
	s.Logger().Info("OKX source stopped")
	return nil
}

// FetchSnapshot fetches the option chain of an underlying with its mark
// price table and spot price.
func (s *OKXSource) FetchSnapshot(ctx context.Context, underlying string) (snap index.Snapshot, err error) {
	base := sources.NormalizeUnderlying(underlying)
	if !s.Supports(base) {
		return snap, fmt.Errorf("%w: %s on %s", sources.ErrUnsupportedUnderlying, underlying, s.Name())
	}

	start := time.Now()
	defer func() { s.MarkFetch(start, err) }()

	uly := base + "-USD"
	q := url.Values{}
	q.Set("instType", "OPTION")
	q.Set("uly", uly)

	var tickers okxResponse[okxTicker]
	if err = s.GetJSON(ctx, s.apiURL+"/api/v5/market/tickers?"+q.Encode(), &tickers); err != nil {
		return snap, err
	}
	if err = tickers.err(); err != nil {
		return snap, err
	}
	if len(tickers.Data) == 0 {
		return snap, fmt.Errorf("%w: okx %s", sources.ErrNoQuotesInResponse, uly)
	}

	var marks okxResponse[okxMarkPrice]
	if err = s.GetJSON(ctx, s.apiURL+"/api/v5/public/mark-price?"+q.Encode(), &marks); err != nil {
		return snap, err
	}
	if err = marks.err(); err != nil {
		return snap, err
	}

	spot, err := s.spotPrice(ctx, base)
	if err != nil {
		return snap, err
	}

	markTable := make(map[string]float64, len(marks.Data))
	for _, m := range marks.Data {
		if v, ok := parseOptionalFloat(m.MarkPx); ok {
			markTable[m.InstID] = v
		}
	}

	quotes := make([]index.RawQuote, 0, len(tickers.Data))
	for _, t := range tickers.Data {
		q := index.OKXQuote{
			InstID:          t.InstID,
			UnderlyingPrice: &spot,
			Timestamp:       parseMillis(t.Ts),
		}
		if v, ok := parseOptionalFloat(t.BidPx); ok {
			q.Bid = &v
		}
		if v, ok := parseOptionalFloat(t.AskPx); ok {
			q.Ask = &v
		}
		quotes = append(quotes, q)
	}

	s.Logger().Debug("Fetched option tickers", "underlying", base, "count", len(quotes), "marks", len(markTable))
	return index.Snapshot{
		Source:     s.Name(),
		Venue:      index.VenueOKX,
		Underlying: base,
		Quotes:     quotes,
		MarkPrices: markTable,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// spotPrice reads the last traded BASE-USDT price.
func (s *OKXSource) spotPrice(ctx context.Context, base string) (float64, error) {
	var resp okxResponse[okxTicker]
	if err := s.GetJSON(ctx, s.apiURL+"/api/v5/market/ticker?instId="+url.QueryEscape(base+"-USDT"), &resp); err != nil {
		return 0, err
	}
	if err := resp.err(); err != nil {
		return 0, err
	}
	if len(resp.Data) == 0 {
		return 0, fmt.Errorf("%w: no spot ticker for %s", sources.ErrInvalidResponse, base)
	}
	spot, ok := parseOptionalFloat(resp.Data[0].Last)
	if !ok || spot <= 0 {
		return 0, fmt.Errorf("%w: spot price %q for %s", sources.ErrInvalidResponse, resp.Data[0].Last, base)
	}
	return spot, nil
}

func parseOptionalFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
