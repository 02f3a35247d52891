package cex

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/StrathCole/ivindex-go/pkg/index"
	"github.com/StrathCole/ivindex-go/pkg/server/sources"
)

const deribitAPIURL = "https://www.deribit.com"

// DeribitSource fetches option book summaries from the Deribit public API.
type DeribitSource struct {
	*sources.BaseSource

	apiURL string
}

// deribitSummary is one record of get_book_summary_by_currency. Prices are
// in coin units; bid and ask are null on an empty side of the book.
type deribitSummary struct {
	InstrumentName    string   `json:"instrument_name"`
	BidPrice          *float64 `json:"bid_price"`
	AskPrice          *float64 `json:"ask_price"`
	MarkPrice         *float64 `json:"mark_price"`
	UnderlyingPrice   *float64 `json:"underlying_price"`
	CreationTimestamp int64    `json:"creation_timestamp"`
}

type deribitError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type deribitResponse struct {
	Result []deribitSummary `json:"result"`
	Error  *deribitError    `json:"error"`
}

// NewDeribitSource creates a new Deribit source
func NewDeribitSource(config map[string]interface{}) (sources.Source, error) {
	underlyings, err := sources.ParseUnderlyings(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse underlyings: %w", err)
	}
	opts, err := sources.ParseHTTPOptions(config)
	if err != nil {
		return nil, err
	}

	base := sources.NewBaseSource("deribit", sources.SourceTypeCEX, underlyings, sources.GetLoggerFromConfig(config), opts)
	return &DeribitSource{
		BaseSource: base,
		apiURL:     sources.GetString(config, "api_url", deribitAPIURL),
	}, nil
}

// Initialize prepares the source for operation
func (s *DeribitSource) Initialize(ctx context.Context) error {
	s.Logger().Info("Initializing Deribit source", "underlyings", s.Underlyings(), "api_url", s.apiURL)
	return nil
}

// Stop stops the source
func (s *DeribitSource) Stop() error {
	s.Close()
	s.Logger().Info("Deribit source stopped")
	return nil
}

// FetchSnapshot fetches the option book summaries of one currency.
func (s *DeribitSource) FetchSnapshot(ctx context.Context, underlying string) (snap index.Snapshot, err error) {
	currency := sources.NormalizeUnderlying(underlying)
	if !s.Supports(currency) {
		return snap, fmt.Errorf("%w: %s on %s", sources.ErrUnsupportedUnderlying, underlying, s.Name())
	}

	start := time.Now()
	defer func() { s.MarkFetch(start, err) }()

	q := url.Values{}
	q.Set("currency", currency)
	q.Set("kind", "option")

	var resp deribitResponse
	if err = s.GetJSON(ctx, s.apiURL+"/api/v2/public/get_book_summary_by_currency?"+q.Encode(), &resp); err != nil {
		return snap, err
	}
	if resp.Error != nil {
		return snap, fmt.Errorf("%w: %d - %s", sources.ErrAPIError, resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Result) == 0 {
		return snap, fmt.Errorf("%w: deribit %s", sources.ErrNoQuotesInResponse, currency)
	}

	quotes := make([]index.RawQuote, 0, len(resp.Result))
	for _, r := range resp.Result {
		var ts time.Time
		if r.CreationTimestamp > 0 {
			ts = time.UnixMilli(r.CreationTimestamp).UTC()
		}
		quotes = append(quotes, index.DeribitQuote{
			InstrumentName: r.InstrumentName,
			Bid:            r.BidPrice,
			Ask:            r.AskPrice,
			Info: index.DeribitInfo{
				MarkPrice:       r.MarkPrice,
				UnderlyingPrice: r.UnderlyingPrice,
			},
			Timestamp: ts,
		})
	}

	s.Logger().Debug("Fetched option summaries", "underlying", currency, "count", len(quotes))
	return index.Snapshot{
		Source:     s.Name(),
		Venue:      index.VenueDeribit,
		Underlying: currency,
		Quotes:     quotes,
		FetchedAt:  time.Now().UTC(),
	}, nil
}
