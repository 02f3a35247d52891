package cex

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/ivindex-go/pkg/index"
	"github.com/StrathCole/ivindex-go/pkg/server/sources"
)

func newVenueServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func venueConfig(url string) map[string]interface{} {
	return map[string]interface{}{
		"api_url":     url,
		"underlyings": []interface{}{"BTC"},
		"rate_limit":  0,
	}
}

func TestRegisteredVenues(t *testing.T) {
	for _, name := range []string{"deribit", "okx", "binance"} {
		src, err := sources.Create("cex", name, venueConfig("http://localhost"))
		require.NoError(t, err, name)
		assert.Equal(t, name, src.Name())
		assert.Equal(t, sources.SourceTypeCEX, src.Type())
		assert.Equal(t, []string{"BTC"}, src.Underlyings())
		require.NoError(t, src.Initialize(context.Background()))
		require.NoError(t, src.Stop())
	}
}

func TestNewSourceRequiresUnderlyings(t *testing.T) {
	for _, factory := range []sources.SourceFactory{NewDeribitSource, NewOKXSource, NewBinanceSource} {
		_, err := factory(map[string]interface{}{})
		assert.ErrorIs(t, err, sources.ErrNoUnderlyingsConfigured)
	}
}

func TestDeribitFetchSnapshot(t *testing.T) {
	srv := newVenueServer(t, map[string]string{
		"/api/v2/public/get_book_summary_by_currency": `{"jsonrpc":"2.0","result":[
			{"instrument_name":"BTC-28JUN24-60000-C","bid_price":0.045,"ask_price":0.055,"mark_price":0.05,"underlying_price":60000,"creation_timestamp":1717200000000},
			{"instrument_name":"BTC-28JUN24-60000-P","bid_price":null,"ask_price":0.04,"mark_price":0.03,"underlying_price":60000,"creation_timestamp":1717200000000}
		]}`,
	})

	src, err := NewDeribitSource(venueConfig(srv.URL))
	require.NoError(t, err)

	snap, err := src.FetchSnapshot(context.Background(), "btc")
	require.NoError(t, err)
	assert.Equal(t, index.VenueDeribit, snap.Venue)
	assert.Equal(t, "BTC", snap.Underlying)
	require.Len(t, snap.Quotes, 2)
	assert.True(t, src.IsHealthy())
	assert.False(t, src.LastUpdate().IsZero())

	quotes, errs := index.NewNormalizer(8).Normalize(snap)
	assert.Empty(t, errs)
	require.Len(t, quotes, 2)
	assert.Equal(t, "BTC/USD:BTC-240628-60000-C", quotes[0].Symbol)
	assert.InDelta(t, 2700, quotes[0].Bid, 1e-9)
	assert.InDelta(t, 3300, quotes[0].Ask, 1e-9)
	assert.InDelta(t, 3000, quotes[0].MarkPrice, 1e-9)
	assert.Zero(t, quotes[1].Bid)
}

func TestDeribitAPIError(t *testing.T) {
	srv := newVenueServer(t, map[string]string{
		"/api/v2/public/get_book_summary_by_currency": `{"error":{"code":10001,"message":"bad currency"}}`,
	})

	src, err := NewDeribitSource(venueConfig(srv.URL))
	require.NoError(t, err)

	_, err = src.FetchSnapshot(context.Background(), "BTC")
	assert.ErrorIs(t, err, sources.ErrAPIError)
	assert.False(t, src.IsHealthy())
}

func TestOKXFetchSnapshot(t *testing.T) {
	srv := newVenueServer(t, map[string]string{
		"/api/v5/market/tickers": `{"code":"0","msg":"","data":[
			{"instId":"BTC-USD-240628-60000-C","bidPx":"0.045","askPx":"0.055","ts":"1717200000000"},
			{"instId":"BTC-USD-240628-60000-P","bidPx":"","askPx":"0.04","ts":"1717200000000"}
		]}`,
		"/api/v5/public/mark-price": `{"code":"0","msg":"","data":[
			{"instId":"BTC-USD-240628-60000-C","markPx":"0.05"}
		]}`,
		"/api/v5/market/ticker": `{"code":"0","msg":"","data":[{"instId":"BTC-USDT","last":"60000"}]}`,
	})

	src, err := NewOKXSource(venueConfig(srv.URL))
	require.NoError(t, err)

	snap, err := src.FetchSnapshot(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, index.VenueOKX, snap.Venue)
	require.Len(t, snap.Quotes, 2)
	assert.Equal(t, map[string]float64{"BTC-USD-240628-60000-C": 0.05}, snap.MarkPrices)

	quotes, errs := index.NewNormalizer(8).Normalize(snap)
	require.Len(t, quotes, 1)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], index.ErrMissingData)
	assert.InDelta(t, 2700, quotes[0].Bid, 1e-9)
	assert.InDelta(t, 3000, quotes[0].MarkPrice, 1e-9)
	assert.InDelta(t, 60000, quotes[0].UnderlyingPrice, 1e-9)
}

func TestOKXErrors(t *testing.T) {
	tests := []struct {
		name   string
		routes map[string]string
		want   error
	}{
		{
			name: "api error code",
			routes: map[string]string{
				"/api/v5/market/tickers": `{"code":"51001","msg":"Instrument ID does not exist","data":[]}`,
			},
			want: sources.ErrAPIError,
		},
		{
			name: "no tickers",
			routes: map[string]string{
				"/api/v5/market/tickers": `{"code":"0","msg":"","data":[]}`,
			},
			want: sources.ErrNoQuotesInResponse,
		},
		{
			name: "bad spot price",
			routes: map[string]string{
				"/api/v5/market/tickers":    `{"code":"0","msg":"","data":[{"instId":"BTC-USD-240628-60000-C","bidPx":"0.01","askPx":"0.02"}]}`,
				"/api/v5/public/mark-price": `{"code":"0","msg":"","data":[]}`,
				"/api/v5/market/ticker":     `{"code":"0","msg":"","data":[{"last":""}]}`,
			},
			want: sources.ErrInvalidResponse,
		},
		{
			name:   "missing endpoint",
			routes: map[string]string{},
			want:   sources.ErrUnexpectedStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newVenueServer(t, tt.routes)
			src, err := NewOKXSource(venueConfig(srv.URL))
			require.NoError(t, err)

			_, err = src.FetchSnapshot(context.Background(), "BTC")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBinanceFetchSnapshot(t *testing.T) {
	srv := newVenueServer(t, map[string]string{
		"/eapi/v1/ticker": `[
			{"symbol":"BTC-240628-60000-C","bidPrice":"2700","askPrice":"3300","exercisePrice":"60010","closeTime":1717200000000},
			{"symbol":"BTC-240628-60000-P","bidPrice":"1900","askPrice":"2100","exercisePrice":"","closeTime":1717200000000},
			{"symbol":"ETH-240628-3000-C","bidPrice":"100","askPrice":"110","exercisePrice":"3001","closeTime":1717200000000}
		]`,
		"/eapi/v1/mark": `[
			{"symbol":"BTC-240628-60000-C","markPrice":"3000"},
			{"symbol":"BTC-240628-60000-P","markPrice":"2000"},
			{"symbol":"ETH-240628-3000-C","markPrice":"105"}
		]`,
		"/eapi/v1/index": `{"time":1717200000000,"indexPrice":"60005"}`,
	})

	src, err := NewBinanceSource(venueConfig(srv.URL))
	require.NoError(t, err)

	snap, err := src.FetchSnapshot(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, index.VenueBinance, snap.Venue)
	require.Len(t, snap.Quotes, 2)
	assert.Len(t, snap.MarkPrices, 2)

	put, ok := snap.Quotes[1].(index.BinanceQuote)
	require.True(t, ok)
	assert.Equal(t, "60005", put.Info.ExercisePrice)

	quotes, errs := index.NewNormalizer(8).Normalize(snap)
	assert.Empty(t, errs)
	require.Len(t, quotes, 2)
	assert.InDelta(t, 60010, quotes[0].UnderlyingPrice, 1e-9)
	assert.InDelta(t, 2000, quotes[1].MarkPrice, 1e-9)
}

func TestFetchUnsupportedUnderlying(t *testing.T) {
	srv := newVenueServer(t, map[string]string{})
	for _, factory := range []sources.SourceFactory{NewDeribitSource, NewOKXSource, NewBinanceSource} {
		src, err := factory(venueConfig(srv.URL))
		require.NoError(t, err)

		_, err = src.FetchSnapshot(context.Background(), "SOL")
		assert.ErrorIs(t, err, sources.ErrUnsupportedUnderlying)
	}
}
