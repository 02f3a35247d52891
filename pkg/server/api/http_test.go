package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/ivindex-go/pkg/index"
	"github.com/StrathCole/ivindex-go/pkg/server/engine"
	"github.com/StrathCole/ivindex-go/pkg/server/sources"
)

var apiNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeProvider struct {
	updates map[string]engine.Update
	states  map[string]index.IndexState
	srcs    []sources.Source
}

func (f *fakeProvider) Latest(u string) (engine.Update, bool) {
	upd, ok := f.updates[u]
	return upd, ok
}

func (f *fakeProvider) LatestAll() map[string]engine.Update { return f.updates }

func (f *fakeProvider) State(u string) (index.IndexState, bool) {
	s, ok := f.states[u]
	return s, ok
}

func (f *fakeProvider) Underlyings() []string { return []string{"BTC", "ETH"} }

func (f *fakeProvider) Sources() []sources.Source { return f.srcs }

func newFakeProvider() *fakeProvider {
	var state index.IndexState
	for i, raw := range []float64{0.36, 0.25, 0.49} {
		state = state.Advance(raw, 0.5, apiNow.Add(time.Duration(i)*time.Minute), 10)
	}
	return &fakeProvider{
		updates: map[string]engine.Update{
			"BTC": {
				CycleID:    "c-1",
				Underlying: "BTC",
				Timestamp:  apiNow,
				Value:      55.123456,
				Sigma2Raw:  0.31,
				Sigma2:     0.30386,
				Method:     "median",
				Sources:    []string{"deribit", "okx"},
				Terms: map[string]index.TermResult{
					"deribit": {Sigma2Raw: 0.31, WeightNear: 0.4, WeightNext: 0.6},
				},
				Rates: []index.RatePoint{{Expiry: apiNow.Add(24 * time.Hour), Rate: 0.05}},
			},
		},
		states: map[string]index.IndexState{"BTC": state},
	}
}

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandleIndex(t *testing.T) {
	s := NewServer(":0", newFakeProvider(), nil)

	rec := serve(t, s, "/v1/index/btc")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp IndexResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "BTC", resp.Underlying)
	assert.Equal(t, "55.1235", resp.Value.String())
	assert.Equal(t, "0.31", resp.Sigma2Raw.String())
	assert.Equal(t, "c-1", resp.CycleID)
	assert.Equal(t, []string{"deribit", "okx"}, resp.Sources)
}

func TestHandleIndex_NotFound(t *testing.T) {
	s := NewServer(":0", newFakeProvider(), nil)

	for _, path := range []string{"/v1/index/ETH", "/v1/index/ETH/terms", "/v1/index/ETH/history"} {
		rec := serve(t, s, path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "no index for ETH")
	}
}

func TestHandleIndexAll(t *testing.T) {
	s := NewServer(":0", newFakeProvider(), nil)

	rec := serve(t, s, "/v1/index")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []IndexResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "BTC", resp[0].Underlying)
}

func TestHandleTerms(t *testing.T) {
	s := NewServer(":0", newFakeProvider(), nil)

	rec := serve(t, s, "/v1/index/BTC/terms")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TermsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp.Terms, "deribit")
	assert.Equal(t, 0.4, resp.Terms["deribit"].WeightNear)
	require.Len(t, resp.Rates, 1)
	assert.Equal(t, 0.05, resp.Rates[0].Rate)
}

func TestHandleHistory(t *testing.T) {
	s := NewServer(":0", newFakeProvider(), nil)

	tests := []struct {
		name   string
		path   string
		status int
		points int
	}{
		{name: "all", path: "/v1/index/BTC/history", status: http.StatusOK, points: 3},
		{name: "limited", path: "/v1/index/BTC/history?limit=2", status: http.StatusOK, points: 2},
		{name: "limit above size", path: "/v1/index/BTC/history?limit=50", status: http.StatusOK, points: 3},
		{name: "bad limit", path: "/v1/index/BTC/history?limit=x", status: http.StatusBadRequest},
		{name: "zero limit", path: "/v1/index/BTC/history?limit=0", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, s, tt.path)
			require.Equal(t, tt.status, rec.Code)
			if tt.status != http.StatusOK {
				return
			}
			var resp []HistoryPoint
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.Len(t, resp, tt.points)
			assert.Equal(t, apiNow.Add(2*time.Minute), resp[len(resp)-1].Timestamp)
		})
	}
}

func TestHandleHealth(t *testing.T) {
	healthy := sources.NewBaseSource("deribit", sources.SourceTypeCEX, []string{"BTC"}, nil, sources.HTTPOptions{})
	healthy.SetHealthy(true)
	p := newFakeProvider()
	p.srcs = []sources.Source{&stubSource{healthy}}

	s := NewServer(":0", p, nil)
	rec := serve(t, s, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Sources, 1)
	assert.True(t, resp.Sources[0].Healthy)

	unhealthy := sources.NewBaseSource("okx", sources.SourceTypeCEX, []string{"BTC"}, nil, sources.HTTPOptions{})
	p.srcs = append(p.srcs, &stubSource{unhealthy})
	rec = serve(t, s, "/health")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
}

func TestMethodNotAllowed(t *testing.T) {
	s := NewServer(":0", newFakeProvider(), nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/index", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type stubSource struct {
	*sources.BaseSource
}

func (s *stubSource) Initialize(ctx context.Context) error { return nil }

func (s *stubSource) FetchSnapshot(ctx context.Context, underlying string) (index.Snapshot, error) {
	return index.Snapshot{}, nil
}

func (s *stubSource) Stop() error { return nil }
