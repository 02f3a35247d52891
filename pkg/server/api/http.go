// Package api provides HTTP and WebSocket API endpoints for the index server.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"github.com/StrathCole/ivindex-go/pkg/index"
	"github.com/StrathCole/ivindex-go/pkg/logging"
	"github.com/StrathCole/ivindex-go/pkg/metrics"
	"github.com/StrathCole/ivindex-go/pkg/server/engine"
	"github.com/StrathCole/ivindex-go/pkg/server/sources"
	"github.com/StrathCole/ivindex-go/pkg/version"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Provider is the read side of the engine.
type Provider interface {
	Latest(underlying string) (engine.Update, bool)
	LatestAll() map[string]engine.Update
	State(underlying string) (index.IndexState, bool)
	Underlyings() []string
	Sources() []sources.Source
}

// Server represents the HTTP API server.
type Server struct {
	addr     string
	provider Provider
	server   *http.Server
	logger   *logging.Logger
	wsServer *WebSocketServer // Optional, mounted at /ws on the API port
	certFile string
	keyFile  string
}

// IndexResponse is the published value of one underlying.
type IndexResponse struct {
	Underlying string          `json:"underlying"`
	Value      decimal.Decimal `json:"value"`
	Sigma2     decimal.Decimal `json:"sigma2"`
	Sigma2Raw  decimal.Decimal `json:"sigma2_raw"`
	Timestamp  time.Time       `json:"timestamp"`
	CycleID    string          `json:"cycle_id"`
	Method     string          `json:"method"`
	Sources    []string        `json:"sources"`
}

// TermsResponse holds the per-source term diagnostics of one underlying.
type TermsResponse struct {
	Underlying string                      `json:"underlying"`
	Timestamp  time.Time                   `json:"timestamp"`
	Terms      map[string]index.TermResult `json:"terms"`
	Rates      []index.RatePoint           `json:"rates"`
}

// HistoryPoint is one entry of the history endpoint.
type HistoryPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
	Raw       decimal.Decimal `json:"raw"`
	Smoothed  decimal.Decimal `json:"smoothed"`
}

// SourceStatus reports the health of one source.
type SourceStatus struct {
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Healthy    bool      `json:"healthy"`
	LastUpdate time.Time `json:"last_update"`
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Sources []SourceStatus `json:"sources"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ValuePlaces is the number of decimal places published for index values.
const ValuePlaces = 4

// NewServer creates a new HTTP API server.
func NewServer(addr string, provider Provider, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Server{
		addr:     addr,
		provider: provider,
		logger:   logger,
	}
}

// SetTLS serves HTTPS with the given certificate and key files.
func (s *Server) SetTLS(certFile, keyFile string) {
	s.certFile = certFile
	s.keyFile = keyFile
}

// SetWebSocketServer mounts the stream on the API router.
func (s *Server) SetWebSocketServer(ws *WebSocketServer) {
	s.wsServer = ws
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.instrument)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/index", s.handleIndexAll).Methods(http.MethodGet)
	r.HandleFunc("/v1/index/{underlying}", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/v1/index/{underlying}/terms", s.handleTerms).Methods(http.MethodGet)
	r.HandleFunc("/v1/index/{underlying}/history", s.handleHistory).Methods(http.MethodGet)
	if s.wsServer != nil {
		r.HandleFunc("/ws", s.wsServer.handleWebSocket)
	}
	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var err error
	if s.certFile != "" {
		s.logger.Info("Starting HTTPS server", "addr", s.addr)
		err = s.server.ListenAndServeTLS(s.certFile, s.keyFile)
	} else {
		s.logger.Info("Starting HTTP server", "addr", s.addr)
		err = s.server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.logger.Info("Stopping HTTP server")
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleHealth handles /health endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok", Version: version.Version}
	for _, src := range s.provider.Sources() {
		healthy := src.IsHealthy()
		if !healthy {
			resp.Status = "degraded"
		}
		resp.Sources = append(resp.Sources, SourceStatus{
			Name:       src.Name(),
			Type:       string(src.Type()),
			Healthy:    healthy,
			LastUpdate: src.LastUpdate(),
		})
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleIndexAll handles /v1/index.
func (s *Server) handleIndexAll(w http.ResponseWriter, _ *http.Request) {
	latest := s.provider.LatestAll()
	out := make([]IndexResponse, 0, len(latest))
	for _, u := range s.provider.Underlyings() {
		if upd, ok := latest[u]; ok {
			out = append(out, toIndexResponse(upd))
		}
	}
	s.sendJSON(w, http.StatusOK, out)
}

// handleIndex handles /v1/index/{underlying}.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	upd, ok := s.latest(w, r)
	if !ok {
		return
	}
	s.sendJSON(w, http.StatusOK, toIndexResponse(upd))
}

// handleTerms handles /v1/index/{underlying}/terms.
func (s *Server) handleTerms(w http.ResponseWriter, r *http.Request) {
	upd, ok := s.latest(w, r)
	if !ok {
		return
	}
	s.sendJSON(w, http.StatusOK, TermsResponse{
		Underlying: upd.Underlying,
		Timestamp:  upd.Timestamp,
		Terms:      upd.Terms,
		Rates:      upd.Rates,
	})
}

// handleHistory handles /v1/index/{underlying}/history?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	underlying := strings.ToUpper(mux.Vars(r)["underlying"])
	state, ok := s.provider.State(underlying)
	if !ok {
		s.sendError(w, http.StatusNotFound, fmt.Sprintf("no index for %s", underlying))
		return
	}

	points := state.History
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.sendError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if limit < len(points) {
			points = points[len(points)-limit:]
		}
	}

	out := make([]HistoryPoint, 0, len(points))
	for _, p := range points {
		out = append(out, HistoryPoint{
			Timestamp: p.Timestamp,
			Value:     decimal.NewFromFloat(p.Value).Round(ValuePlaces),
			Raw:       decimal.NewFromFloat(p.Raw),
			Smoothed:  decimal.NewFromFloat(p.Smoothed),
		})
	}
	s.sendJSON(w, http.StatusOK, out)
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request) (engine.Update, bool) {
	underlying := strings.ToUpper(mux.Vars(r)["underlying"])
	upd, ok := s.provider.Latest(underlying)
	if !ok {
		s.sendError(w, http.StatusNotFound, fmt.Sprintf("no index for %s", underlying))
	}
	return upd, ok
}

func toIndexResponse(upd engine.Update) IndexResponse {
	return IndexResponse{
		Underlying: upd.Underlying,
		Value:      decimal.NewFromFloat(upd.Value).Round(ValuePlaces),
		Sigma2:     decimal.NewFromFloat(upd.Sigma2),
		Sigma2Raw:  decimal.NewFromFloat(upd.Sigma2Raw),
		Timestamp:  upd.Timestamp,
		CycleID:    upd.CycleID,
		Method:     upd.Method,
		Sources:    upd.Sources,
	}
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request count and latency per route template.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		if endpoint == "/ws" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.RecordHTTPRequest(endpoint, strconv.Itoa(rec.status), time.Since(start))
	})
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, msg string) {
	s.sendJSON(w, status, errorResponse{Error: msg})
}
