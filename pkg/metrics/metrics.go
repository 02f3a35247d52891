// Package metrics provides Prometheus metrics for the index service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// IndexValue is the published index value per underlying.
	IndexValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ivindex_value",
			Help: "Published implied volatility index value",
		},
		[]string{"underlying"},
	)

	// IndexVariance is the raw and smoothed variance per underlying.
	IndexVariance = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ivindex_variance",
			Help: "Index variance before (raw) and after (smoothed) EWMA",
		},
		[]string{"underlying", "kind"},
	)

	// TermVariance is the implied variance of the near and next term buckets.
	TermVariance = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ivindex_term_variance",
			Help: "Implied variance per term bucket and source",
		},
		[]string{"underlying", "source", "term"},
	)

	// QuotesTotal counts quotes by pipeline outcome.
	QuotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ivindex_quotes_total",
			Help: "Quotes seen per source by outcome (accepted, rejected, parse_error, missing_data)",
		},
		[]string{"source", "outcome"},
	)

	// CycleDuration is a histogram of refresh cycle durations.
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ivindex_cycle_duration_seconds",
			Help:    "Duration of index refresh cycles",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CycleFailuresTotal counts cycles that carried the previous value forward.
	CycleFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ivindex_cycle_failures_total",
			Help: "Cycles where an underlying kept its previous value",
		},
		[]string{"underlying", "reason"},
	)

	// AggregationDuration is a histogram of cross-source aggregation duration.
	AggregationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ivindex_aggregation_duration_seconds",
			Help:    "Duration of variance aggregation operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// OutlierRejectionsTotal is a counter of rejected source variances.
	OutlierRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ivindex_outlier_rejections_total",
			Help: "Total number of source variances rejected as outliers",
		},
		[]string{"underlying", "source"},
	)

	// SourceHealth is a gauge of the health status of market data sources.
	SourceHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ivindex_source_health",
			Help: "Health status of market data sources (1=healthy, 0=unhealthy)",
		},
		[]string{"source", "type"},
	)

	// SourceLastUpdate is a gauge of the last successful fetch from sources.
	SourceLastUpdate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ivindex_source_last_update_timestamp",
			Help: "Unix timestamp of last successful snapshot from source",
		},
		[]string{"source"},
	)

	// SourceFetchDuration is a histogram of snapshot fetch latencies.
	SourceFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ivindex_source_fetch_duration_seconds",
			Help:    "Snapshot fetch latencies per source",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"source", "status"},
	)

	// StorageCommitsTotal counts sink commits.
	StorageCommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ivindex_storage_commits_total",
			Help: "Storage sink commits by status",
		},
		[]string{"sink", "status"},
	)

	// HTTPRequestsTotal is a counter of total HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ivindex_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of HTTP request latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ivindex_http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint"},
	)

	// WebSocketClients is the number of connected stream clients.
	WebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ivindex_websocket_clients",
			Help: "Connected WebSocket clients",
		},
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default Prometheus registry.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			IndexValue,
			IndexVariance,
			TermVariance,
			QuotesTotal,
			CycleDuration,
			CycleFailuresTotal,
			AggregationDuration,
			OutlierRejectionsTotal,
			SourceHealth,
			SourceLastUpdate,
			SourceFetchDuration,
			StorageCommitsTotal,
			HTTPRequestsTotal,
			HTTPRequestDuration,
			WebSocketClients,
		)
	})
}

// NewServer returns the metrics HTTP server for addr and path.
func NewServer(addr, path string) *http.Server {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// RecordIndex records the published value and variances of an underlying.
func RecordIndex(underlying string, value, rawVariance, smoothedVariance float64) {
	IndexValue.WithLabelValues(underlying).Set(value)
	IndexVariance.WithLabelValues(underlying, "raw").Set(rawVariance)
	IndexVariance.WithLabelValues(underlying, "smoothed").Set(smoothedVariance)
}

// RecordTermVariance records the implied variance of a term bucket.
func RecordTermVariance(underlying, source, term string, sigma2 float64) {
	TermVariance.WithLabelValues(underlying, source, term).Set(sigma2)
}

// RecordQuotes adds n quotes with the given outcome.
func RecordQuotes(source, outcome string, n int) {
	if n <= 0 {
		return
	}
	QuotesTotal.WithLabelValues(source, outcome).Add(float64(n))
}

// RecordCycle records a refresh cycle duration.
func RecordCycle(duration time.Duration) {
	CycleDuration.Observe(duration.Seconds())
}

// RecordCycleFailure records an underlying that kept its previous value.
func RecordCycleFailure(underlying, reason string) {
	CycleFailuresTotal.WithLabelValues(underlying, reason).Inc()
}

// RecordAggregation records a variance aggregation operation.
func RecordAggregation(method string, duration time.Duration) {
	AggregationDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordOutlierRejection records an outlier rejection.
func RecordOutlierRejection(underlying, source string) {
	OutlierRejectionsTotal.WithLabelValues(underlying, source).Inc()
}

// RecordSourceHealth records the health status of a source.
func RecordSourceHealth(source, sourceType string, healthy bool) {
	val := 0.0
	if healthy {
		val = 1.0
	}
	SourceHealth.WithLabelValues(source, sourceType).Set(val)
}

// RecordSourceFetch records a snapshot fetch and, on success, the update
// timestamp.
func RecordSourceFetch(source string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	} else {
		SourceLastUpdate.WithLabelValues(source).SetToCurrentTime()
	}
	SourceFetchDuration.WithLabelValues(source, status).Observe(duration.Seconds())
}

// RecordStorageCommit records a sink commit.
func RecordStorageCommit(sink string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	StorageCommitsTotal.WithLabelValues(sink, status).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// SetWebSocketClients sets the connected client gauge.
func SetWebSocketClients(n int) {
	WebSocketClients.Set(float64(n))
}
