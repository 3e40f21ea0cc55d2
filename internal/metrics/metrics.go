package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics represents the collection of all Prometheus metrics
type Metrics struct {
	// Standard metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// History and analyzer metrics
	Appends          *prometheus.CounterVec
	Verdicts         *prometheus.CounterVec
	Skipped          *prometheus.CounterVec
	EvaluateDuration prometheus.Histogram
	Records          *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates all metrics and registers them on reg. A nil reg
// selects a fresh private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}

	// Standard HTTP metrics
	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.Appends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benchhist_appends_total",
			Help: "Run records offered to the history store, by outcome",
		},
		[]string{"suite", "result"},
	)

	m.Verdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benchhist_verdicts_total",
			Help: "Comparison verdicts produced by the analyzer",
		},
		[]string{"suite", "verdict"},
	)

	m.Skipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benchhist_skipped_total",
			Help: "Measurements that could not be compared",
		},
		[]string{"suite"},
	)

	m.EvaluateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "benchhist_evaluate_duration_seconds",
			Help:    "Time spent evaluating one run record",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)

	m.Records = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "benchhist_records",
			Help: "Run records held per suite",
		},
		[]string{"suite"},
	)

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.Appends,
		m.Verdicts,
		m.Skipped,
		m.EvaluateDuration,
		m.Records,
	)

	return m
}

// ObserveAppend counts an append attempt. result is "ok", "duplicate",
// "invalid" or "error".
func (m *Metrics) ObserveAppend(suite, result string, records int) {
	m.Appends.WithLabelValues(suite, result).Inc()
	if result == "ok" {
		m.Records.WithLabelValues(suite).Set(float64(records))
	}
}

// ObserveEvaluation records the outcome of one evaluation.
func (m *Metrics) ObserveEvaluation(suite string, verdicts map[string]int, skipped int, took time.Duration) {
	for verdict, n := range verdicts {
		m.Verdicts.WithLabelValues(suite, verdict).Add(float64(n))
	}
	if skipped > 0 {
		m.Skipped.WithLabelValues(suite).Add(float64(skipped))
	}
	m.EvaluateDuration.Observe(took.Seconds())
}

// Middleware for tracking HTTP requests. pattern maps a request to the
// route label so per-suite paths do not explode the label space.
func (m *Metrics) RequestTrackingMiddleware(next http.Handler, pattern func(*http.Request) string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if pattern != nil {
			if p := pattern(r); p != "" {
				path = p
			}
		}

		// Record metrics
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, http.StatusText(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// responseWriter is a wrapper to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Handler returns the Prometheus HTTP handler for the registry the metrics
// were registered on.
func (m *Metrics) Handler() http.Handler {
	if m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
