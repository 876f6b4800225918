// Package metrics holds the Prometheus collectors exported on METRICS_ADDR.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediastream_http_requests_total",
			Help: "HTTP requests by route pattern, method and status",
		},
		[]string{"route", "method", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediastream_http_request_duration_seconds",
			Help:    "Time to first byte plus body for HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	StreamBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediastream_stream_bytes_total",
			Help: "Media bytes written to streaming clients",
		},
	)

	StreamResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediastream_stream_responses_total",
			Help: "Streaming responses by status code",
		},
		[]string{"status"},
	)

	ViewsLogged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediastream_views_logged_total",
			Help: "View log entries appended",
		},
	)

	ViewLogFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediastream_view_log_failures_total",
			Help: "Asynchronous view log attempts that failed or were dropped",
		},
		[]string{"reason"}, // "error", "queue_full", "closed"
	)

	AnalyticsCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediastream_analytics_cache_total",
			Help: "Analytics cache lookups by status",
		},
		[]string{"status"}, // HIT, MISS, SKIP
	)

	CacheInvalidationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediastream_analytics_cache_invalidation_failures_total",
			Help: "Cache invalidations swallowed because the backend failed",
		},
	)

	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediastream_rate_limit_decisions_total",
			Help: "Rate limiter outcomes",
		},
		[]string{"outcome"}, // "allowed", "limited", "fail_open"
	)
)

// Handler serves the default registry in Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency keyed by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rw.status)).Inc()
		HTTPDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
