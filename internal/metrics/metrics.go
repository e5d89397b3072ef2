// Package metrics provides Prometheus instrumentation for the trade engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SubmissionsTotal counts trade submissions by path (hit, miss, anonymous).
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gm_trade_submissions_total",
		Help: "Total number of graded trade submissions",
	}, []string{"path"})

	// GradesTotal counts grades by status and sport.
	GradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gm_trade_grades_total",
		Help: "Total number of grades returned",
	}, []string{"status", "sport"})

	// DangerousGrades counts grades flagged as dangerous.
	DangerousGrades = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gm_trade_dangerous_grades_total",
		Help: "Grades flagged as dangerous for at least one participant",
	})

	// SubmissionFailures counts failed submissions by error kind.
	SubmissionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gm_trade_submission_failures_total",
		Help: "Failed trade submissions",
	}, []string{"kind"})

	// SubmissionLatency tracks end-to-end submission latency by path.
	SubmissionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gm_trade_submission_latency_seconds",
		Help:    "Trade submission latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})

	// GraderLatency tracks grader call latency by grader and outcome.
	GraderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gm_trade_grader_latency_seconds",
		Help:    "Grader call latency in seconds",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"grader", "outcome"})

	// EventPublishFailures counts grade events that could not be published.
	EventPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gm_trade_event_publish_failures_total",
		Help: "Grade events that failed to publish",
	}, []string{"sink"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gm_trade_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gm_trade_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gm_trade_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern labels requests by chi route pattern so share codes and user
// IDs do not explode label cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Hijack lets the websocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
