package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	backendCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "society_backend_calls_total",
			Help: "Calls issued to the society backend, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	backendCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "society_backend_call_duration_seconds",
			Help:    "Society backend call latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Init registers all console metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		backendCallsTotal,
		backendCallDuration,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveBackendCall records one call against the society backend.
// Outcome is "ok", "rejected" (isSuccess=false) or "error" (transport).
func ObserveBackendCall(operation, outcome string, elapsed time.Duration) {
	backendCallsTotal.WithLabelValues(operation, outcome).Inc()
	backendCallDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses resource identifiers so metric cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	replace := func(prefix []string, idIdx int, rest ...string) bool {
		if len(parts) != len(prefix)+1+len(rest) {
			return false
		}
		for i, p := range prefix {
			if parts[i] != p {
				return false
			}
		}
		for i, p := range rest {
			if parts[idIdx+1+i] != p {
				return false
			}
		}
		parts[idIdx] = ":id"
		return true
	}
	switch {
	case replace([]string{"", "v1", "parking", "floors"}, 4),
		replace([]string{"", "v1", "parking", "floors"}, 4, "rows"),
		replace([]string{"", "v1", "parking", "floors"}, 4, "rows", "autofill"),
		replace([]string{"", "v1", "parking", "slots"}, 4),
		replace([]string{"", "v1", "parking", "slots"}, 4, "reassign"),
		replace([]string{"", "v1", "parking", "assignments"}, 4):
	}
	return strings.Join(parts, "/")
}

// statusWriter captures the response code written downstream.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
