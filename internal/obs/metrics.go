package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
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

	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cambria_authz_decisions_total",
			Help: "Permission checks by outcome.",
		},
		[]string{"result"},
	)

	resetCodeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cambria_reset_codes_total",
			Help: "Password reset code lifecycle events.",
		},
		[]string{"event"},
	)

	sheetExtractions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cambria_sheet_extractions_total",
			Help: "Worksheet extractions by selected strategy.",
		},
		[]string{"strategy"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cambria_ready",
		Help: "1 when the service passed its last readiness check.",
	})

	initOnce sync.Once
)

// Init registers the service metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			authzDecisions, resetCodeEvents, sheetExtractions, ready,
		)
	})
}

// Handler exposes the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAuthz counts a permission decision.
func ObserveAuthz(allowed bool) {
	if allowed {
		authzDecisions.WithLabelValues("allow").Inc()
		return
	}
	authzDecisions.WithLabelValues("deny").Inc()
}

// ObserveResetCode counts a reset-code event such as "issued", "redeemed" or "expired".
func ObserveResetCode(event string) {
	resetCodeEvents.WithLabelValues(event).Inc()
}

// ObserveSheetExtraction counts which extraction strategy produced the result.
func ObserveSheetExtraction(strategy string) {
	sheetExtractions.WithLabelValues(strategy).Inc()
}

// SetReady records the outcome of the last readiness probe.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// Instrument measures request counts, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// collections whose second segment is an identifier
var idSegments = map[string]bool{
	"users":       true,
	"permissions": true,
	"clients":     true,
}

// CanonicalPath collapses identifiers so label cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "api" || !idSegments[parts[1]] {
		return path
	}
	parts[2] = ":id"
	if len(parts) == 5 && parts[1] == "users" && parts[3] == "client-permissions" {
		parts[4] = ":code"
	}
	return "/" + strings.Join(parts, "/")
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
