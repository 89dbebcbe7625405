package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics shared by every handler.
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
)

// Auth and agent-sync outcome metrics.
var (
	authLoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by account variant and result.",
		},
		[]string{"variant", "result"},
	)

	authRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_refreshes_total",
			Help: "Refresh-token exchanges by result.",
		},
		[]string{"result"},
	)

	agentDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_deliveries_total",
			Help: "Settings pushes to the remote agent by result.",
		},
		[]string{"result"},
	)

	agentDeliveryAttempts = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "agent_delivery_attempts",
		Help:    "HTTP attempts spent per settings push.",
		Buckets: []float64{1, 2, 3, 4, 5},
	})
)

// Init registers all metrics in the default registry. Call once at startup.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		authLoginsTotal, authRefreshesTotal,
		agentDeliveriesTotal, agentDeliveryAttempts,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLogin records a login attempt outcome.
func ObserveLogin(variant, result string) {
	authLoginsTotal.WithLabelValues(variant, result).Inc()
}

// ObserveRefresh records a refresh exchange outcome.
func ObserveRefresh(result string) {
	authRefreshesTotal.WithLabelValues(result).Inc()
}

// ObserveDelivery records one settings push: its final result and how many
// HTTP attempts it consumed.
func ObserveDelivery(result string, attempts int) {
	agentDeliveriesTotal.WithLabelValues(result).Inc()
	agentDeliveryAttempts.Observe(float64(attempts))
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

// knownPaths are the fixed routes recorded verbatim in metric labels.
var knownPaths = map[string]struct{}{
	"/":                     {},
	"/healthz":              {},
	"/readyz":               {},
	"/metrics":              {},
	"/v1/auth/login":        {},
	"/v1/auth/admin/login":  {},
	"/v1/auth/refresh":      {},
	"/v1/auth/logout":       {},
	"/v1/auth/forgot":       {},
	"/v1/auth/admin/forgot": {},
	"/v1/auth/reset":        {},
}

// CanonicalPath maps a request path onto a bounded label set: fixed routes
// pass through, castle identifiers collapse to :id, and everything else
// becomes "other" so path spam cannot inflate metric cardinality.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if _, ok := knownPaths[path]; ok {
		return path
	}
	parts := strings.Split(path, "/")
	if len(parts) >= 4 && parts[1] == "v1" && parts[2] == "castles" && parts[3] != "" {
		switch {
		case len(parts) == 4:
			return "/v1/castles/:id"
		case len(parts) == 5 && parts[4] == "settings":
			return "/v1/castles/:id/settings"
		}
	}
	return "other"
}

// statusWriter captures the response code written by the wrapped handler.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
