package obs

import (
	"net/http"
	"strconv"
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

	authDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entgate_auth_decisions_total",
			Help: "Authorization decisions by access kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	scopeApplications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entgate_scope_applications_total",
			Help: "Recursive filter engine applications by model.",
		},
		[]string{"model"},
	)

	sessionsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "entgate_sessions_issued_total",
		Help: "Sessions issued after successful credential verification.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		authDecisions,
		scopeApplications,
		sessionsIssued,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// AuthDecision records an allow/deny outcome for an access kind.
func AuthDecision(kind string, allowed bool) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	authDecisions.WithLabelValues(kind, outcome).Inc()
}

// ScopeApplied records one filter engine application for a model.
func ScopeApplied(model string) {
	scopeApplications.WithLabelValues(model).Inc()
}

// SessionIssued records one successful sign-in.
func SessionIssued() {
	sessionsIssued.Inc()
}

// Instrument wraps an HTTP handler with RPS/latency/in-flight metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
