package prometheus

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "audit_history"

// Metrics bundles prometheus collectors for the ingest pipeline and the HTTP API.
// It implements port.IngestMetrics.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal          *prometheus.CounterVec
	AttemptsTotal      *prometheus.CounterVec
	SectionErrors      prometheus.Counter
	NormalizeDuration  prometheus.Histogram
	Regressions        prometheus.Counter
	RequestsTotal      *prometheus.CounterVec
	RequestDurationSec *prometheus.HistogramVec
	RateLimitDropped   prometheus.Counter
	AuthFailures       prometheus.Counter
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of ingested runs by outcome.",
		}, []string{"outcome"}),
		AttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Total number of report attempts by normalization result.",
		}, []string{"result"}),
		SectionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "section_errors_total",
			Help:      "Total number of detail sections dropped during normalization.",
		}),
		NormalizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "normalize_duration_seconds",
			Help:      "Time spent normalizing all attempts of a run.",
			Buckets:   prometheus.DefBuckets,
		}),
		Regressions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regressions_total",
			Help:      "Total number of detected score regressions.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		RequestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		RateLimitDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_dropped_total",
			Help:      "Total number of requests dropped by rate limiter.",
		}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Total number of rejected bearer tokens.",
		}),
	}

	registry.MustRegister(
		m.RunsTotal,
		m.AttemptsTotal,
		m.SectionErrors,
		m.NormalizeDuration,
		m.Regressions,
		m.RequestsTotal,
		m.RequestDurationSec,
		m.RateLimitDropped,
		m.AuthFailures,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRun(outcome string) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAttempts(normalized, failed int) {
	m.AttemptsTotal.WithLabelValues("normalized").Add(float64(normalized))
	m.AttemptsTotal.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) ObserveSectionErrors(count int) {
	m.SectionErrors.Add(float64(count))
}

func (m *Metrics) ObserveNormalizeDuration(d time.Duration) {
	m.NormalizeDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveRegression() {
	m.Regressions.Inc()
}

// OnRateLimited and OnAuthFailure satisfy the middleware hooks
func (m *Metrics) OnRateLimited() { m.RateLimitDropped.Inc() }

func (m *Metrics) OnAuthFailure() { m.AuthFailures.Inc() }

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		route := normalizeRoute(r.URL.Path)
		m.RequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		m.RequestDurationSec.WithLabelValues(route, r.Method, status).Observe(time.Since(startedAt).Seconds())
	})
}

// normalizeRoute keeps label cardinality bounded
func normalizeRoute(path string) string {
	switch {
	case path == "/api/v1/runs", path == "/api/v1/trend", path == "/api/v1/latest",
		path == "/healthz", path == "/readyz", path == "/metrics":
		return path
	case strings.HasPrefix(path, "/api/v1/details/"):
		return "/api/v1/details/{id}"
	case strings.HasPrefix(path, "/api/"):
		return "/api/*"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *statusRecorder) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
