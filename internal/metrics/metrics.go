package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-request-guard/internal/ratelimit"
)

const namespace = "request_guard"

// Metrics owns a private registry so several instances (tests, servers) can
// coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	decisionsTotal     *prometheus.CounterVec
	rateLimitTotal     *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "governance_decisions_total",
			Help:      "Governance decisions by outcome and denial code.",
		}, []string{"outcome", "code"}),
		rateLimitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_checks_total",
			Help:      "Rate limit checks by limiter and result.",
		}, []string{"limiter", "result"}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Rejected request bodies by schema.",
		}, []string{"schema"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestDuration,
		m.decisionsTotal,
		m.rateLimitTotal,
		m.validationFailures,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRequest(method string, route string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) ObserveDecision(allowed bool, code string) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
		code = ""
	}
	m.decisionsTotal.WithLabelValues(outcome, code).Inc()
}

func (m *Metrics) ObserveRateLimit(limiter string, result ratelimit.Result) {
	label := "allowed"
	switch {
	case result.Skipped:
		label = "skipped"
	case result.Degraded:
		label = "degraded"
	case !result.Allowed:
		label = "limited"
	}
	m.rateLimitTotal.WithLabelValues(limiter, label).Inc()
}

func (m *Metrics) ObserveValidationFailure(schema string) {
	m.validationFailures.WithLabelValues(schema).Inc()
}
