package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors shared by the gateway and the orchestrator.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	IssuanceTotal       *prometheus.CounterVec
	EscalationTotal     *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		IssuanceTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomkey_issuance_total",
				Help: "Token issuance calls by outcome",
			},
			[]string{"outcome"},
		),
		EscalationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomkey_escalation_total",
				Help: "Escalation triggers by outcome",
			},
			[]string{"outcome"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomkey_http_requests_total",
				Help: "HTTP requests by method, path and status",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "roomkey_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		gatherer: reg,
	}
	reg.MustRegister(m.IssuanceTotal, m.EscalationTotal, m.HTTPRequestsTotal, m.HTTPRequestDuration)
	return m
}

func (m *Metrics) IssuanceOutcome(outcome string) {
	if m == nil {
		return
	}
	m.IssuanceTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EscalationOutcome(outcome string) {
	if m == nil {
		return
	}
	m.EscalationTotal.WithLabelValues(outcome).Inc()
}

// Handler serves the registry this Metrics was built on.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency. path is the route label, not the raw URL.
func (m *Metrics) Middleware(path string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
