// Package metrics holds the gateway's Prometheus collectors. Everything is
// registered on a private registry so tests can build as many instances as
// they like.
package metrics

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reverify results.
const (
	ReverifyOK          = "ok"
	ReverifyQuarantined = "quarantined"
	ReverifySkipped     = "skipped"
	ReverifyError       = "error"
)

type Metrics struct {
	decisions        *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec

	auditOverflow   prometheus.Counter
	auditBuffered   prometheus.Gauge
	auditSinkErrors prometheus.Counter

	modelTrusted prometheus.Gauge
	reverify     *prometheus.CounterVec

	quotaRemaining     prometheus.Histogram
	validationFailures prometheus.Counter
	predictions        prometheus.Counter

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	buildInfo *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates the collectors and registers them, along with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_decisions_total",
				Help: "Dispatcher decisions by outcome.",
			},
			[]string{"decision"},
		),
		decisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_decision_duration_seconds",
				Help:    "Time from request receipt to decision.",
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"decision"},
		),

		auditOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_audit_overflow_total",
			Help: "Audit events dropped because the buffer was full.",
		}),
		auditBuffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_audit_buffered",
			Help: "Audit events waiting to be written.",
		}),
		auditSinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_audit_sink_errors_total",
			Help: "Failed audit sink writes.",
		}),

		modelTrusted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_model_trusted",
			Help: "1 when the served model artifact is trusted.",
		}),
		reverify: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_model_reverify_total",
				Help: "Artifact re-verification runs by result.",
			},
			[]string{"result"},
		),

		quotaRemaining: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_quota_remaining",
			Help:    "Remaining quota reported to admitted and denied callers.",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		validationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_validation_failures_total",
			Help: "Requests rejected for invalid input.",
		}),
		predictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_predictions_total",
			Help: "Predictions served.",
		}),

		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "build_info",
				Help: "Gateway build information.",
			},
			[]string{"version"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.decisions,
		m.decisionDuration,
		m.auditOverflow,
		m.auditBuffered,
		m.auditSinkErrors,
		m.modelTrusted,
		m.reverify,
		m.quotaRemaining,
		m.validationFailures,
		m.predictions,
		m.httpInFlight,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.buildInfo,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Pre-create one series per decision so dashboards see zeros.
	for _, d := range domain.Decisions {
		m.decisions.WithLabelValues(string(d))
	}

	return m
}

func (m *Metrics) RecordDecision(d domain.Decision, elapsed time.Duration) {
	m.decisions.WithLabelValues(string(d)).Inc()
	m.decisionDuration.WithLabelValues(string(d)).Observe(elapsed.Seconds())
}

func (m *Metrics) AuditOverflow()          { m.auditOverflow.Inc() }
func (m *Metrics) AuditSinkError()         { m.auditSinkErrors.Inc() }
func (m *Metrics) SetAuditBuffered(n int)  { m.auditBuffered.Set(float64(n)) }
func (m *Metrics) ValidationFailure()      { m.validationFailures.Inc() }
func (m *Metrics) PredictionServed()       { m.predictions.Inc() }
func (m *Metrics) RecordReverify(r string) { m.reverify.WithLabelValues(r).Inc() }

func (m *Metrics) ObserveQuotaRemaining(n int64) { m.quotaRemaining.Observe(float64(n)) }

func (m *Metrics) SetModelTrusted(trusted bool) {
	v := 0.0
	if trusted {
		v = 1
	}
	m.modelTrusted.Set(v)
}

// SetBuildInfo exposes build_info{version} 1.
func (m *Metrics) SetBuildInfo(version string) {
	m.buildInfo.Reset()
	m.buildInfo.WithLabelValues(version).Set(1)
}

// Handler serves the exposition format for the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
