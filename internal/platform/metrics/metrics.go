package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the navigation guard.
// It satisfies playback.Recorder.
type Metrics struct {
	registry       *prometheus.Registry
	requestsTotal  prometheus.Counter
	errorsTotal    prometheus.Counter
	gateDecisions  *prometheus.CounterVec
	driftsTotal    prometheus.Counter
	recoveries     *prometheus.CounterVec
	loadFailures   prometheus.Counter
	eventsDropped  prometheus.Counter
	activeSessions prometheus.Gauge
}

// New creates and registers Prometheus metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navguard_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navguard_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	gateDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "navguard_gate_decisions_total",
		Help: "Pre-navigation gate decisions by outcome and URL classification",
	}, []string{"decision", "classification"})
	driftsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navguard_drifts_total",
		Help: "Settled navigations that left the trusted destination",
	})
	recoveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "navguard_recoveries_total",
		Help: "Recovery steps by outcome (scheduled, reloaded, exhausted, cancelled)",
	}, []string{"outcome"})
	loadFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navguard_load_failures_total",
		Help: "Transient load failures of trusted destinations",
	})
	eventsDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navguard_events_dropped_total",
		Help: "Session events dropped because a subscriber was too slow",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "navguard_active_sessions",
		Help: "Number of playback sessions that are not closed",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		gateDecisions,
		driftsTotal,
		recoveries,
		loadFailures,
		eventsDropped,
		activeSessions,
	)

	return &Metrics{
		registry:       registry,
		requestsTotal:  requestsTotal,
		errorsTotal:    errorsTotal,
		gateDecisions:  gateDecisions,
		driftsTotal:    driftsTotal,
		recoveries:     recoveries,
		loadFailures:   loadFailures,
		eventsDropped:  eventsDropped,
		activeSessions: activeSessions,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// GateDecision counts one gate decision.
func (m *Metrics) GateDecision(allowed bool, class string) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.gateDecisions.WithLabelValues(decision, class).Inc()
}

// Drift counts one detected drift.
func (m *Metrics) Drift() {
	m.driftsTotal.Inc()
}

// Recovery counts one recovery step.
func (m *Metrics) Recovery(outcome string) {
	m.recoveries.WithLabelValues(outcome).Inc()
}

// LoadFailure counts one transient load failure.
func (m *Metrics) LoadFailure() {
	m.loadFailures.Inc()
}

// EventDropped counts one event lost to a slow subscriber.
func (m *Metrics) EventDropped() {
	m.eventsDropped.Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
