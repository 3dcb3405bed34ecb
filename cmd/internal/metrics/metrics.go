// Package metrics exposes prometheus instrumentation for the realtime core.
//
// All recording methods are nil-safe so components can hold an optional
// *Metrics without guarding every call site.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the core's collectors behind a private registry.
type Metrics struct {
	registry *prometheus.Registry

	activeSessions      prometheus.Gauge
	registrations       prometheus.Counter
	evictions           prometheus.Counter
	revocations         prometheus.Counter
	presenceTransitions *prometheus.CounterVec
	envelopesRouted     prometheus.Counter
	dispatches          *prometheus.CounterVec
	typingSignals       prometheus.Counter
}

// New constructs a Metrics instance with its own registry, including the
// standard Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ripple",
			Name:      "active_sessions",
			Help:      "Number of live sessions currently registered.",
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ripple",
			Name:      "session_registrations_total",
			Help:      "Total successful session registrations.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ripple",
			Name:      "session_evictions_total",
			Help:      "Total sessions evicted by the per-principal cap.",
		}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ripple",
			Name:      "credential_revocations_total",
			Help:      "Total credential fingerprints added to the revocation set.",
		}),
		presenceTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ripple",
			Name:      "presence_transitions_total",
			Help:      "Total presence edge transitions broadcast.",
		}, []string{"state"}),
		envelopesRouted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ripple",
			Name:      "envelopes_routed_total",
			Help:      "Total message envelopes accepted by the delivery router.",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ripple",
			Name:      "session_dispatches_total",
			Help:      "Total per-session dispatch attempts by outcome.",
		}, []string{"outcome"}),
		typingSignals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ripple",
			Name:      "typing_signals_total",
			Help:      "Total typing indicator signals relayed.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.activeSessions,
		m.registrations,
		m.evictions,
		m.revocations,
		m.presenceTransitions,
		m.envelopesRouted,
		m.dispatches,
		m.typingSignals,
	)

	return m
}

// Handler serves the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SessionRegistered records one admitted session.
func (m *Metrics) SessionRegistered() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
	m.registrations.Inc()
}

// SessionRemoved records one removed session (any reason).
func (m *Metrics) SessionRemoved() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// SessionEvicted records one cap-triggered eviction.
func (m *Metrics) SessionEvicted() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}

// CredentialRevoked records one revocation entry.
func (m *Metrics) CredentialRevoked() {
	if m == nil {
		return
	}
	m.revocations.Inc()
}

// PresenceTransition records one broadcast online/offline edge.
func (m *Metrics) PresenceTransition(online bool) {
	if m == nil {
		return
	}
	state := "offline"
	if online {
		state = "online"
	}
	m.presenceTransitions.WithLabelValues(state).Inc()
}

// EnvelopeRouted records one accepted envelope.
func (m *Metrics) EnvelopeRouted() {
	if m == nil {
		return
	}
	m.envelopesRouted.Inc()
}

// Dispatch records one per-session dispatch attempt.
func (m *Metrics) Dispatch(ok bool) {
	if m == nil {
		return
	}
	outcome := "fail"
	if ok {
		outcome = "ok"
	}
	m.dispatches.WithLabelValues(outcome).Inc()
}

// TypingSignal records one relayed typing indicator.
func (m *Metrics) TypingSignal() {
	if m == nil {
		return
	}
	m.typingSignals.Inc()
}
