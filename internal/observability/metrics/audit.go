package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PersistOutcome is what the audit worker did with one delivered contract. A duplicate is a
// redelivery whose message_id was already stored.
type PersistOutcome string

const (
	OutcomePersisted PersistOutcome = "persisted"
	OutcomeDuplicate PersistOutcome = "duplicate"
	OutcomeRejected  PersistOutcome = "rejected"
	OutcomeFailed    PersistOutcome = "failed"
)

// AuditMetrics tracks the audit worker. Each contract is counted once under its persona and outcome.
type AuditMetrics struct {
	registry *prometheus.Registry

	contracts   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	violations  *prometheus.CounterVec
	inFlight    prometheus.Gauge
	deliveryLag *prometheus.HistogramVec
}

func NewAuditMetrics(service string) *AuditMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	contracts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "paa",
		Subsystem:   "audit",
		Name:        "contracts_total",
		Help:        "Delivered answer contracts by persona and persist outcome.",
		ConstLabels: constLabels,
	}, []string{"persona", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   "paa",
		Subsystem:   "audit",
		Name:        "persist_duration_seconds",
		Help:        "Time from delivery to outcome, including re-validation.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10},
		ConstLabels: constLabels,
	}, []string{"outcome"})
	violations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "paa",
		Subsystem:   "audit",
		Name:        "rejected_violations_total",
		Help:        "Violations found when re-validating delivered contracts.",
		ConstLabels: constLabels,
	}, []string{"persona"})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "paa",
		Subsystem:   "audit",
		Name:        "contracts_in_flight",
		Help:        "Contracts currently being re-validated or written.",
		ConstLabels: constLabels,
	})
	deliveryLag := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   "paa",
		Subsystem:   "audit",
		Name:        "delivery_lag_seconds",
		Help:        "Delay between provenance.generated_at and delivery to the worker.",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	}, []string{"persona"})

	registry.MustRegister(contracts, duration, violations, inFlight, deliveryLag)

	return &AuditMetrics{
		registry:    registry,
		contracts:   contracts,
		duration:    duration,
		violations:  violations,
		inFlight:    inFlight,
		deliveryLag: deliveryLag,
	}
}

func (m *AuditMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Delivered records the delivery lag of a contract and marks it in flight. Every call must be
// paired with Settled. A generated_at in the future is not observed as lag.
func (m *AuditMetrics) Delivered(persona string, lag time.Duration) {
	m.inFlight.Inc()
	if lag >= 0 {
		m.deliveryLag.WithLabelValues(personaLabel(persona)).Observe(lag.Seconds())
	}
}

// Settled records the final outcome of a delivered contract.
func (m *AuditMetrics) Settled(persona string, outcome PersistOutcome, violations int, elapsed time.Duration) {
	m.inFlight.Dec()
	persona = personaLabel(persona)
	m.contracts.WithLabelValues(persona, string(outcome)).Inc()
	m.duration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
	if outcome == OutcomeRejected && violations > 0 {
		m.violations.WithLabelValues(persona).Add(float64(violations))
	}
}

func personaLabel(persona string) string {
	if persona == "" {
		return "unknown"
	}
	return persona
}
