package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/grounded-archive/internal/core/usecase"
)

// PipelineMetrics implements usecase.PipelineObserver.
type PipelineMetrics struct {
	service string

	namespaceSearches *prometheus.CounterVec
	rerankTotal       *prometheus.CounterVec
	runsTotal         *prometheus.CounterVec
	returnedChunks    *prometheus.HistogramVec
	stageDuration     *prometheus.HistogramVec
	contractsTotal    *prometheus.CounterVec
	violationsTotal   *prometheus.CounterVec
	breakerState      *prometheus.GaugeVec
	breakerChanges    *prometheus.CounterVec
}

var _ usecase.PipelineObserver = (*PipelineMetrics)(nil)

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	namespaceSearches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archive",
			Subsystem: "pipeline",
			Name:      "namespace_searches_total",
			Help:      "Namespace searches by outcome.",
		},
		[]string{"service", "namespace", "status"},
	)
	rerankTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archive",
			Subsystem: "pipeline",
			Name:      "rerank_total",
			Help:      "Rerank passes by outcome.",
		},
		[]string{"service", "status"},
	)
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archive",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Completed retrieval runs by persona.",
		},
		[]string{"service", "persona"},
	)
	returnedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "archive",
			Subsystem: "pipeline",
			Name:      "returned_chunks",
			Help:      "Chunks returned per retrieval run.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "persona"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "archive",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	contractsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archive",
			Subsystem: "contract",
			Name:      "validations_total",
			Help:      "Answer contract validations by outcome.",
		},
		[]string{"service", "persona", "status"},
	)
	violationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archive",
			Subsystem: "contract",
			Name:      "violations_total",
			Help:      "Violations reported by rejected contracts.",
		},
		[]string{"service", "persona"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "archive",
			Subsystem: "pipeline",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)
	breakerChanges := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archive",
			Subsystem: "pipeline",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions.",
		},
		[]string{"service", "operation", "to"},
	)

	registerer.MustRegister(
		namespaceSearches,
		rerankTotal,
		runsTotal,
		returnedChunks,
		stageDuration,
		contractsTotal,
		violationsTotal,
		breakerState,
		breakerChanges,
	)

	return &PipelineMetrics{
		service:           service,
		namespaceSearches: namespaceSearches,
		rerankTotal:       rerankTotal,
		runsTotal:         runsTotal,
		returnedChunks:    returnedChunks,
		stageDuration:     stageDuration,
		contractsTotal:    contractsTotal,
		violationsTotal:   violationsTotal,
		breakerState:      breakerState,
		breakerChanges:    breakerChanges,
	}
}

func (m *PipelineMetrics) ObserveNamespace(namespace string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.namespaceSearches.WithLabelValues(m.service, namespace, status).Inc()
}

func (m *PipelineMetrics) ObserveRerank(applied, fallback bool) {
	status := "skipped"
	switch {
	case applied:
		status = "applied"
	case fallback:
		status = "fallback"
	}
	m.rerankTotal.WithLabelValues(m.service, status).Inc()
}

func (m *PipelineMetrics) ObserveRun(persona string, timings usecase.StageTimings, returned int) {
	m.runsTotal.WithLabelValues(m.service, persona).Inc()
	m.returnedChunks.WithLabelValues(m.service, persona).Observe(float64(returned))

	m.stageDuration.WithLabelValues(m.service, "expansion").Observe(timings.Expansion.Seconds())
	m.stageDuration.WithLabelValues(m.service, "embedding").Observe(timings.Embedding.Seconds())
	m.stageDuration.WithLabelValues(m.service, "retrieval").Observe(timings.Retrieval.Seconds())
	if timings.Rerank > 0 {
		m.stageDuration.WithLabelValues(m.service, "rerank").Observe(timings.Rerank.Seconds())
	}
	m.stageDuration.WithLabelValues(m.service, "formatting").Observe(timings.Formatting.Seconds())
	m.stageDuration.WithLabelValues(m.service, "total").Observe(timings.Total.Seconds())
}

func (m *PipelineMetrics) ObserveContract(persona string, valid bool, violations int) {
	status := "valid"
	if !valid {
		status = "rejected"
	}
	m.contractsTotal.WithLabelValues(m.service, persona, status).Inc()
	if violations > 0 {
		m.violationsTotal.WithLabelValues(m.service, persona).Add(float64(violations))
	}
}

// ObserveBreaker matches resilience.Config.OnStateChange.
func (m *PipelineMetrics) ObserveBreaker(operation, _, to string) {
	var value float64
	switch to {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
	m.breakerChanges.WithLabelValues(m.service, operation, to).Inc()
}
