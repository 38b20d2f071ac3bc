package usecase

import "time"

// PipelineObserver receives pipeline events for metrics. Implementations must be safe for
// concurrent use; namespace outcomes are reported after the fan-out settles.
type PipelineObserver interface {
	ObserveNamespace(namespace string, err error)
	ObserveRerank(applied, fallback bool)
	ObserveRun(persona string, stats StageTimings, returned int)
	ObserveContract(persona string, valid bool, violations int)
}

// StageTimings are the raw durations behind the integer latency record.
type StageTimings struct {
	Expansion  time.Duration
	Embedding  time.Duration
	Retrieval  time.Duration
	Rerank     time.Duration
	Formatting time.Duration
	Total      time.Duration
}

type NopObserver struct{}

func (NopObserver) ObserveNamespace(string, error) {}
func (NopObserver) ObserveRerank(bool, bool) {}
func (NopObserver) ObserveRun(string, StageTimings, int) {}
func (NopObserver) ObserveContract(string, bool, int) {}
