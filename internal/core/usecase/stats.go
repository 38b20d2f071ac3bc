package usecase

import (
	"time"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
)

// StatsCollector accumulates counts and stage timings during one run. It only records; nothing in
// the pipeline reads it back before Build.
type StatsCollector struct {
	started time.Time
	timings StageTimings

	retrieved int
	reranked  int

	namespaces     []string
	failed         []string
	filters        []string
	rerankApplied  bool
	rerankFallback bool
}

func NewStatsCollector(started time.Time) *StatsCollector {
	return &StatsCollector{started: started}
}

func (s *StatsCollector) RecordExpansion(d time.Duration) { s.timings.Expansion = d }

func (s *StatsCollector) RecordRetrieval(res AggregateResult, namespaces []string) {
	s.timings.Embedding = res.EmbeddingLatency
	s.timings.Retrieval = res.SearchLatency
	s.retrieved = res.RetrievedCount
	s.namespaces = append([]string(nil), namespaces...)
	s.failed = append([]string(nil), res.FailedNamespaces...)
}

func (s *StatsCollector) RecordFusion(res FusionResult) {
	s.timings.Rerank = res.Latency
	s.reranked = res.Reranked
	s.rerankApplied = res.Applied
	s.rerankFallback = res.Fallback
}

func (s *StatsCollector) RecordFilters(filter domain.MetadataFilter) {
	s.filters = filter.Describe()
}

func (s *StatsCollector) RecordFormatting(d time.Duration) { s.timings.Formatting = d }

// Timings returns the raw stage durations with the total measured up to now.
func (s *StatsCollector) Timings(now time.Time) StageTimings {
	t := s.timings
	t.Total = now.Sub(s.started)
	return t
}

// Build freezes the collected data together with the score summary of the returned chunks.
func (s *StatsCollector) Build(chunks []domain.RetrievalChunk, now time.Time) domain.Statistics {
	t := s.Timings(now)
	stats := domain.Statistics{
		RetrievedCount:     s.retrieved,
		RerankedCount:      s.reranked,
		ReturnedCount:      len(chunks),
		NamespacesSearched: append([]string{}, s.namespaces...),
		FailedNamespaces:   append([]string(nil), s.failed...),
		FiltersApplied:     append([]string{}, s.filters...),
		RerankApplied:      s.rerankApplied,
		RerankFallback:     s.rerankFallback,
		Latency: domain.StageLatency{
			ExpansionMs:  t.Expansion.Milliseconds(),
			EmbeddingMs:  t.Embedding.Milliseconds(),
			RetrievalMs:  t.Retrieval.Milliseconds(),
			RerankMs:     t.Rerank.Milliseconds(),
			FormattingMs: t.Formatting.Milliseconds(),
			TotalMs:      t.Total.Milliseconds(),
		},
	}

	if len(chunks) > 0 {
		var sum float64
		for _, c := range chunks {
			score := c.BestScore()
			sum += score
			if score > stats.TopScore {
				stats.TopScore = score
			}
		}
		stats.AverageScore = sum / float64(len(chunks))
	}
	return stats
}
