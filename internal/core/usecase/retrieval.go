package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
	"github.com/kirillkom/grounded-archive/internal/core/ports"
)

// RetrievalUseCase runs one persona-driven retrieval pipeline per request: persona selection,
// parameter resolution, expansion, namespace fan-out, optional fusion, formatting and statistics.
type RetrievalUseCase struct {
	selector   *PersonaSelector
	personas   PersonaDirectory
	aggregator *Aggregator
	fuser      *Fuser
	defaults   Defaults
	observer   PipelineObserver

	now   func() time.Time
	newID func() string
}

// NewRetrievalUseCase wires the pipeline. A nil fuser disables reranking for every persona.
func NewRetrievalUseCase(
	personas PersonaDirectory,
	sessions ports.PersonaSessionStore,
	aggregator *Aggregator,
	fuser *Fuser,
	defaults Defaults,
	observer PipelineObserver,
) *RetrievalUseCase {
	if observer == nil {
		observer = NopObserver{}
	}
	return &RetrievalUseCase{
		selector:   NewPersonaSelector(personas, sessions),
		personas:   personas,
		aggregator: aggregator,
		fuser:      fuser,
		defaults:   defaults,
		observer:   observer,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func (uc *RetrievalUseCase) Retrieve(ctx context.Context, req domain.RetrievalRequest) (*domain.RetrievalEnvelope, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	started := uc.now()
	stats := NewStatsCollector(started)

	selection := uc.selector.Select(req)
	params := ResolveParams(req, selection.Template, uc.defaults)
	params.PersonaSource = selection.Source
	params.PersonaFallback = selection.Fallback
	stats.RecordFilters(params.Filter)

	expansionStarted := uc.now()
	expansion := ExpandQuery(req.Query, params.Expansion, uc.personas)
	stats.RecordExpansion(uc.now().Sub(expansionStarted))

	aggregated, err := uc.aggregator.Aggregate(ctx, AggregateRequest{
		Query:      expansion.Query,
		Namespaces: params.Namespaces,
		Filter:     params.Filter,
		Limit:      params.Limit,
		Threshold:  params.Threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate namespaces: %w", err)
	}
	stats.RecordRetrieval(aggregated, params.Namespaces)

	chunks := aggregated.Chunks
	if params.Rerank && uc.fuser != nil && len(chunks) > 0 {
		fused := uc.fuser.Fuse(ctx, FusionRequest{
			Query:          strings.TrimSpace(req.Query),
			Chunks:         chunks,
			TopN:           params.RerankTopN,
			SemanticWeight: params.SemanticWeight,
			RerankWeight:   params.RerankWeight,
		})
		stats.RecordFusion(fused)
		chunks = fused.Chunks
	}

	formatStarted := uc.now()
	formatted := FormatContext(chunks, params.Context)
	stats.RecordFormatting(uc.now().Sub(formatStarted))

	finished := uc.now()
	envelope := &domain.RetrievalEnvelope{
		RunID:            uc.newID(),
		Query:            strings.TrimSpace(req.Query),
		ExpandedQuery:    expansion.Query,
		AddedTerms:       expansion.AddedTerms,
		Params:           params,
		Chunks:           chunks,
		Namespaces:       append([]string(nil), params.Namespaces...),
		FailedNamespaces: aggregated.FailedNamespaces,
		Filters:          params.Filter,
		Context:          formatted,
		Statistics:       stats.Build(chunks, finished),
		Sufficient:       len(chunks) > 0 && len(chunks) >= params.MinResults,
		CreatedAt:        finished.UTC(),
	}
	if envelope.Chunks == nil {
		envelope.Chunks = []domain.RetrievalChunk{}
	}
	uc.observer.ObserveRun(string(params.Persona), stats.Timings(finished), len(chunks))
	return envelope, nil
}
