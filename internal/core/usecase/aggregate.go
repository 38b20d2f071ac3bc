package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
	"github.com/kirillkom/grounded-archive/internal/core/ports"
)

// AggregateRequest is one fan-out over the resolved namespaces.
type AggregateRequest struct {
	Query      string
	Namespaces []string
	Filter     domain.MetadataFilter
	Limit      int
	Threshold  float64
}

// AggregateResult carries the merged ranking plus what happened per namespace.
type AggregateResult struct {
	Chunks           []domain.RetrievalChunk
	RetrievedCount   int
	FailedNamespaces []string
	EmbeddingLatency time.Duration
	SearchLatency    time.Duration
}

// Aggregator embeds the query once and searches every namespace concurrently.
type Aggregator struct {
	embedder      ports.Embedder
	store         ports.VectorStore
	searchTimeout time.Duration
	observer      PipelineObserver
}

func NewAggregator(embedder ports.Embedder, store ports.VectorStore, searchTimeout time.Duration, observer PipelineObserver) *Aggregator {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Aggregator{
		embedder:      embedder,
		store:         store,
		searchTimeout: searchTimeout,
		observer:      observer,
	}
}

type namespaceOutcome struct {
	hits []domain.VectorHit
	err  error
}

type orderedChunk struct {
	chunk    domain.RetrievalChunk
	nsIndex  int
	hitIndex int
}

// Aggregate returns at most req.Limit chunks ranked 1..N. A failing namespace contributes nothing;
// only an embedding failure is returned as an error.
func (a *Aggregator) Aggregate(ctx context.Context, req AggregateRequest) (AggregateResult, error) {
	started := time.Now()
	vector, err := a.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		if domain.IsKind(err, domain.ErrEmbedding) {
			return AggregateResult{}, err
		}
		return AggregateResult{}, domain.WrapError(domain.ErrEmbedding, "embed query", err)
	}
	result := AggregateResult{EmbeddingLatency: time.Since(started)}

	searchStarted := time.Now()
	outcomes := make([]namespaceOutcome, len(req.Namespaces))
	g, gctx := errgroup.WithContext(ctx)
	for i, ns := range req.Namespaces {
		g.Go(func() error {
			callCtx := gctx
			if a.searchTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gctx, a.searchTimeout)
				defer cancel()
			}
			hits, err := a.store.Search(callCtx, vector, ns, req.Filter, req.Limit, req.Threshold)
			outcomes[i] = namespaceOutcome{hits: hits, err: err}
			// Failures stay local to the namespace; returning them would cancel the siblings.
			return nil
		})
	}
	_ = g.Wait()
	result.SearchLatency = time.Since(searchStarted)

	merged := make([]orderedChunk, 0, len(req.Namespaces)*max(req.Limit, 1))
	for i, ns := range req.Namespaces {
		outcome := outcomes[i]
		if outcome.err != nil {
			slog.Warn("namespace_search_failed", "namespace", ns, "error", outcome.err.Error())
			result.FailedNamespaces = append(result.FailedNamespaces, ns)
			a.observer.ObserveNamespace(ns, outcome.err)
			continue
		}
		a.observer.ObserveNamespace(ns, nil)
		for j, hit := range outcome.hits {
			if hit.Score < req.Threshold {
				continue
			}
			merged = append(merged, orderedChunk{chunk: chunkFromHit(hit, ns), nsIndex: i, hitIndex: j})
		}
	}
	result.RetrievedCount = len(merged)

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].chunk.Score != merged[j].chunk.Score {
			return merged[i].chunk.Score > merged[j].chunk.Score
		}
		if merged[i].nsIndex != merged[j].nsIndex {
			return merged[i].nsIndex < merged[j].nsIndex
		}
		return merged[i].hitIndex < merged[j].hitIndex
	})
	merged = dropDuplicateChunks(merged)

	if req.Limit > 0 && len(merged) > req.Limit {
		merged = merged[:req.Limit]
	}
	chunks := make([]domain.RetrievalChunk, 0, len(merged))
	for _, m := range merged {
		chunks = append(chunks, m.chunk)
	}
	result.Chunks = assignRanks(chunks)
	return result, nil
}

type chunkKey struct {
	documentID string
	chunkID    string
}

// dropDuplicateChunks keeps the first copy of each (document_id, chunk_id) pair. The input is
// already sorted, so the kept copy is the highest-scoring one.
func dropDuplicateChunks(merged []orderedChunk) []orderedChunk {
	seen := make(map[chunkKey]struct{}, len(merged))
	out := merged[:0]
	for _, m := range merged {
		key := chunkKey{documentID: m.chunk.DocumentID, chunkID: m.chunk.ChunkID}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}

// assignRanks sets rank = position+1 in place.
func assignRanks(chunks []domain.RetrievalChunk) []domain.RetrievalChunk {
	for i := range chunks {
		chunks[i].Rank = i + 1
	}
	return chunks
}

// chunkFromHit normalises a store hit. Missing metadata is substituted rather than rejected.
func chunkFromHit(hit domain.VectorHit, namespace string) domain.RetrievalChunk {
	md := hit.Metadata
	chunk := domain.RetrievalChunk{
		ChunkID:       metaString(md, "chunk_id", hit.ID),
		Namespace:     namespace,
		Text:          hit.Text,
		Score:         clampUnit(hit.Score),
		CitationLabel: metaString(md, "citation_label", ""),
		CanonicalURL:  metaString(md, "canonical_url", domain.UnknownValue),
		SourceOrg:     metaString(md, "source_org", domain.UnknownValue),
		Year:          metaInt(md, "year"),
		ContentType:   metaString(md, "content_type", domain.UnknownValue),
		License:       metaString(md, "license", domain.UnknownValue),
		Tags:          metaStrings(md, "tags"),
	}
	if chunk.ChunkID == "" {
		chunk.ChunkID = domain.UnknownValue
	}
	chunk.DocumentID = metaString(md, "document_id", chunk.ChunkID)
	if chunk.Text == "" {
		chunk.Text = metaString(md, "text", "")
	}
	if chunk.CitationLabel == "" {
		year := "n.d."
		if chunk.Year > 0 {
			year = strconv.Itoa(chunk.Year)
		}
		chunk.CitationLabel = chunk.SourceOrg + ", " + year
	}
	return chunk
}

func metaString(md map[string]any, key, fallback string) string {
	raw, ok := md[key]
	if !ok || raw == nil {
		return fallback
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case fmt.Stringer:
		s = v.String()
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		s = strconv.Itoa(v)
	default:
		return fallback
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	return s
}

func metaInt(md map[string]any, key string) int {
	switch v := md[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func metaStrings(md map[string]any, key string) []string {
	switch v := md[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
