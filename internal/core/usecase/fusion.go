package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
	"github.com/kirillkom/grounded-archive/internal/core/ports"
)

// FusionRequest configures one rerank-and-fuse pass.
type FusionRequest struct {
	Query          string
	Chunks         []domain.RetrievalChunk
	TopN           int
	SemanticWeight float64
	RerankWeight   float64
}

type FusionResult struct {
	Chunks   []domain.RetrievalChunk
	Applied  bool
	Fallback bool
	Reranked int
	Latency  time.Duration
}

// Fuser blends vector similarity with cross-encoder scores.
type Fuser struct {
	reranker ports.Reranker
	timeout  time.Duration
	observer PipelineObserver
}

func NewFuser(reranker ports.Reranker, timeout time.Duration, observer PipelineObserver) *Fuser {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Fuser{reranker: reranker, timeout: timeout, observer: observer}
}

var errRerankerUnavailable = errors.New("reranker is not configured")

// Fuse reranks the chunks and returns at most TopN of them ordered by final score. A reranker
// failure leaves the input order untouched and sets Fallback.
func (f *Fuser) Fuse(ctx context.Context, req FusionRequest) FusionResult {
	if len(req.Chunks) == 0 {
		return FusionResult{Chunks: req.Chunks}
	}

	started := time.Now()
	scores, err := f.rerank(ctx, req.Query, req.Chunks)
	if err != nil {
		slog.Warn("rerank_fallback", "error", err.Error(), "chunks", len(req.Chunks))
		f.observer.ObserveRerank(false, true)
		return FusionResult{Chunks: req.Chunks, Fallback: true, Latency: time.Since(started)}
	}

	sw, rw := fusionWeights(req.SemanticWeight, req.RerankWeight)
	fused := make([]domain.RetrievalChunk, len(req.Chunks))
	copy(fused, req.Chunks)
	for i := range fused {
		rerank := clampUnit(scores[i])
		final := sw*fused[i].Score + rw*rerank
		fused[i].RerankScore = &rerank
		fused[i].FinalScore = &final
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if *fused[i].FinalScore != *fused[j].FinalScore {
			return *fused[i].FinalScore > *fused[j].FinalScore
		}
		return fused[i].Rank < fused[j].Rank
	})

	reranked := len(fused)
	if req.TopN > 0 && len(fused) > req.TopN {
		fused = fused[:req.TopN]
	}
	f.observer.ObserveRerank(true, false)
	return FusionResult{
		Chunks:   assignRanks(fused),
		Applied:  true,
		Reranked: reranked,
		Latency:  time.Since(started),
	}
}

// rerank returns the reranker score for each chunk by position. Candidates are keyed by their
// index because chunk ids are only unique within a namespace.
func (f *Fuser) rerank(ctx context.Context, query string, chunks []domain.RetrievalChunk) ([]float64, error) {
	if f.reranker == nil {
		return nil, errRerankerUnavailable
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	candidates := make([]domain.RerankCandidate, 0, len(chunks))
	for i, c := range chunks {
		candidates = append(candidates, domain.RerankCandidate{ID: strconv.Itoa(i), Text: c.Text})
	}
	scores, err := f.reranker.Rerank(ctx, query, candidates)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(chunks))
	for _, s := range scores {
		idx, err := strconv.Atoi(s.ID)
		if err != nil || idx < 0 || idx >= len(out) {
			continue
		}
		out[idx] = s.Score
	}
	return out, nil
}

// fusionWeights returns the weights as given, with negatives treated as zero.
func fusionWeights(semantic, rerank float64) (float64, float64) {
	return max(semantic, 0), max(rerank, 0)
}
