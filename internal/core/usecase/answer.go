package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
	"github.com/kirillkom/grounded-archive/internal/core/ports"
)

const (
	InsufficientEvidenceText = "Insufficient grounded evidence to answer this question."

	missingEvidenceNote = "No retrieved evidence met the similarity threshold in the searched namespaces."
	narrowingQuestion   = "Could you name a specific event, person, place or period to search for?"
)

// AnswerUseCase turns a retrieval envelope into a validated answer contract. A contract that fails
// validation is never returned.
type AnswerUseCase struct {
	retrieval    ports.RetrievalService
	drafter      ports.AnswerDrafter
	validator    ports.ContractValidator
	publisher    ports.ContractPublisher
	draftTimeout time.Duration
	observer     PipelineObserver

	now   func() time.Time
	newID func() string
}

func NewAnswerUseCase(
	retrieval ports.RetrievalService,
	drafter ports.AnswerDrafter,
	validator ports.ContractValidator,
	publisher ports.ContractPublisher,
	draftTimeout time.Duration,
	observer PipelineObserver,
) *AnswerUseCase {
	if observer == nil {
		observer = NopObserver{}
	}
	return &AnswerUseCase{
		retrieval:    retrieval,
		drafter:      drafter,
		validator:    validator,
		publisher:    publisher,
		draftTimeout: draftTimeout,
		observer:     observer,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

func (uc *AnswerUseCase) Answer(ctx context.Context, req domain.RetrievalRequest) (*domain.AnswerContract, error) {
	envelope, err := uc.retrieval.Retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	candidate := uc.buildCandidate(ctx, envelope)
	result := uc.validator.Validate(candidate)
	uc.observer.ObserveContract(string(envelope.Params.Persona), result.Valid(), len(result.Violations))
	if !result.Valid() {
		slog.Warn("contract_rejected",
			"run_id", envelope.RunID,
			"persona", string(envelope.Params.Persona),
			"violations", len(result.Violations),
		)
		return nil, result.Err()
	}

	if uc.publisher != nil {
		if err := uc.publisher.PublishContract(ctx, result.Contract); err != nil {
			slog.Error("contract_publish_failed", "message_id", result.Contract.Provenance.MessageID, "error", err.Error())
		}
	}
	return result.Contract, nil
}

// buildCandidate assembles the contract from the envelope and, when there is evidence, the draft.
// It does not judge the result; that is the validator's job.
func (uc *AnswerUseCase) buildCandidate(ctx context.Context, env *domain.RetrievalEnvelope) *domain.AnswerContract {
	p := env.Params
	c := &domain.AnswerContract{
		Version: domain.ContractVersion,
		RetrievalSummary: domain.RetrievalSummary{
			Query:      env.Query,
			Persona:    p.Persona,
			Namespaces: nonNilStrings(env.Namespaces),
			Filters:    env.Filters,
			Results:    rankedResults(env.Chunks),
		},
		Unknowns: domain.Unknowns{
			UnsupportedClaims:   []string{},
			MissingContext:      []string{},
			ClarifyingQuestions: []string{},
		},
		Integrity: domain.Integrity{
			CitationRequired:    p.CitationRequired,
			RetrievalConfidence: confidenceFromScore(env.Statistics.TopScore),
			FallbackBehavior:    domain.FallbackNone,
		},
		Provenance: domain.Provenance{
			GeneratedAt:    uc.now().UTC(),
			RetrievalRunID: env.RunID,
			MessageID:      uc.newID(),
			Persona:        p.Persona,
		},
		Sources: []domain.Source{},
	}
	for _, ns := range env.FailedNamespaces {
		c.Unknowns.MissingContext = append(c.Unknowns.MissingContext, fmt.Sprintf("Namespace %q could not be searched.", ns))
	}

	if len(env.Chunks) == 0 {
		uc.fillInsufficient(c, p.Tone, missingEvidenceNote)
		return c
	}

	draft, err := uc.draft(ctx, env)
	if err != nil {
		slog.Warn("draft_failed", "run_id", env.RunID, "error", err.Error())
		uc.fillInsufficient(c, p.Tone, "The answer drafting step failed: "+err.Error())
		return c
	}

	c.Answer = domain.AnswerBody{
		Text:         strings.TrimSpace(draft.Text),
		Confidence:   clampUnit(draft.Confidence),
		Tone:         p.Tone,
		Completeness: domain.CompletenessComplete,
	}
	c.Sources = citeSources(draft.CitedDocumentIDs, env.Chunks)
	c.Integrity.CitationsProvided = len(c.Sources) > 0
	c.Unknowns.UnsupportedClaims = append(c.Unknowns.UnsupportedClaims, draft.UnsupportedClaims...)
	c.Unknowns.ClarifyingQuestions = append(c.Unknowns.ClarifyingQuestions, draft.ClarifyingQuestions...)

	if !env.Sufficient {
		c.Answer.Completeness = domain.CompletenessPartial
		c.Integrity.FallbackBehavior = domain.FallbackPartialAnswer
		c.Unknowns.MissingContext = append(c.Unknowns.MissingContext,
			fmt.Sprintf("Only %d of the %d expected sources were retrieved.", len(env.Chunks), p.MinResults))
	} else if len(c.Unknowns.UnsupportedClaims) > 0 {
		c.Answer.Completeness = domain.CompletenessPartial
	}
	return c
}

func (uc *AnswerUseCase) draft(ctx context.Context, env *domain.RetrievalEnvelope) (domain.Draft, error) {
	if uc.drafter == nil {
		return domain.Draft{}, errors.New("answer drafter is not configured")
	}
	if uc.draftTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.draftTimeout)
		defer cancel()
	}
	draft, err := uc.drafter.Draft(ctx, domain.DraftRequest{
		Query:   env.Query,
		Persona: env.Params.Persona,
		Tone:    env.Params.Tone,
		Context: env.Context,
		Chunks:  env.Chunks,
	})
	if err != nil {
		return domain.Draft{}, err
	}
	if strings.TrimSpace(draft.Text) == "" {
		return domain.Draft{}, errors.New("drafter returned an empty answer")
	}
	return draft, nil
}

// fillInsufficient turns c into an honest refusal or clarification without sources.
func (uc *AnswerUseCase) fillInsufficient(c *domain.AnswerContract, tone, note string) {
	if tone == "" {
		tone = "neutral"
	}
	c.Answer = domain.AnswerBody{
		Text:         InsufficientEvidenceText,
		Confidence:   0,
		Tone:         tone,
		Completeness: domain.CompletenessInsufficient,
	}
	c.Sources = []domain.Source{}
	c.Integrity.CitationsProvided = false
	c.Integrity.RetrievalConfidence = domain.RetrievalConfidenceNone
	c.Unknowns.MissingContext = append(c.Unknowns.MissingContext, note)
	if c.Integrity.CitationRequired {
		c.Integrity.FallbackBehavior = domain.FallbackRefusal
		return
	}
	c.Integrity.FallbackBehavior = domain.FallbackClarify
	c.Unknowns.ClarifyingQuestions = append(c.Unknowns.ClarifyingQuestions, narrowingQuestion)
}

// citeSources maps cited document ids to their best-ranked chunk. Ids outside the evidence set are
// kept as bare sources so validation rejects the fabricated citation. Without citations every
// retrieved document is cited in rank order.
func citeSources(cited []string, chunks []domain.RetrievalChunk) []domain.Source {
	best := make(map[string]domain.RetrievalChunk, len(chunks))
	order := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		if _, ok := best[ch.DocumentID]; ok {
			continue
		}
		best[ch.DocumentID] = ch
		order = append(order, ch.DocumentID)
	}

	ids := make([]string, 0, len(cited))
	seen := make(map[string]struct{}, len(cited))
	for _, id := range cited {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		ids = order
	}

	out := make([]domain.Source, 0, len(ids))
	for _, id := range ids {
		ch, ok := best[id]
		if !ok {
			out = append(out, domain.Source{
				DocumentID:    id,
				ChunkID:       id,
				CitationLabel: id,
				CanonicalURL:  domain.UnknownValue,
				SourceOrg:     domain.UnknownValue,
				ContentType:   domain.UnknownValue,
				License:       domain.UnknownValue,
				Rank:          len(chunks) + len(out) + 1,
			})
			continue
		}
		out = append(out, sourceFromChunk(ch))
	}
	return out
}

func sourceFromChunk(ch domain.RetrievalChunk) domain.Source {
	return domain.Source{
		DocumentID:    ch.DocumentID,
		ChunkID:       ch.ChunkID,
		CitationLabel: ch.CitationLabel,
		CanonicalURL:  ch.CanonicalURL,
		SourceOrg:     ch.SourceOrg,
		Year:          ch.Year,
		ContentType:   ch.ContentType,
		License:       ch.License,
		Rank:          ch.Rank,
		Score:         clampUnit(ch.BestScore()),
	}
}

func rankedResults(chunks []domain.RetrievalChunk) []domain.RankedResult {
	out := make([]domain.RankedResult, 0, len(chunks))
	for _, ch := range chunks {
		out = append(out, domain.RankedResult{
			Rank:       ch.Rank,
			DocumentID: ch.DocumentID,
			ChunkID:    ch.ChunkID,
			Namespace:  ch.Namespace,
			Score:      clampUnit(ch.BestScore()),
		})
	}
	return out
}

func confidenceFromScore(top float64) domain.RetrievalConfidence {
	switch {
	case top >= 0.85:
		return domain.RetrievalConfidenceHigh
	case top >= 0.70:
		return domain.RetrievalConfidenceMedium
	case top > 0:
		return domain.RetrievalConfidenceLow
	default:
		return domain.RetrievalConfidenceNone
	}
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
