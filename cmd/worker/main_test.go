package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/grounded-archive/internal/core/contract"
	"github.com/kirillkom/grounded-archive/internal/core/domain"
	"github.com/kirillkom/grounded-archive/internal/observability/metrics"
)

type contractsFake struct {
	inserted bool
	err      error
	saved    int
}

func (f *contractsFake) Save(context.Context, *domain.AnswerContract) (bool, error) {
	f.saved++
	return f.inserted, f.err
}

func (f *contractsFake) GetByMessageID(context.Context, string) (*domain.AnswerContract, error) {
	return nil, domain.ErrNotFound
}

func auditedContract() *domain.AnswerContract {
	return &domain.AnswerContract{
		Version: domain.ContractVersion,
		Answer: domain.AnswerBody{
			Text:         "Title II barred discrimination in public accommodations.",
			Confidence:   0.8,
			Tone:         "instructional",
			Completeness: domain.CompletenessComplete,
		},
		Sources: []domain.Source{{
			DocumentID:    "nara-cra-1964",
			ChunkID:       "c1",
			CitationLabel: "Civil Rights Act of 1964",
			CanonicalURL:  "https://archive.example/cra",
			SourceOrg:     "National Archives",
			Year:          1964,
			ContentType:   "statute",
			License:       "public-domain",
			Rank:          1,
			Score:         0.9,
		}},
		RetrievalSummary: domain.RetrievalSummary{
			Query:      "What did the Civil Rights Act of 1964 prohibit?",
			Persona:    domain.PersonaEducator,
			Namespaces: []string{"primary_sources"},
			Results: []domain.RankedResult{
				{Rank: 1, DocumentID: "nara-cra-1964", ChunkID: "c1", Namespace: "primary_sources", Score: 0.9},
			},
		},
		Unknowns: domain.Unknowns{
			UnsupportedClaims:   []string{},
			MissingContext:      []string{},
			ClarifyingQuestions: []string{},
		},
		Integrity: domain.Integrity{
			CitationRequired:    true,
			CitationsProvided:   true,
			RetrievalConfidence: domain.RetrievalConfidenceHigh,
			FallbackBehavior:    domain.FallbackNone,
		},
		Provenance: domain.Provenance{
			GeneratedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			RetrievalRunID: "run-1",
			MessageID:      "msg-1",
			Persona:        domain.PersonaEducator,
		},
	}
}

func TestPersistOutcomes(t *testing.T) {
	validator, err := contract.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}
	invalid := auditedContract()
	invalid.Sources = []domain.Source{}
	invalid.Integrity.CitationsProvided = false

	tests := []struct {
		name      string
		contract  *domain.AnswerContract
		repo      *contractsFake
		want      metrics.PersistOutcome
		wantErr   bool
		wantSaved int
	}{
		{name: "new row", contract: auditedContract(), repo: &contractsFake{inserted: true}, want: metrics.OutcomePersisted, wantSaved: 1},
		{name: "redelivery", contract: auditedContract(), repo: &contractsFake{}, want: metrics.OutcomeDuplicate, wantSaved: 1},
		{name: "store down", contract: auditedContract(), repo: &contractsFake{err: errors.New("connection refused")}, want: metrics.OutcomeFailed, wantErr: true, wantSaved: 1},
		{name: "invalid contract", contract: invalid, repo: &contractsFake{inserted: true}, want: metrics.OutcomeRejected, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := persist(context.Background(), tt.repo, validator, tt.contract)
			if got != tt.want {
				t.Fatalf("persist() outcome = %s, want %s", got, tt.want)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("persist() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.repo.saved != tt.wantSaved {
				t.Fatalf("expected %d saves, got %d", tt.wantSaved, tt.repo.saved)
			}
		})
	}
}
