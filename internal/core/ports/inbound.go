package ports

import (
	"context"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
)

// RetrievalService is the inbound contract for one retrieval pipeline run.
type RetrievalService interface {
	Retrieve(ctx context.Context, req domain.RetrievalRequest) (*domain.RetrievalEnvelope, error)
}

// AnswerService runs retrieval, drafting and contract validation.
type AnswerService interface {
	Answer(ctx context.Context, req domain.RetrievalRequest) (*domain.AnswerContract, error)
}

// ContractValidator gates emission of candidate contracts.
type ContractValidator interface {
	Validate(candidate *domain.AnswerContract) domain.ValidationResult
}

// PersonaCatalog exposes the loaded persona templates.
type PersonaCatalog interface {
	List() []domain.PersonaTemplate
	Lookup(key domain.PersonaKey) (domain.PersonaTemplate, bool)
}

// PersonaSessionStore remembers a persona selection per client session.
type PersonaSessionStore interface {
	Select(sessionID string, key domain.PersonaKey)
	Lookup(sessionID string) (domain.PersonaKey, bool)
	Sweep() int
}
