package ports

import (
	"context"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
)

// Embedder turns query text into a vector. Failures are fatal to the run.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore searches one namespace of the corpus.
type VectorStore interface {
	Search(
		ctx context.Context,
		queryVector []float32,
		namespace string,
		filter domain.MetadataFilter,
		limit int,
		threshold float64,
	) ([]domain.VectorHit, error)
}

// Reranker scores query/candidate pairs with a cross-encoder. Scores are matched back by ID.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []domain.RerankCandidate) ([]domain.RerankScore, error)
}

// AnswerDrafter produces a draft answer from the formatted evidence context.
type AnswerDrafter interface {
	Draft(ctx context.Context, req domain.DraftRequest) (domain.Draft, error)
}

// ContractPublisher fans validated contracts out to audit consumers.
type ContractPublisher interface {
	PublishContract(ctx context.Context, contract *domain.AnswerContract) error
}

// ContractRepository persists emitted contracts for audit lookup. Save reports false when the
// message_id was already stored.
type ContractRepository interface {
	Save(ctx context.Context, contract *domain.AnswerContract) (bool, error)
	GetByMessageID(ctx context.Context, messageID string) (*domain.AnswerContract, error)
}
