package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
)

// ContractRepository is the audit store of emitted answer contracts. Rows are append-only; a
// redelivered contract with a known message id is ignored.
type ContractRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewContractRepository(db *sql.DB) *ContractRepository {
	return &ContractRepository{db: db, now: time.Now}
}

// ContractRecord is the index row of a stored contract.
type ContractRecord struct {
	MessageID        string                  `json:"message_id"`
	RetrievalRunID   string                  `json:"retrieval_run_id"`
	Persona          domain.PersonaKey       `json:"persona"`
	Completeness     domain.Completeness     `json:"completeness"`
	FallbackBehavior domain.FallbackBehavior `json:"fallback_behavior"`
	SourceCount      int                     `json:"source_count"`
	GeneratedAt      time.Time               `json:"generated_at"`
}

func (r *ContractRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026031501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS answer_contracts (
	message_id TEXT PRIMARY KEY,
	retrieval_run_id TEXT NOT NULL,
	persona TEXT NOT NULL,
	version TEXT NOT NULL,
	completeness TEXT NOT NULL,
	fallback_behavior TEXT NOT NULL,
	source_count INTEGER NOT NULL,
	body JSONB NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_answer_contracts_persona ON answer_contracts(persona, generated_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Save stores the contract and reports whether a row was written. A message_id that is already
// stored is a no-op and returns false.
func (r *ContractRepository) Save(ctx context.Context, contract *domain.AnswerContract) (bool, error) {
	if contract == nil || contract.Provenance.MessageID == "" {
		return false, domain.WrapError(domain.ErrInvalidInput, "save contract", errors.New("message_id is required"))
	}
	body, err := json.Marshal(contract)
	if err != nil {
		return false, fmt.Errorf("marshal contract: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
INSERT INTO answer_contracts (
	message_id, retrieval_run_id, persona, version, completeness, fallback_behavior, source_count, body, generated_at, recorded_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (message_id) DO NOTHING
`,
		contract.Provenance.MessageID,
		contract.Provenance.RetrievalRunID,
		string(contract.Provenance.Persona),
		contract.Version,
		string(contract.Answer.Completeness),
		string(contract.Integrity.FallbackBehavior),
		len(contract.Sources),
		body,
		contract.Provenance.GeneratedAt,
		r.now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert contract: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert contract rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *ContractRepository) GetByMessageID(ctx context.Context, messageID string) (*domain.AnswerContract, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT body
FROM answer_contracts
WHERE message_id = $1
`, messageID)

	var body []byte
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get contract", fmt.Errorf("message_id=%s", messageID))
		}
		return nil, fmt.Errorf("scan contract: %w", err)
	}

	var contract domain.AnswerContract
	if err := json.Unmarshal(body, &contract); err != nil {
		return nil, fmt.Errorf("unmarshal contract: %w", err)
	}
	return &contract, nil
}

// ListRecent returns the newest records first, optionally for one persona.
func (r *ContractRepository) ListRecent(ctx context.Context, persona domain.PersonaKey, limit int) ([]ContractRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT message_id, retrieval_run_id, persona, completeness, fallback_behavior, source_count, generated_at
FROM answer_contracts
WHERE ($1 = '' OR persona = $1)
ORDER BY generated_at DESC
LIMIT $2
`, string(persona), limit)
	if err != nil {
		return nil, fmt.Errorf("query contracts: %w", err)
	}
	defer rows.Close()

	out := make([]ContractRecord, 0, limit)
	for rows.Next() {
		var (
			rec          ContractRecord
			personaKey   string
			completeness string
			fallback     string
		)
		if err := rows.Scan(&rec.MessageID, &rec.RetrievalRunID, &personaKey, &completeness, &fallback, &rec.SourceCount, &rec.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scan contract record: %w", err)
		}
		rec.Persona = domain.PersonaKey(personaKey)
		rec.Completeness = domain.Completeness(completeness)
		rec.FallbackBehavior = domain.FallbackBehavior(fallback)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contracts: %w", err)
	}
	return out, nil
}
