package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	ContractFamily  = "archive"
	ContractVersion = ContractFamily + ".answer.v1"
)

type Completeness string

const (
	CompletenessComplete     Completeness = "complete"
	CompletenessPartial      Completeness = "partial"
	CompletenessInsufficient Completeness = "insufficient"
)

type RetrievalConfidence string

const (
	RetrievalConfidenceHigh   RetrievalConfidence = "high"
	RetrievalConfidenceMedium RetrievalConfidence = "medium"
	RetrievalConfidenceLow    RetrievalConfidence = "low"
	RetrievalConfidenceNone   RetrievalConfidence = "none"
)

type FallbackBehavior string

const (
	FallbackNone          FallbackBehavior = "none"
	FallbackPartialAnswer FallbackBehavior = "partial_answer"
	FallbackRefusal       FallbackBehavior = "refusal"
	FallbackClarify       FallbackBehavior = "clarify"
)

type AnswerBody struct {
	Text         string       `json:"text"`
	Confidence   float64      `json:"confidence"`
	Tone         string       `json:"tone"`
	Completeness Completeness `json:"completeness"`
}

type Source struct {
	DocumentID    string  `json:"document_id"`
	ChunkID       string  `json:"chunk_id"`
	CitationLabel string  `json:"citation_label"`
	CanonicalURL  string  `json:"canonical_url"`
	SourceOrg     string  `json:"source_org"`
	Year          int     `json:"year"`
	ContentType   string  `json:"content_type"`
	License       string  `json:"license"`
	Rank          int     `json:"rank"`
	Score         float64 `json:"score"`
}

type RankedResult struct {
	Rank       int     `json:"rank"`
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Namespace  string  `json:"namespace"`
	Score      float64 `json:"score"`
}

type RetrievalSummary struct {
	Query      string         `json:"query"`
	Persona    PersonaKey     `json:"persona"`
	Namespaces []string       `json:"namespaces"`
	Filters    MetadataFilter `json:"filters"`
	Results    []RankedResult `json:"results"`
}

type Unknowns struct {
	UnsupportedClaims   []string `json:"unsupported_claims"`
	MissingContext      []string `json:"missing_context"`
	ClarifyingQuestions []string `json:"clarifying_questions"`
}

type Integrity struct {
	CitationRequired    bool                `json:"citation_required"`
	CitationsProvided   bool                `json:"citations_provided"`
	RetrievalConfidence RetrievalConfidence `json:"retrieval_confidence"`
	FallbackBehavior    FallbackBehavior    `json:"fallback_behavior"`
}

type Provenance struct {
	GeneratedAt    time.Time  `json:"generated_at"`
	RetrievalRunID string     `json:"retrieval_run_id"`
	MessageID      string     `json:"message_id"`
	Persona        PersonaKey `json:"persona"`
}

// AnswerContract is the versioned artifact that leaves the system. It is emitted whole after
// validation or not at all.
type AnswerContract struct {
	Version          string           `json:"version"`
	Answer           AnswerBody       `json:"answer"`
	Sources          []Source         `json:"sources"`
	RetrievalSummary RetrievalSummary `json:"retrieval_summary"`
	Unknowns         Unknowns         `json:"unknowns"`
	Integrity        Integrity        `json:"integrity"`
	Provenance       Provenance       `json:"provenance"`
}

// Violation names one broken rule of a candidate contract.
type Violation struct {
	Path    string `json:"path"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Rule + ": " + v.Message
	}
	return v.Path + ": " + v.Rule + ": " + v.Message
}

// ContractViolationError carries the full violation list of a rejected contract.
type ContractViolationError struct {
	Violations []Violation
}

func (e *ContractViolationError) Error() string {
	if e == nil || len(e.Violations) == 0 {
		return "contract rejected"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("contract rejected with %d violation(s): %s", len(e.Violations), strings.Join(parts, "; "))
}

func (e *ContractViolationError) Unwrap() error {
	return ErrContractViolation
}

type ValidationState string

const (
	StateCandidate         ValidationState = "candidate"
	StateStructurallyValid ValidationState = "structurally_valid"
	StateValid             ValidationState = "valid"
	StateRejected          ValidationState = "rejected"
)

// ValidationResult is either Valid with the contract or Rejected with every violation found.
// A rejected result never carries the contract.
type ValidationResult struct {
	State      ValidationState `json:"state"`
	Contract   *AnswerContract `json:"-"`
	Violations []Violation     `json:"violations"`
}

func (r ValidationResult) Valid() bool {
	return r.State == StateValid
}

// Err returns nil for valid results and a *ContractViolationError otherwise.
func (r ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	violations := make([]Violation, len(r.Violations))
	copy(violations, r.Violations)
	return &ContractViolationError{Violations: violations}
}
