package domain

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

const UnknownValue = "unknown"

// RetrievalChunk is one candidate evidence unit. It lives for a single pipeline run.
type RetrievalChunk struct {
	ChunkID       string   `json:"chunk_id"`
	DocumentID    string   `json:"document_id"`
	Namespace     string   `json:"namespace"`
	Text          string   `json:"text"`
	Score         float64  `json:"score"`
	RerankScore   *float64 `json:"rerank_score,omitempty"`
	FinalScore    *float64 `json:"final_score,omitempty"`
	Rank          int      `json:"rank"`
	CitationLabel string   `json:"citation_label"`
	CanonicalURL  string   `json:"canonical_url"`
	SourceOrg     string   `json:"source_org"`
	Year          int      `json:"year,omitempty"`
	ContentType   string   `json:"content_type"`
	License       string   `json:"license"`
	Tags          []string `json:"tags,omitempty"`
}

// BestScore returns the most refined score available: fused, then rerank, then raw similarity.
func (c RetrievalChunk) BestScore() float64 {
	if c.FinalScore != nil {
		return *c.FinalScore
	}
	if c.RerankScore != nil {
		return *c.RerankScore
	}
	return c.Score
}

// VectorHit is a raw vector store match before it is normalised into a RetrievalChunk.
type VectorHit struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type RerankCandidate struct {
	ID   string
	Text string
}

type RerankScore struct {
	ID    string
	Score float64
}

type FilterOp string

const (
	FilterOpAny FilterOp = "any"
	FilterOpAll FilterOp = "all"
	FilterOpGTE FilterOp = "gte"
	FilterOpLTE FilterOp = "lte"
)

// FilterCondition is one normalised constraint handed to the vector store.
type FilterCondition struct {
	Field  string   `json:"field"`
	Op     FilterOp `json:"op"`
	Values []string `json:"values,omitempty"`
	Number int      `json:"number,omitempty"`
}

type MetadataFilter struct {
	ContentTypes  []string `json:"content_types,omitempty" yaml:"content_types"`
	YearFrom      *int     `json:"year_from,omitempty" yaml:"year_from"`
	YearTo        *int     `json:"year_to,omitempty" yaml:"year_to"`
	RequiredTags  []string `json:"required_tags,omitempty" yaml:"required_tags"`
	PreferredTags []string `json:"preferred_tags,omitempty" yaml:"preferred_tags"`
	SourceOrgs    []string `json:"source_orgs,omitempty" yaml:"source_orgs"`
}

func (f MetadataFilter) IsEmpty() bool {
	return len(f.ContentTypes) == 0 &&
		f.YearFrom == nil &&
		f.YearTo == nil &&
		len(f.RequiredTags) == 0 &&
		len(f.PreferredTags) == 0 &&
		len(f.SourceOrgs) == 0
}

// Conditions lists the hard constraints of the filter. Preferred tags are advisory and never
// become store conditions.
func (f MetadataFilter) Conditions() []FilterCondition {
	out := make([]FilterCondition, 0, 5)
	if len(f.ContentTypes) > 0 {
		out = append(out, FilterCondition{Field: "content_type", Op: FilterOpAny, Values: f.ContentTypes})
	}
	if len(f.SourceOrgs) > 0 {
		out = append(out, FilterCondition{Field: "source_org", Op: FilterOpAny, Values: f.SourceOrgs})
	}
	if f.YearFrom != nil {
		out = append(out, FilterCondition{Field: "year", Op: FilterOpGTE, Number: *f.YearFrom})
	}
	if f.YearTo != nil {
		out = append(out, FilterCondition{Field: "year", Op: FilterOpLTE, Number: *f.YearTo})
	}
	if len(f.RequiredTags) > 0 {
		out = append(out, FilterCondition{Field: "tags", Op: FilterOpAll, Values: f.RequiredTags})
	}
	return out
}

// Describe renders the filter for statistics and logs, e.g. "content_type in [letter]".
func (f MetadataFilter) Describe() []string {
	conds := f.Conditions()
	out := make([]string, 0, len(conds)+1)
	for _, c := range conds {
		switch c.Op {
		case FilterOpGTE:
			out = append(out, c.Field+" >= "+strconv.Itoa(c.Number))
		case FilterOpLTE:
			out = append(out, c.Field+" <= "+strconv.Itoa(c.Number))
		case FilterOpAll:
			out = append(out, c.Field+" all ["+strings.Join(c.Values, ", ")+"]")
		default:
			out = append(out, c.Field+" in ["+strings.Join(c.Values, ", ")+"]")
		}
	}
	if len(f.PreferredTags) > 0 {
		out = append(out, "preferred tags ["+strings.Join(f.PreferredTags, ", ")+"]")
	}
	return out
}

type RetrievalOverrides struct {
	Namespaces []string        `json:"namespaces,omitempty"`
	Threshold  *float64        `json:"threshold,omitempty"`
	Limit      *int            `json:"limit,omitempty"`
	MinResults *int            `json:"min_results,omitempty"`
	Rerank     *bool           `json:"rerank,omitempty"`
	RerankTopN *int            `json:"rerank_top_n,omitempty"`
	Filters    *MetadataFilter `json:"filters,omitempty"`
}

type RetrievalRequest struct {
	Query     string             `json:"query"`
	Persona   string             `json:"persona,omitempty"`
	SessionID string             `json:"session_id,omitempty"`
	Overrides RetrievalOverrides `json:"overrides"`
}

const (
	MaxQueryLength = 2000
	MaxResultLimit = 50
)

// Validate reports malformed requests. Semantic problems such as an unknown persona are not errors.
func (r RetrievalRequest) Validate() error {
	query := strings.TrimSpace(r.Query)
	switch {
	case query == "":
		return WrapError(ErrInvalidInput, "validate request", errors.New("query is required"))
	case len([]rune(query)) > MaxQueryLength:
		return WrapError(ErrInvalidInput, "validate request", errors.New("query exceeds "+strconv.Itoa(MaxQueryLength)+" characters"))
	}
	o := r.Overrides
	if o.Threshold != nil && (*o.Threshold < 0 || *o.Threshold > 1) {
		return WrapError(ErrInvalidInput, "validate request", errors.New("threshold must be within [0,1]"))
	}
	if o.Limit != nil && (*o.Limit < 1 || *o.Limit > MaxResultLimit) {
		return WrapError(ErrInvalidInput, "validate request", errors.New("limit must be within [1,"+strconv.Itoa(MaxResultLimit)+"]"))
	}
	if o.MinResults != nil && *o.MinResults < 0 {
		return WrapError(ErrInvalidInput, "validate request", errors.New("min_results must not be negative"))
	}
	if o.RerankTopN != nil && *o.RerankTopN < 1 {
		return WrapError(ErrInvalidInput, "validate request", errors.New("rerank_top_n must be positive"))
	}
	for _, ns := range o.Namespaces {
		if strings.TrimSpace(ns) == "" {
			return WrapError(ErrInvalidInput, "validate request", errors.New("namespace must not be blank"))
		}
	}
	return nil
}

type PersonaSource string

const (
	PersonaSourceRequest  PersonaSource = "request"
	PersonaSourceSession  PersonaSource = "session"
	PersonaSourceDetected PersonaSource = "detected"
	PersonaSourceDefault  PersonaSource = "default"
)

// ResolvedParams is the fully resolved parameter set for one pipeline run.
type ResolvedParams struct {
	Persona          PersonaKey         `json:"persona"`
	PersonaSource    PersonaSource      `json:"persona_source"`
	PersonaFallback  bool               `json:"persona_fallback"`
	Namespaces       []string           `json:"namespaces"`
	Threshold        float64            `json:"threshold"`
	Limit            int                `json:"limit"`
	MinResults       int                `json:"min_results"`
	Rerank           bool               `json:"rerank"`
	RerankTopN       int                `json:"rerank_top_n"`
	SemanticWeight   float64            `json:"semantic_weight"`
	RerankWeight     float64            `json:"rerank_weight"`
	Filter           MetadataFilter     `json:"filter"`
	Expansion        ExpansionRules     `json:"expansion"`
	Context          ContextPreferences `json:"context"`
	Tone             string             `json:"tone"`
	CitationRequired bool               `json:"citation_required"`
}

type FormattedContext struct {
	Text          string  `json:"text"`
	TokenEstimate int     `json:"token_estimate"`
	MaxScore      float64 `json:"max_score"`
	ChunkCount    int     `json:"chunk_count"`
	Empty         bool    `json:"empty"`
}

type StageLatency struct {
	ExpansionMs  int64 `json:"expansion_ms"`
	EmbeddingMs  int64 `json:"embedding_ms"`
	RetrievalMs  int64 `json:"retrieval_ms"`
	RerankMs     int64 `json:"rerank_ms"`
	FormattingMs int64 `json:"formatting_ms"`
	TotalMs      int64 `json:"total_ms"`
}

// Statistics explains a pipeline run on its own: counts, score summary, scope and timings.
type Statistics struct {
	RetrievedCount     int          `json:"retrieved_count"`
	RerankedCount      int          `json:"reranked_count"`
	ReturnedCount      int          `json:"returned_count"`
	TopScore           float64      `json:"top_score"`
	AverageScore       float64      `json:"average_score"`
	NamespacesSearched []string     `json:"namespaces_searched"`
	FailedNamespaces   []string     `json:"failed_namespaces,omitempty"`
	FiltersApplied     []string     `json:"filters_applied"`
	RerankApplied      bool         `json:"rerank_applied"`
	RerankFallback     bool         `json:"rerank_fallback"`
	Latency            StageLatency `json:"latency"`
}

type RetrievalEnvelope struct {
	RunID            string           `json:"run_id"`
	Query            string           `json:"query"`
	ExpandedQuery    string           `json:"expanded_query"`
	AddedTerms       []string         `json:"added_terms"`
	Params           ResolvedParams   `json:"params"`
	Chunks           []RetrievalChunk `json:"chunks"`
	Namespaces       []string         `json:"namespaces"`
	FailedNamespaces []string         `json:"failed_namespaces,omitempty"`
	Filters          MetadataFilter   `json:"filters"`
	Context          FormattedContext `json:"context"`
	Statistics       Statistics       `json:"statistics"`
	Sufficient       bool             `json:"sufficient"`
	CreatedAt        time.Time        `json:"created_at"`
}
