package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
	"github.com/kirillkom/grounded-archive/internal/core/persona"
)

type embedderFake struct {
	mu    sync.Mutex
	calls int
	query string
	err   error
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.query = text
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// storeFake answers per namespace. A namespace listed in block waits for the context to end.
type storeFake struct {
	mu       sync.Mutex
	hits     map[string][]domain.VectorHit
	errs     map[string]error
	block    map[string]bool
	searched []string
	filters  []domain.MetadataFilter
}

func (f *storeFake) Search(
	ctx context.Context,
	_ []float32,
	namespace string,
	filter domain.MetadataFilter,
	_ int,
	_ float64,
) ([]domain.VectorHit, error) {
	f.mu.Lock()
	f.searched = append(f.searched, namespace)
	f.filters = append(f.filters, filter)
	blocked := f.block[namespace]
	err := f.errs[namespace]
	hits := f.hits[namespace]
	f.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// rerankerFake scores candidates by their text.
type rerankerFake struct {
	scores map[string]float64
	err    error
	calls  int
}

func (f *rerankerFake) Rerank(_ context.Context, _ string, candidates []domain.RerankCandidate) ([]domain.RerankScore, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.RerankScore, 0, len(candidates))
	for _, c := range candidates {
		if s, ok := f.scores[c.Text]; ok {
			out = append(out, domain.RerankScore{ID: c.ID, Score: s})
		}
	}
	return out, nil
}

type drafterFake struct {
	draft domain.Draft
	err   error
	calls int
	last  domain.DraftRequest
}

func (f *drafterFake) Draft(_ context.Context, req domain.DraftRequest) (domain.Draft, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return domain.Draft{}, f.err
	}
	return f.draft, nil
}

type publisherFake struct {
	published []*domain.AnswerContract
	err       error
}

func (f *publisherFake) PublishContract(_ context.Context, c *domain.AnswerContract) error {
	f.published = append(f.published, c)
	return f.err
}

type sessionsFake map[string]domain.PersonaKey

func (f sessionsFake) Select(id string, key domain.PersonaKey) { f[id] = key }
func (f sessionsFake) Lookup(id string) (domain.PersonaKey, bool) {
	key, ok := f[id]
	return key, ok
}
func (f sessionsFake) Sweep() int { return 0 }

var errStoreDown = errors.New("store down")

func intPtr(v int) *int { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool { return &v }

func testTemplates() []domain.PersonaTemplate {
	return []domain.PersonaTemplate{
		{
			Key:         domain.PersonaEducator,
			DisplayName: "Educator",
			Namespaces:  []string{"primary_sources"},
			Expansion: domain.ExpansionRules{
				Strategy:            domain.ExpansionEducational,
				IncludeSynonyms:     true,
				IncludeRelatedTerms: true,
				MaxTerms:            4,
			},
			Filters: domain.FilterTemplate{ContentTypes: []string{"Document", "letter"}},
			Retrieval: domain.RetrievalDefaults{
				SimilarityThreshold: 0.7,
				Limit:               5,
				MinResults:          1,
				Rerank:              false,
				RerankTopN:          3,
				SemanticWeight:      0.5,
				RerankWeight:        0.5,
			},
			Context: domain.ContextPreferences{Header: "Classroom evidence", IncludeURLs: true, MaxChunkChars: 200},
			Answer:  domain.AnswerPreferences{Tone: "instructional", CitationRequired: true},
		},
		{
			Key:         domain.PersonaResearcher,
			DisplayName: "Researcher",
			Namespaces:  []string{"primary_sources", "scholarly_articles"},
			Expansion:   domain.ExpansionRules{Strategy: domain.ExpansionNone},
			Retrieval: domain.RetrievalDefaults{
				SimilarityThreshold: 0.75,
				Limit:               5,
				MinResults:          3,
				Rerank:              true,
				RerankTopN:          3,
				SemanticWeight:      0.5,
				RerankWeight:        0.5,
			},
			Answer: domain.AnswerPreferences{Tone: "scholarly", CitationRequired: true},
		},
		{
			Key:         domain.PersonaBuilder,
			DisplayName: "Builder",
			Namespaces:  []string{"datasets"},
			Expansion:   domain.ExpansionRules{Strategy: domain.ExpansionNone},
			Retrieval:   domain.RetrievalDefaults{SimilarityThreshold: 0.6, Limit: 5},
			Answer:      domain.AnswerPreferences{Tone: "technical", CitationRequired: false},
		},
	}
}

func testRegistry() *persona.Registry {
	return persona.NewRegistry(testTemplates(), map[domain.ExpansionStrategy]domain.ExpansionDictionary{
		domain.ExpansionEducational: {
			Synonyms: map[string][]string{"civil rights": {"equal rights"}},
			Related:  map[string][]string{"civil rights act": {"title vii", "public accommodations"}},
		},
	})
}

func hit(id, doc string, score float64) domain.VectorHit {
	return domain.VectorHit{
		ID:    id,
		Score: score,
		Text:  "text of " + id,
		Metadata: map[string]any{
			"chunk_id":       id,
			"document_id":    doc,
			"citation_label": "Label " + doc,
			"canonical_url":  "https://archive.example/" + doc,
			"source_org":     "National Archives",
			"year":           float64(1964),
			"content_type":   "document",
			"license":        "public-domain",
		},
	}
}
