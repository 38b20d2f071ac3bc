package domain

type PersonaKey string

const (
	PersonaEducator   PersonaKey = "educator"
	PersonaResearcher PersonaKey = "researcher"
	PersonaCreator    PersonaKey = "creator"
	PersonaBuilder    PersonaKey = "builder"
)

type ExpansionStrategy string

const (
	ExpansionNone        ExpansionStrategy = "none"
	ExpansionEducational ExpansionStrategy = "educational"
	ExpansionAcademic    ExpansionStrategy = "academic"
	ExpansionCreative    ExpansionStrategy = "creative"
	ExpansionTechnical   ExpansionStrategy = "technical"
)

func (s ExpansionStrategy) Valid() bool {
	switch s {
	case ExpansionNone, ExpansionEducational, ExpansionAcademic, ExpansionCreative, ExpansionTechnical:
		return true
	default:
		return false
	}
}

type ExpansionRules struct {
	Strategy            ExpansionStrategy `json:"strategy" yaml:"strategy"`
	IncludeSynonyms     bool              `json:"include_synonyms" yaml:"include_synonyms"`
	IncludeRelatedTerms bool              `json:"include_related_terms" yaml:"include_related_terms"`
	IncludeEntities     bool              `json:"include_entities" yaml:"include_entities"`
	MaxTerms            int               `json:"max_terms" yaml:"max_terms"`
}

// ExpansionDictionary holds the term maps of one strategy. Keys are matched as lowercase
// substrings of the query.
type ExpansionDictionary struct {
	Synonyms map[string][]string `json:"synonyms,omitempty" yaml:"synonyms"`
	Related  map[string][]string `json:"related,omitempty" yaml:"related"`
}

type YearRange struct {
	From *int `json:"from,omitempty" yaml:"from"`
	To   *int `json:"to,omitempty" yaml:"to"`
}

type FilterTemplate struct {
	ContentTypes  []string  `json:"content_types,omitempty" yaml:"content_types"`
	YearRange     YearRange `json:"year_range" yaml:"year_range"`
	RequiredTags  []string  `json:"required_tags,omitempty" yaml:"required_tags"`
	PreferredTags []string  `json:"preferred_tags,omitempty" yaml:"preferred_tags"`
}

// AsFilter converts the template into the metadata filter shape used by the compiler.
func (t FilterTemplate) AsFilter() MetadataFilter {
	return MetadataFilter{
		ContentTypes:  t.ContentTypes,
		YearFrom:      t.YearRange.From,
		YearTo:        t.YearRange.To,
		RequiredTags:  t.RequiredTags,
		PreferredTags: t.PreferredTags,
	}
}

type RetrievalDefaults struct {
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`
	Limit               int     `json:"limit" yaml:"limit"`
	MinResults          int     `json:"min_results" yaml:"min_results"`
	Rerank              bool    `json:"rerank" yaml:"rerank"`
	RerankTopN          int     `json:"rerank_top_n" yaml:"rerank_top_n"`
	SemanticWeight      float64 `json:"semantic_weight" yaml:"semantic_weight"`
	RerankWeight        float64 `json:"rerank_weight" yaml:"rerank_weight"`
}

type ContextPreferences struct {
	Header        string `json:"header,omitempty" yaml:"header"`
	IncludeURLs   bool   `json:"include_urls" yaml:"include_urls"`
	IncludeTags   bool   `json:"include_tags" yaml:"include_tags"`
	MaxChunkChars int    `json:"max_chunk_chars,omitempty" yaml:"max_chunk_chars"`
}

type AnswerPreferences struct {
	Tone             string `json:"tone" yaml:"tone"`
	CitationRequired bool   `json:"citation_required" yaml:"citation_required"`
}

// PersonaTemplate is immutable after load and shared read-only across requests.
type PersonaTemplate struct {
	Key            PersonaKey         `json:"key" yaml:"-"`
	DisplayName    string             `json:"display_name" yaml:"display_name"`
	Description    string             `json:"description,omitempty" yaml:"description"`
	Namespaces     []string           `json:"namespaces" yaml:"namespaces"`
	Expansion      ExpansionRules     `json:"expansion" yaml:"expansion"`
	Filters        FilterTemplate     `json:"filters" yaml:"filters"`
	Retrieval      RetrievalDefaults  `json:"retrieval" yaml:"retrieval"`
	Context        ContextPreferences `json:"context" yaml:"context"`
	Answer         AnswerPreferences  `json:"answer" yaml:"answer"`
	ExampleQueries []string           `json:"example_queries,omitempty" yaml:"example_queries"`
}

// PersonaDetection is the outcome of pattern-based persona auto-detection.
type PersonaDetection struct {
	Key        PersonaKey `json:"key,omitempty"`
	Confidence float64    `json:"confidence"`
	Matched    bool       `json:"matched"`
}
