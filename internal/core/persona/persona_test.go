package persona

import (
	"strings"
	"testing"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
)

const minimalFile = `
default_persona: educator
known_namespaces: [primary_sources, curriculum]
selection:
  confidence_threshold: 0.6
  patterns:
    educator: ['(?i)\bclassroom\b']
    researcher: ['(?i)\bhistoriography\b']
expansion_dictionaries:
  educational:
    synonyms:
      voting: [suffrage]
personas:
  educator:
    display_name: Educator
    namespaces: [primary_sources, curriculum]
    expansion: {strategy: educational, include_synonyms: true, max_terms: 3}
    retrieval: {similarity_threshold: 0.7, limit: 5, min_results: 1, rerank: true, rerank_top_n: 3, semantic_weight: 0.5, rerank_weight: 0.5}
    answer: {tone: instructional, citation_required: true}
  researcher:
    display_name: Researcher
    namespaces: [primary_sources]
    expansion: {strategy: none}
    retrieval: {similarity_threshold: 0.8, limit: 10, min_results: 2}
    answer: {tone: scholarly, citation_required: true}
`

func TestLoadShippedPersonaFile(t *testing.T) {
	reg, err := Load("../../../configs/personas.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	list := reg.List()
	if len(list) != 4 {
		t.Fatalf("expected 4 personas, got %d", len(list))
	}
	wantOrder := []domain.PersonaKey{domain.PersonaEducator, domain.PersonaResearcher, domain.PersonaCreator, domain.PersonaBuilder}
	for i, key := range wantOrder {
		if list[i].Key != key {
			t.Fatalf("expected persona %d to be %s, got %s", i, key, list[i].Key)
		}
	}
	if reg.DefaultKey() != domain.PersonaEducator {
		t.Fatalf("expected default educator, got %s", reg.DefaultKey())
	}
	if _, ok := reg.Dictionary(domain.ExpansionEducational); !ok {
		t.Fatalf("expected educational dictionary to be loaded")
	}
}

func TestParseMinimalFile(t *testing.T) {
	reg, err := Parse([]byte(minimalFile))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tpl, ok := reg.Lookup(domain.PersonaResearcher)
	if !ok {
		t.Fatalf("expected researcher to be found")
	}
	if tpl.Retrieval.SimilarityThreshold != 0.8 {
		t.Fatalf("expected threshold 0.8, got %v", tpl.Retrieval.SimilarityThreshold)
	}
	if _, ok := reg.Lookup("archivist"); ok {
		t.Fatalf("expected unknown persona to be not found")
	}
}

func TestLookupReturnsIsolatedCopies(t *testing.T) {
	reg, err := Parse([]byte(minimalFile))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	first, _ := reg.Lookup(domain.PersonaEducator)
	first.Namespaces[0] = "tampered"

	second, _ := reg.Lookup(domain.PersonaEducator)
	if second.Namespaces[0] != "primary_sources" {
		t.Fatalf("registry template was mutated through a lookup copy: %v", second.Namespaces)
	}
}

func TestParseRejectsInvalidTemplates(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantMsg string
	}{
		{
			name: "unknown namespace",
			mutate: func(s string) string {
				return strings.Replace(s, "namespaces: [primary_sources]", "namespaces: [secret_vault]", 1)
			},
			wantMsg: `unknown namespace "secret_vault"`,
		},
		{
			name: "threshold out of bounds",
			mutate: func(s string) string {
				return strings.Replace(s, "similarity_threshold: 0.8", "similarity_threshold: 0.99", 1)
			},
			wantMsg: "similarity_threshold 0.99",
		},
		{
			name: "missing default persona",
			mutate: func(s string) string {
				return strings.Replace(s, "default_persona: educator", "default_persona: archivist", 1)
			},
			wantMsg: `default_persona "archivist" is not defined`,
		},
		{
			name: "unknown tone",
			mutate: func(s string) string {
				return strings.Replace(s, "tone: scholarly", "tone: sarcastic", 1)
			},
			wantMsg: `unknown tone "sarcastic"`,
		},
		{
			name: "bad selection regex",
			mutate: func(s string) string {
				return strings.Replace(s, `'(?i)\bhistoriography\b'`, `'(unclosed'`, 1)
			},
			wantMsg: "pattern",
		},
		{
			name: "duplicate persona",
			mutate: func(s string) string {
				return s + `  educator:
    display_name: Again
`
			},
			wantMsg: "defined more than once",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.mutate(minimalFile)))
			if err == nil {
				t.Fatalf("expected configuration error")
			}
			if !domain.IsKind(err, domain.ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("expected error to mention %q, got %v", tt.wantMsg, err)
			}
		})
	}
}

func TestParseReportsEveryProblem(t *testing.T) {
	broken := strings.Replace(minimalFile, "tone: scholarly", "tone: sarcastic", 1)
	broken = strings.Replace(broken, "similarity_threshold: 0.8", "similarity_threshold: 0.2", 1)

	_, err := Parse([]byte(broken))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "unknown tone") || !strings.Contains(err.Error(), "similarity_threshold") {
		t.Fatalf("expected both problems to be reported, got %v", err)
	}
}

func TestLoadMissingFileIsConfigurationError(t *testing.T) {
	_, err := Load("does-not-exist.yaml")
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestDetect(t *testing.T) {
	reg, err := Load("../../../configs/personas.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name        string
		query       string
		wantKey     domain.PersonaKey
		wantMatched bool
	}{
		{name: "educator", query: "How should I teach the Civil Rights Act in my classroom?", wantKey: domain.PersonaEducator, wantMatched: true},
		{name: "builder", query: "Build a JSON api over the census records", wantKey: domain.PersonaBuilder, wantMatched: true},
		{name: "ambiguous below threshold", query: "Explain the methodology", wantKey: domain.PersonaEducator, wantMatched: false},
		{name: "no signal", query: "Who was Fannie Lou Hamer?", wantKey: "", wantMatched: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reg.Detect(tt.query)
			if got.Key != tt.wantKey || got.Matched != tt.wantMatched {
				t.Fatalf("Detect(%q) = %+v, want key=%q matched=%v", tt.query, got, tt.wantKey, tt.wantMatched)
			}
		})
	}
}
