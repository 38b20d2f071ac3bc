package usecase

import (
	"reflect"
	"testing"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
)

func TestCompileFilterUserOverridesPerField(t *testing.T) {
	template := domain.MetadataFilter{
		ContentTypes: []string{"Letter", " document ", "letter"},
		RequiredTags: []string{"k12"},
		YearFrom:     intPtr(1950),
	}
	user := &domain.MetadataFilter{
		ContentTypes: []string{"Photograph"},
		YearFrom:     intPtr(1970),
		YearTo:       intPtr(1960),
	}

	got := CompileFilter(template, user)
	if !reflect.DeepEqual(got.ContentTypes, []string{"photograph"}) {
		t.Fatalf("expected user content types, got %v", got.ContentTypes)
	}
	if !reflect.DeepEqual(got.RequiredTags, []string{"k12"}) {
		t.Fatalf("expected template tags to survive, got %v", got.RequiredTags)
	}
	if *got.YearFrom != 1960 || *got.YearTo != 1970 {
		t.Fatalf("expected inverted range to be swapped, got %d..%d", *got.YearFrom, *got.YearTo)
	}
}

func TestCompileFilterNormalizesTemplate(t *testing.T) {
	got := CompileFilter(domain.MetadataFilter{ContentTypes: []string{"Letter", " document ", "letter", ""}}, nil)
	if !reflect.DeepEqual(got.ContentTypes, []string{"document", "letter"}) {
		t.Fatalf("expected normalized content types, got %v", got.ContentTypes)
	}
}

func TestCompileFilterDoesNotAliasInput(t *testing.T) {
	from := 1900
	template := domain.MetadataFilter{YearFrom: &from}
	got := CompileFilter(template, nil)
	*got.YearFrom = 2000
	if from != 1900 {
		t.Fatalf("compiled filter aliases the template year")
	}
}

func TestResolveParamsPrecedence(t *testing.T) {
	tpl := testTemplates()[0]
	defaults := Defaults{Namespaces: []string{"fallback"}, Threshold: 0.6, Limit: 20, MinResults: 4}

	t.Run("override wins", func(t *testing.T) {
		req := domain.RetrievalRequest{Overrides: domain.RetrievalOverrides{
			Namespaces: []string{"legislation"},
			Threshold:  floatPtr(0.9),
			Limit:      intPtr(2),
			MinResults: intPtr(0),
			Rerank:     boolPtr(true),
			RerankTopN: intPtr(1),
		}}
		got := ResolveParams(req, tpl, defaults)
		if !reflect.DeepEqual(got.Namespaces, []string{"legislation"}) || got.Threshold != 0.9 || got.Limit != 2 || got.MinResults != 0 {
			t.Fatalf("expected overrides, got %+v", got)
		}
		if !got.Rerank || got.RerankTopN != 1 {
			t.Fatalf("expected rerank overrides, got rerank=%v topN=%d", got.Rerank, got.RerankTopN)
		}
	})

	t.Run("template beats default", func(t *testing.T) {
		got := ResolveParams(domain.RetrievalRequest{}, tpl, defaults)
		if !reflect.DeepEqual(got.Namespaces, []string{"primary_sources"}) || got.Threshold != 0.7 || got.Limit != 5 || got.MinResults != 1 {
			t.Fatalf("expected template values, got %+v", got)
		}
		if got.Tone != "instructional" || !got.CitationRequired {
			t.Fatalf("expected answer prefs from template, got tone=%q required=%v", got.Tone, got.CitationRequired)
		}
	})

	t.Run("default fills gaps", func(t *testing.T) {
		bare := domain.PersonaTemplate{Key: domain.PersonaBuilder}
		got := ResolveParams(domain.RetrievalRequest{}, bare, defaults)
		if !reflect.DeepEqual(got.Namespaces, []string{"fallback"}) || got.Threshold != 0.6 || got.Limit != 20 || got.MinResults != 4 {
			t.Fatalf("expected defaults, got %+v", got)
		}
		if got.SemanticWeight != 0.5 || got.RerankWeight != 0.5 || got.Tone != "neutral" {
			t.Fatalf("expected built-in fallbacks, got %+v", got)
		}
		if got.Expansion.Strategy != domain.ExpansionNone {
			t.Fatalf("expected expansion strategy none, got %q", got.Expansion.Strategy)
		}
	})
}

func TestPersonaSelectorOrder(t *testing.T) {
	reg := testRegistry()
	sessions := sessionsFake{"s-1": domain.PersonaResearcher}
	selector := NewPersonaSelector(reg, sessions)

	got := selector.Select(domain.RetrievalRequest{Query: "q", Persona: "builder", SessionID: "s-1"})
	if got.Template.Key != domain.PersonaBuilder || got.Source != domain.PersonaSourceRequest {
		t.Fatalf("expected explicit persona, got %s via %s", got.Template.Key, got.Source)
	}

	got = selector.Select(domain.RetrievalRequest{Query: "q", SessionID: "s-1"})
	if got.Template.Key != domain.PersonaResearcher || got.Source != domain.PersonaSourceSession {
		t.Fatalf("expected session persona, got %s via %s", got.Template.Key, got.Source)
	}

	got = selector.Select(domain.RetrievalRequest{Query: "q"})
	if got.Template.Key != domain.PersonaEducator || got.Source != domain.PersonaSourceDefault || got.Fallback {
		t.Fatalf("expected default persona without fallback flag, got %+v", got)
	}
}

func TestPersonaSelectorUnknownPersonaFallsBack(t *testing.T) {
	selector := NewPersonaSelector(testRegistry(), nil)

	got := selector.Select(domain.RetrievalRequest{Query: "q", Persona: "archivist"})
	if got.Template.Key != domain.PersonaEducator {
		t.Fatalf("expected default persona, got %s", got.Template.Key)
	}
	if !got.Fallback || got.Source != domain.PersonaSourceDefault {
		t.Fatalf("expected fallback flag, got %+v", got)
	}
}

func TestExpandQueryAddsDictionaryTerms(t *testing.T) {
	rules := domain.ExpansionRules{
		Strategy:            domain.ExpansionEducational,
		IncludeSynonyms:     true,
		IncludeRelatedTerms: true,
		MaxTerms:            3,
	}

	got := ExpandQuery("What did the Civil Rights Act of 1964 prohibit?", rules, testRegistry())
	want := []string{"equal rights", "title vii", "public accommodations"}
	if !reflect.DeepEqual(got.AddedTerms, want) {
		t.Fatalf("expected %v, got %v", want, got.AddedTerms)
	}
	if got.Query != "What did the Civil Rights Act of 1964 prohibit? equal rights title vii public accommodations" {
		t.Fatalf("unexpected expanded query %q", got.Query)
	}
}

func TestExpandQueryRespectsBudget(t *testing.T) {
	rules := domain.ExpansionRules{Strategy: domain.ExpansionEducational, IncludeSynonyms: true, IncludeRelatedTerms: true, MaxTerms: 1}

	got := ExpandQuery("civil rights act", rules, testRegistry())
	if len(got.AddedTerms) != 1 {
		t.Fatalf("expected one term, got %v", got.AddedTerms)
	}
}

func TestExpandQueryNoneIsPassthrough(t *testing.T) {
	got := ExpandQuery("  civil rights  ", domain.ExpansionRules{Strategy: domain.ExpansionNone, MaxTerms: 5, IncludeSynonyms: true}, testRegistry())
	if got.Query != "civil rights" || len(got.AddedTerms) != 0 || got.AddedTerms == nil {
		t.Fatalf("expected passthrough, got %+v", got)
	}
}

func TestExpandQueryExtractsEntities(t *testing.T) {
	rules := domain.ExpansionRules{Strategy: domain.ExpansionAcademic, IncludeEntities: true, MaxTerms: 5}

	got := ExpandQuery("how did the march affect Fannie Lou Hamer and the Student Nonviolent Coordinating Committee", rules, nil)
	want := []string{"Fannie Lou Hamer", "Student Nonviolent Coordinating Committee"}
	if !reflect.DeepEqual(got.AddedTerms, want) {
		t.Fatalf("expected %v, got %v", want, got.AddedTerms)
	}

	entities := extractEntities("Letters from the Board of Education of Topeka to Martin Luther King Jr.")
	wantEntities := []string{"Board of Education of Topeka", "Martin Luther King Jr"}
	if !reflect.DeepEqual(entities, wantEntities) {
		t.Fatalf("expected %v, got %v", wantEntities, entities)
	}
}
