package persona

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
)

var knownPersonas = map[domain.PersonaKey]struct{}{
	domain.PersonaEducator:   {},
	domain.PersonaResearcher: {},
	domain.PersonaCreator:    {},
	domain.PersonaBuilder:    {},
}

var knownTones = map[string]struct{}{
	"instructional": {},
	"scholarly":     {},
	"narrative":     {},
	"technical":     {},
	"neutral":       {},
}

// validateFile collects every problem in the file instead of stopping at the first one.
func validateFile(f file, templates []namedTemplate) []error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	v := f.Validation
	if v.MinNamespaces > v.MaxNamespaces {
		add("validation: min_namespaces %d exceeds max_namespaces %d", v.MinNamespaces, v.MaxNamespaces)
	}
	if v.MinThreshold > v.MaxThreshold || v.MaxThreshold > 1 {
		add("validation: threshold bounds [%.2f, %.2f] are invalid", v.MinThreshold, v.MaxThreshold)
	}
	if len(templates) == 0 {
		add("no personas defined")
	}

	known := make(map[string]struct{}, len(f.KnownNamespaces))
	for _, ns := range f.KnownNamespaces {
		known[strings.TrimSpace(ns)] = struct{}{}
	}

	defined := make(map[domain.PersonaKey]struct{}, len(templates))
	for _, nt := range templates {
		defined[nt.template.Key] = struct{}{}
		problems = append(problems, validateTemplate(nt.template, v, known, f.Dictionaries)...)
	}

	if strings.TrimSpace(f.DefaultPersona) == "" {
		add("default_persona is required")
	} else if _, ok := defined[domain.PersonaKey(f.DefaultPersona)]; !ok {
		add("default_persona %q is not defined", f.DefaultPersona)
	}

	sel := f.Selection
	if sel.ConfidenceThreshold < 0 || sel.ConfidenceThreshold > 1 {
		add("selection: confidence_threshold %.2f outside [0,1]", sel.ConfidenceThreshold)
	}
	for key, patterns := range sel.Patterns {
		if _, ok := defined[domain.PersonaKey(key)]; !ok {
			add("selection: patterns reference undefined persona %q", key)
		}
		for _, p := range patterns {
			if _, err := regexp.Compile(p); err != nil {
				add("selection: persona %q pattern %q: %v", key, p, err)
			}
		}
	}

	for strategy := range f.Dictionaries {
		if !domain.ExpansionStrategy(strategy).Valid() {
			add("expansion_dictionaries: unknown strategy %q", strategy)
		}
	}
	return problems
}

func validateTemplate(
	t domain.PersonaTemplate,
	v fileValidation,
	knownNamespaces map[string]struct{},
	dictionaries map[string]domain.ExpansionDictionary,
) []error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf("persona %q: "+format, append([]any{t.Key}, args...)...))
	}

	if _, ok := knownPersonas[t.Key]; !ok {
		add("unknown persona key")
	}
	if strings.TrimSpace(t.DisplayName) == "" {
		add("display_name is required")
	}

	if n := len(t.Namespaces); n < v.MinNamespaces || n > v.MaxNamespaces {
		add("namespace count %d outside [%d,%d]", n, v.MinNamespaces, v.MaxNamespaces)
	}
	seen := make(map[string]struct{}, len(t.Namespaces))
	for _, ns := range t.Namespaces {
		if _, dup := seen[ns]; dup {
			add("namespace %q listed twice", ns)
		}
		seen[ns] = struct{}{}
		if len(knownNamespaces) > 0 {
			if _, ok := knownNamespaces[ns]; !ok {
				add("unknown namespace %q", ns)
			}
		}
	}

	e := t.Expansion
	if !e.Strategy.Valid() {
		add("unknown expansion strategy %q", e.Strategy)
	}
	if e.MaxTerms < 0 {
		add("expansion max_terms must not be negative")
	}
	if e.Strategy != domain.ExpansionNone && (e.IncludeSynonyms || e.IncludeRelatedTerms) {
		if _, ok := dictionaries[string(e.Strategy)]; !ok {
			add("expansion strategy %q has no dictionary", e.Strategy)
		}
	}

	r := t.Retrieval
	if r.SimilarityThreshold < v.MinThreshold || r.SimilarityThreshold > v.MaxThreshold {
		add("similarity_threshold %.2f outside [%.2f,%.2f]", r.SimilarityThreshold, v.MinThreshold, v.MaxThreshold)
	}
	if r.Limit <= 0 || r.Limit > domain.MaxResultLimit {
		add("limit %d outside [1,%d]", r.Limit, domain.MaxResultLimit)
	}
	if r.MinResults < 0 || r.MinResults > r.Limit {
		add("min_results %d outside [0,limit]", r.MinResults)
	}
	if r.Rerank && r.RerankTopN <= 0 {
		add("rerank_top_n must be positive when rerank is enabled")
	}
	if r.SemanticWeight < 0 || r.SemanticWeight > 1 || r.RerankWeight < 0 || r.RerankWeight > 1 {
		add("fusion weights must be within [0,1]")
	}

	yr := t.Filters.YearRange
	if yr.From != nil && yr.To != nil && *yr.From > *yr.To {
		add("year_range from %d is after to %d", *yr.From, *yr.To)
	}

	if t.Context.MaxChunkChars < 0 {
		add("context max_chunk_chars must not be negative")
	}
	if _, ok := knownTones[t.Answer.Tone]; !ok {
		add("unknown tone %q", t.Answer.Tone)
	}
	return problems
}
