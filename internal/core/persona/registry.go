package persona

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
)

// Registry maps persona keys to immutable templates. It is built once and only read afterwards,
// so it is safe for concurrent use without locking.
type Registry struct {
	order        []domain.PersonaKey
	templates    map[domain.PersonaKey]domain.PersonaTemplate
	defaultKey   domain.PersonaKey
	dictionaries map[domain.ExpansionStrategy]domain.ExpansionDictionary

	autoDetect          bool
	confidenceThreshold float64
	patterns            map[domain.PersonaKey][]*regexp.Regexp
}

func newRegistry(f file, templates []namedTemplate) (*Registry, error) {
	r := &Registry{
		order:               make([]domain.PersonaKey, 0, len(templates)),
		templates:           make(map[domain.PersonaKey]domain.PersonaTemplate, len(templates)),
		defaultKey:          domain.PersonaKey(f.DefaultPersona),
		dictionaries:        make(map[domain.ExpansionStrategy]domain.ExpansionDictionary, len(f.Dictionaries)),
		autoDetect:          true,
		confidenceThreshold: f.Selection.ConfidenceThreshold,
		patterns:            make(map[domain.PersonaKey][]*regexp.Regexp, len(f.Selection.Patterns)),
	}
	if f.Selection.AutoDetect != nil {
		r.autoDetect = *f.Selection.AutoDetect
	}

	for _, nt := range templates {
		r.order = append(r.order, nt.template.Key)
		r.templates[nt.template.Key] = cloneTemplate(nt.template)
	}
	for strategy, dict := range f.Dictionaries {
		r.dictionaries[domain.ExpansionStrategy(strategy)] = cloneDictionary(dict)
	}
	for key, patterns := range f.Selection.Patterns {
		compiled := make([]*regexp.Regexp, 0, len(patterns))
		for _, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, domain.WrapError(domain.ErrConfiguration, "compile selection pattern", fmt.Errorf("%s: %w", key, err))
			}
			compiled = append(compiled, re)
		}
		r.patterns[domain.PersonaKey(key)] = compiled
	}
	return r, nil
}

// NewRegistry builds a registry directly from templates, mainly for tests and embedded setups.
// The first template is the default persona.
func NewRegistry(templates []domain.PersonaTemplate, dictionaries map[domain.ExpansionStrategy]domain.ExpansionDictionary) *Registry {
	r := &Registry{
		templates:    make(map[domain.PersonaKey]domain.PersonaTemplate, len(templates)),
		dictionaries: make(map[domain.ExpansionStrategy]domain.ExpansionDictionary, len(dictionaries)),
		patterns:     map[domain.PersonaKey][]*regexp.Regexp{},
	}
	for _, t := range templates {
		if _, ok := r.templates[t.Key]; !ok {
			r.order = append(r.order, t.Key)
		}
		r.templates[t.Key] = cloneTemplate(t)
	}
	if len(r.order) > 0 {
		r.defaultKey = r.order[0]
	}
	for k, d := range dictionaries {
		r.dictionaries[k] = cloneDictionary(d)
	}
	return r
}

// Lookup returns a copy of the template registered under key.
func (r *Registry) Lookup(key domain.PersonaKey) (domain.PersonaTemplate, bool) {
	t, ok := r.templates[domain.PersonaKey(strings.ToLower(strings.TrimSpace(string(key))))]
	if !ok {
		return domain.PersonaTemplate{}, false
	}
	return cloneTemplate(t), true
}

func (r *Registry) DefaultKey() domain.PersonaKey {
	return r.defaultKey
}

// Default returns the template used when no other selection applies.
func (r *Registry) Default() domain.PersonaTemplate {
	return cloneTemplate(r.templates[r.defaultKey])
}

// List returns templates in file order.
func (r *Registry) List() []domain.PersonaTemplate {
	out := make([]domain.PersonaTemplate, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, cloneTemplate(r.templates[key]))
	}
	return out
}

// Dictionary returns the expansion dictionary of a strategy, if one is configured.
func (r *Registry) Dictionary(strategy domain.ExpansionStrategy) (domain.ExpansionDictionary, bool) {
	d, ok := r.dictionaries[strategy]
	return d, ok
}

func cloneTemplate(t domain.PersonaTemplate) domain.PersonaTemplate {
	out := t
	out.Namespaces = cloneStrings(t.Namespaces)
	out.ExampleQueries = cloneStrings(t.ExampleQueries)
	out.Filters.ContentTypes = cloneStrings(t.Filters.ContentTypes)
	out.Filters.RequiredTags = cloneStrings(t.Filters.RequiredTags)
	out.Filters.PreferredTags = cloneStrings(t.Filters.PreferredTags)
	out.Filters.YearRange.From = cloneInt(t.Filters.YearRange.From)
	out.Filters.YearRange.To = cloneInt(t.Filters.YearRange.To)
	return out
}

func cloneDictionary(d domain.ExpansionDictionary) domain.ExpansionDictionary {
	return domain.ExpansionDictionary{
		Synonyms: cloneTermMap(d.Synonyms),
		Related:  cloneTermMap(d.Related),
	}
}

func cloneTermMap(in map[string][]string) map[string][]string {
	if in == nil {
		return nil
	}
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[strings.ToLower(strings.TrimSpace(k))] = cloneStrings(v)
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
