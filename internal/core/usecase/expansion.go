package usecase

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
)

// Expansion is the outcome of query expansion. AddedTerms is never nil.
type Expansion struct {
	Query      string
	AddedTerms []string
}

// DictionarySource resolves the term dictionary of an expansion strategy.
type DictionarySource interface {
	Dictionary(strategy domain.ExpansionStrategy) (domain.ExpansionDictionary, bool)
}

var entityConnectors = map[string]struct{}{
	"of":  {},
	"the": {},
	"and": {},
	"for": {},
}

// ExpandQuery augments the query with dictionary terms and entity spans, bounded by the rules' term
// budget. Output depends only on its inputs.
func ExpandQuery(query string, rules domain.ExpansionRules, dictionaries DictionarySource) Expansion {
	query = strings.TrimSpace(query)
	out := Expansion{Query: query, AddedTerms: []string{}}
	if rules.Strategy == "" || rules.Strategy == domain.ExpansionNone || rules.MaxTerms <= 0 {
		return out
	}

	lowered := strings.ToLower(query)
	seen := make(map[string]struct{}, rules.MaxTerms)
	// Entity spans come from the query itself, so only dictionary terms are checked against it.
	addTerm := func(term string, skipPresent bool) bool {
		if len(out.AddedTerms) >= rules.MaxTerms {
			return false
		}
		term = strings.TrimSpace(term)
		key := strings.ToLower(term)
		if key == "" || (skipPresent && strings.Contains(lowered, key)) {
			return true
		}
		if _, dup := seen[key]; dup {
			return true
		}
		seen[key] = struct{}{}
		out.AddedTerms = append(out.AddedTerms, term)
		return true
	}
	add := func(term string) bool { return addTerm(term, true) }

	if dictionaries != nil {
		if dict, ok := dictionaries.Dictionary(rules.Strategy); ok {
			if rules.IncludeSynonyms {
				addMatchedTerms(lowered, dict.Synonyms, add)
			}
			if rules.IncludeRelatedTerms {
				addMatchedTerms(lowered, dict.Related, add)
			}
		}
	}

	if rules.IncludeEntities {
		for _, entity := range extractEntities(query) {
			if !addTerm(entity, false) {
				break
			}
		}
	}

	if len(out.AddedTerms) > 0 {
		out.Query = query + " " + strings.Join(out.AddedTerms, " ")
	}
	return out
}

func addMatchedTerms(lowered string, terms map[string][]string, add func(string) bool) {
	keys := make([]string, 0, len(terms))
	for k := range terms {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if key == "" || !strings.Contains(lowered, key) {
			continue
		}
		for _, term := range terms[key] {
			if !add(term) {
				return
			}
		}
	}
}

// extractEntities returns runs of at least two capitalized words, allowing lowercase connectors such
// as "of" between them. "Civil Rights Act of 1964" yields "Civil Rights Act".
func extractEntities(query string) []string {
	words := strings.FieldsFunc(query, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '\'' && r != '-' && r != '.')
	})

	var (
		out     []string
		current []string
		capped  int
	)
	flush := func() {
		for len(current) > 0 {
			if _, ok := entityConnectors[strings.ToLower(current[len(current)-1])]; !ok {
				break
			}
			current = current[:len(current)-1]
		}
		if capped >= 2 {
			out = append(out, strings.Join(current, " "))
		}
		current = current[:0]
		capped = 0
	}

	for i, raw := range words {
		word := strings.TrimRight(raw, ".")
		switch {
		case isCapitalized(word):
			current = append(current, word)
			capped++
		case len(current) > 0 && isConnector(word) && i+1 < len(words) && isCapitalized(words[i+1]):
			current = append(current, word)
		default:
			flush()
		}
		if strings.HasSuffix(raw, ".") && len(current) > 0 {
			flush()
		}
	}
	flush()
	return out
}

func isCapitalized(word string) bool {
	for _, r := range word {
		return unicode.IsUpper(r)
	}
	return false
}

func isConnector(word string) bool {
	_, ok := entityConnectors[word]
	return ok
}
