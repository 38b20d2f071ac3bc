package usecase

import (
	"log/slog"
	"strings"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
	"github.com/kirillkom/grounded-archive/internal/core/ports"
)

// Defaults are the global fallbacks used when neither the request nor the persona template sets a
// parameter.
type Defaults struct {
	Namespaces     []string
	Threshold      float64
	Limit          int
	MinResults     int
	RerankTopN     int
	SemanticWeight float64
	RerankWeight   float64
	Tone           string
	MaxChunkChars  int
}

func (d Defaults) withFallbacks() Defaults {
	if d.Threshold <= 0 {
		d.Threshold = 0.7
	}
	if d.Limit <= 0 {
		d.Limit = 10
	}
	if d.MinResults < 0 {
		d.MinResults = 0
	}
	if d.RerankTopN <= 0 {
		d.RerankTopN = 5
	}
	if d.SemanticWeight <= 0 && d.RerankWeight <= 0 {
		d.SemanticWeight = 0.5
		d.RerankWeight = 0.5
	}
	if d.Tone == "" {
		d.Tone = "neutral"
	}
	if d.MaxChunkChars <= 0 {
		d.MaxChunkChars = 1500
	}
	return d
}

// ResolveParams merges request overrides, the persona template and global defaults. Each parameter
// takes the first value that is set, in that order; zero values fall through.
func ResolveParams(req domain.RetrievalRequest, tpl domain.PersonaTemplate, defaults Defaults) domain.ResolvedParams {
	d := defaults.withFallbacks()
	o := req.Overrides
	r := tpl.Retrieval

	params := domain.ResolvedParams{
		Persona:          tpl.Key,
		Namespaces:       firstNamespaces(o.Namespaces, tpl.Namespaces, d.Namespaces),
		Threshold:        firstFloat(o.Threshold, r.SimilarityThreshold, d.Threshold),
		Limit:            firstInt(o.Limit, r.Limit, d.Limit),
		MinResults:       firstInt(o.MinResults, r.MinResults, d.MinResults),
		Rerank:           r.Rerank,
		RerankTopN:       firstInt(o.RerankTopN, r.RerankTopN, d.RerankTopN),
		SemanticWeight:   d.SemanticWeight,
		RerankWeight:     d.RerankWeight,
		Filter:           CompileFilter(tpl.Filters.AsFilter(), o.Filters),
		Expansion:        tpl.Expansion,
		Context:          tpl.Context,
		Tone:             tpl.Answer.Tone,
		CitationRequired: tpl.Answer.CitationRequired,
	}
	if o.Rerank != nil {
		params.Rerank = *o.Rerank
	}
	if r.SemanticWeight > 0 || r.RerankWeight > 0 {
		params.SemanticWeight = r.SemanticWeight
		params.RerankWeight = r.RerankWeight
	}
	if params.Tone == "" {
		params.Tone = d.Tone
	}
	if params.Context.MaxChunkChars <= 0 {
		params.Context.MaxChunkChars = d.MaxChunkChars
	}
	if params.Expansion.Strategy == "" {
		params.Expansion.Strategy = domain.ExpansionNone
	}
	return params
}

func firstNamespaces(candidates ...[]string) []string {
	for _, c := range candidates {
		out := make([]string, 0, len(c))
		seen := make(map[string]struct{}, len(c))
		for _, ns := range c {
			ns = strings.TrimSpace(ns)
			if ns == "" {
				continue
			}
			if _, dup := seen[ns]; dup {
				continue
			}
			seen[ns] = struct{}{}
			out = append(out, ns)
		}
		if len(out) > 0 {
			return out
		}
	}
	return []string{}
}

func firstFloat(override *float64, template, fallback float64) float64 {
	if override != nil {
		return *override
	}
	if template > 0 {
		return template
	}
	return fallback
}

func firstInt(override *int, template, fallback int) int {
	if override != nil {
		return *override
	}
	if template > 0 {
		return template
	}
	return fallback
}

// PersonaDirectory is the read side of the persona registry used during selection.
type PersonaDirectory interface {
	ports.PersonaCatalog
	DictionarySource
	Default() domain.PersonaTemplate
	Detect(query string) domain.PersonaDetection
}

// PersonaSelection records which template drives a run and how it was chosen.
type PersonaSelection struct {
	Template  domain.PersonaTemplate
	Source    domain.PersonaSource
	Fallback  bool
	Detection domain.PersonaDetection
}

// PersonaSelector picks the template for a request: explicit persona, then the session's persona,
// then auto-detection, then the default persona.
type PersonaSelector struct {
	personas PersonaDirectory
	sessions ports.PersonaSessionStore
}

func NewPersonaSelector(personas PersonaDirectory, sessions ports.PersonaSessionStore) *PersonaSelector {
	return &PersonaSelector{personas: personas, sessions: sessions}
}

func (s *PersonaSelector) Select(req domain.RetrievalRequest) PersonaSelection {
	requested := strings.TrimSpace(req.Persona)
	if requested != "" {
		if tpl, ok := s.personas.Lookup(domain.PersonaKey(requested)); ok {
			return PersonaSelection{Template: tpl, Source: domain.PersonaSourceRequest}
		}
		def := s.personas.Default()
		slog.Warn("persona_fallback", "requested", requested, "persona", string(def.Key))
		return PersonaSelection{Template: def, Source: domain.PersonaSourceDefault, Fallback: true}
	}

	if s.sessions != nil && req.SessionID != "" {
		if key, ok := s.sessions.Lookup(req.SessionID); ok {
			if tpl, found := s.personas.Lookup(key); found {
				return PersonaSelection{Template: tpl, Source: domain.PersonaSourceSession}
			}
		}
	}

	detection := s.personas.Detect(req.Query)
	if detection.Matched {
		if tpl, ok := s.personas.Lookup(detection.Key); ok {
			return PersonaSelection{Template: tpl, Source: domain.PersonaSourceDetected, Detection: detection}
		}
	}
	return PersonaSelection{Template: s.personas.Default(), Source: domain.PersonaSourceDefault, Detection: detection}
}
