package persona

import "github.com/kirillkom/grounded-archive/internal/core/domain"

// Detect scores the query against every persona's selection patterns. Confidence is the share of
// all pattern hits that belong to the best persona; ties go to the persona defined first.
func (r *Registry) Detect(query string) domain.PersonaDetection {
	if !r.autoDetect || len(r.patterns) == 0 || query == "" {
		return domain.PersonaDetection{}
	}

	var (
		total    int
		bestHits int
		bestKey  domain.PersonaKey
	)
	for _, key := range r.order {
		hits := 0
		for _, re := range r.patterns[key] {
			if re.MatchString(query) {
				hits++
			}
		}
		total += hits
		if hits > bestHits {
			bestHits = hits
			bestKey = key
		}
	}
	if total == 0 {
		return domain.PersonaDetection{}
	}

	confidence := float64(bestHits) / float64(total)
	return domain.PersonaDetection{
		Key:        bestKey,
		Confidence: confidence,
		Matched:    confidence >= r.confidenceThreshold,
	}
}
