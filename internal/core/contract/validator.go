// Package contract gates emission of answer contracts. Validation runs in two phases: a structural
// check of the wire document against the archive.answer schema, then the cross-field citation
// invariants. Both phases report every violation they find.
package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
)

const (
	RuleSchema              = "schema"
	RuleCitationRequired    = "citation_required"
	RuleCitationContainment = "citation_containment"
	RuleRankOrder           = "rank_order"
	RuleDuplicateResult     = "duplicate_result"
	RuleNonEmptyAnswer      = "non_empty_answer"
	RuleCitationsConsistent = "citations_consistent"
	RuleProvenance          = "provenance"
)

// Validator is stateless after construction and safe for concurrent use.
type Validator struct {
	schema *openapi3.Schema
}

func NewValidator() (*Validator, error) {
	schema, err := loadAnswerSchema()
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "load contract schema", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate runs both phases on a candidate built in process. The candidate is never modified.
func (v *Validator) Validate(candidate *domain.AnswerContract) domain.ValidationResult {
	structural := v.CheckStructure(candidate)
	if structural.State != domain.StateStructurallyValid {
		return structural
	}
	return CheckInvariants(candidate)
}

// ValidateJSON validates a wire document, e.g. one submitted by an audit client.
func (v *Validator) ValidateJSON(raw []byte) domain.ValidationResult {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return rejected([]domain.Violation{{Rule: RuleSchema + ".json", Message: err.Error()}})
	}
	if violations := v.checkDocument(doc); len(violations) > 0 {
		return rejected(violations)
	}

	var candidate domain.AnswerContract
	if err := json.Unmarshal(raw, &candidate); err != nil {
		return rejected([]domain.Violation{{Rule: RuleSchema + ".json", Message: err.Error()}})
	}
	return CheckInvariants(&candidate)
}

// CheckStructure is the first phase. It yields StructurallyValid or Rejected.
func (v *Validator) CheckStructure(candidate *domain.AnswerContract) domain.ValidationResult {
	if candidate == nil {
		return rejected([]domain.Violation{{Rule: RuleSchema + ".required", Message: "contract is missing"}})
	}
	raw, err := json.Marshal(candidate)
	if err != nil {
		return rejected([]domain.Violation{{Rule: RuleSchema + ".json", Message: err.Error()}})
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return rejected([]domain.Violation{{Rule: RuleSchema + ".json", Message: err.Error()}})
	}
	if violations := v.checkDocument(doc); len(violations) > 0 {
		return rejected(violations)
	}
	return domain.ValidationResult{State: domain.StateStructurallyValid, Contract: candidate, Violations: []domain.Violation{}}
}

func (v *Validator) checkDocument(doc any) []domain.Violation {
	err := v.schema.VisitJSON(doc, openapi3.MultiErrors())
	if err == nil {
		return nil
	}
	violations := flattenSchemaError(err, nil)
	sortViolations(violations)
	return violations
}

func flattenSchemaError(err error, out []domain.Violation) []domain.Violation {
	switch e := err.(type) {
	case openapi3.MultiError:
		for _, inner := range e {
			out = flattenSchemaError(inner, out)
		}
	case *openapi3.SchemaError:
		msg := e.Reason
		if msg == "" {
			msg = e.Error()
		}
		out = append(out, domain.Violation{
			Path:    strings.Join(e.JSONPointer(), "."),
			Rule:    RuleSchema + "." + e.SchemaField,
			Message: msg,
		})
	default:
		out = append(out, domain.Violation{Rule: RuleSchema, Message: err.Error()})
	}
	return out
}

// CheckInvariants is the second phase. It expects a structurally valid candidate.
func CheckInvariants(c *domain.AnswerContract) domain.ValidationResult {
	if c == nil {
		return rejected([]domain.Violation{{Rule: RuleSchema + ".required", Message: "contract is missing"}})
	}

	var violations []domain.Violation
	add := func(path, rule, format string, args ...any) {
		violations = append(violations, domain.Violation{Path: path, Rule: rule, Message: fmt.Sprintf(format, args...)})
	}

	// A refusal asserts nothing, so it owes no citations.
	if c.Integrity.CitationRequired && !isRefusal(c) {
		if len(c.Sources) == 0 {
			add("sources", RuleCitationRequired, "citations are required but no sources are listed")
		}
		if !c.Integrity.CitationsProvided {
			add("integrity.citations_provided", RuleCitationRequired, "citations are required but citations_provided is false")
		}
	}

	if c.Integrity.CitationsProvided && len(c.Sources) == 0 {
		add("integrity.citations_provided", RuleCitationsConsistent, "citations_provided is true but sources is empty")
	}
	if !c.Integrity.CitationsProvided && len(c.Sources) > 0 {
		add("integrity.citations_provided", RuleCitationsConsistent, "citations_provided is false but %d source(s) are listed", len(c.Sources))
	}

	retrieved := make(map[string]struct{}, len(c.RetrievalSummary.Results))
	for _, r := range c.RetrievalSummary.Results {
		retrieved[r.DocumentID] = struct{}{}
	}
	for i, s := range c.Sources {
		if _, ok := retrieved[s.DocumentID]; !ok {
			add("sources."+strconv.Itoa(i)+".document_id", RuleCitationContainment,
				"document %q is not among the retrieved results", s.DocumentID)
		}
	}

	type resultKey struct{ doc, chunk string }
	seen := make(map[resultKey]int, len(c.RetrievalSummary.Results))
	for i, r := range c.RetrievalSummary.Results {
		base := "retrieval_summary.results." + strconv.Itoa(i)
		if i > 0 {
			prev := c.RetrievalSummary.Results[i-1].Rank
			if r.Rank == prev {
				add(base+".rank", RuleRankOrder, "rank %d is duplicated", r.Rank)
			} else if r.Rank < prev {
				add(base+".rank", RuleRankOrder, "rank %d follows rank %d", r.Rank, prev)
			}
		}
		key := resultKey{doc: r.DocumentID, chunk: r.ChunkID}
		if first, dup := seen[key]; dup {
			add(base, RuleDuplicateResult, "chunk %q of document %q already listed at index %d", r.ChunkID, r.DocumentID, first)
			continue
		}
		seen[key] = i
	}

	if strings.TrimSpace(c.Answer.Text) == "" {
		add("answer.text", RuleNonEmptyAnswer, "answer text is blank")
	}
	if c.Provenance.GeneratedAt.IsZero() {
		add("provenance.generated_at", RuleProvenance, "generation time is not set")
	}

	if len(violations) > 0 {
		return rejected(violations)
	}
	return domain.ValidationResult{State: domain.StateValid, Contract: c, Violations: []domain.Violation{}}
}

// isRefusal reports whether c is a complete refusal: labelled as one, with zero confidence, no
// retrieval confidence and at least one stated reason in missing_context.
func isRefusal(c *domain.AnswerContract) bool {
	return c.Integrity.FallbackBehavior == domain.FallbackRefusal &&
		c.Answer.Completeness == domain.CompletenessInsufficient &&
		c.Answer.Confidence == 0 &&
		c.Integrity.RetrievalConfidence == domain.RetrievalConfidenceNone &&
		len(c.Unknowns.MissingContext) > 0
}

func rejected(violations []domain.Violation) domain.ValidationResult {
	return domain.ValidationResult{State: domain.StateRejected, Violations: violations}
}

func sortViolations(violations []domain.Violation) {
	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].Path != violations[j].Path {
			return violations[i].Path < violations[j].Path
		}
		return violations[i].Rule < violations[j].Rule
	})
}
