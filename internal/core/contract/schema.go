package contract

import (
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// answerSchemaJSON describes the archive.answer wire document. Every field the contract type emits
// is required so a document decoded from the wire is held to the same shape as one built in process.
const answerSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["version", "answer", "sources", "retrieval_summary", "unknowns", "integrity", "provenance"],
  "properties": {
    "version": {"type": "string", "pattern": "^[a-z][a-z0-9_-]*\\.answer\\.v[0-9]+$"},
    "answer": {
      "type": "object",
      "additionalProperties": false,
      "required": ["text", "confidence", "tone", "completeness"],
      "properties": {
        "text": {"type": "string", "minLength": 1},
        "confidence": {"type": "number", "minimum": 0, "maximum": 1},
        "tone": {"type": "string", "minLength": 1},
        "completeness": {"type": "string", "enum": ["complete", "partial", "insufficient"]}
      }
    },
    "sources": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["document_id", "chunk_id", "citation_label", "canonical_url", "source_org", "year", "content_type", "license", "rank", "score"],
        "properties": {
          "document_id": {"type": "string", "minLength": 1},
          "chunk_id": {"type": "string", "minLength": 1},
          "citation_label": {"type": "string", "minLength": 1},
          "canonical_url": {"type": "string"},
          "source_org": {"type": "string"},
          "year": {"type": "integer", "minimum": 0},
          "content_type": {"type": "string"},
          "license": {"type": "string"},
          "rank": {"type": "integer", "minimum": 1},
          "score": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    },
    "retrieval_summary": {
      "type": "object",
      "additionalProperties": false,
      "required": ["query", "persona", "namespaces", "filters", "results"],
      "properties": {
        "query": {"type": "string", "minLength": 1},
        "persona": {"type": "string", "minLength": 1},
        "namespaces": {"type": "array", "items": {"type": "string", "minLength": 1}},
        "filters": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "content_types": {"type": "array", "items": {"type": "string"}},
            "year_from": {"type": "integer"},
            "year_to": {"type": "integer"},
            "required_tags": {"type": "array", "items": {"type": "string"}},
            "preferred_tags": {"type": "array", "items": {"type": "string"}},
            "source_orgs": {"type": "array", "items": {"type": "string"}}
          }
        },
        "results": {
          "type": "array",
          "items": {
            "type": "object",
            "additionalProperties": false,
            "required": ["rank", "document_id", "chunk_id", "namespace", "score"],
            "properties": {
              "rank": {"type": "integer", "minimum": 1},
              "document_id": {"type": "string", "minLength": 1},
              "chunk_id": {"type": "string", "minLength": 1},
              "namespace": {"type": "string", "minLength": 1},
              "score": {"type": "number", "minimum": 0, "maximum": 1}
            }
          }
        }
      }
    },
    "unknowns": {
      "type": "object",
      "additionalProperties": false,
      "required": ["unsupported_claims", "missing_context", "clarifying_questions"],
      "properties": {
        "unsupported_claims": {"type": "array", "items": {"type": "string"}},
        "missing_context": {"type": "array", "items": {"type": "string"}},
        "clarifying_questions": {"type": "array", "items": {"type": "string"}}
      }
    },
    "integrity": {
      "type": "object",
      "additionalProperties": false,
      "required": ["citation_required", "citations_provided", "retrieval_confidence", "fallback_behavior"],
      "properties": {
        "citation_required": {"type": "boolean"},
        "citations_provided": {"type": "boolean"},
        "retrieval_confidence": {"type": "string", "enum": ["high", "medium", "low", "none"]},
        "fallback_behavior": {"type": "string", "enum": ["none", "partial_answer", "refusal", "clarify"]}
      }
    },
    "provenance": {
      "type": "object",
      "additionalProperties": false,
      "required": ["generated_at", "retrieval_run_id", "message_id", "persona"],
      "properties": {
        "generated_at": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}T[0-9]{2}:[0-9]{2}:[0-9]{2}"},
        "retrieval_run_id": {"type": "string", "minLength": 1},
        "message_id": {"type": "string", "minLength": 1},
        "persona": {"type": "string", "minLength": 1}
      }
    }
  }
}`

func loadAnswerSchema() (*openapi3.Schema, error) {
	var schema openapi3.Schema
	if err := json.Unmarshal([]byte(answerSchemaJSON), &schema); err != nil {
		return nil, fmt.Errorf("decode answer schema: %w", err)
	}
	return &schema, nil
}
