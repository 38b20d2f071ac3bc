package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
)

func buildDraftPrompt(req domain.DraftRequest) string {
	tone := strings.TrimSpace(req.Tone)
	if tone == "" {
		tone = "neutral"
	}

	var docs strings.Builder
	for _, chunk := range req.Chunks {
		docs.WriteString(fmt.Sprintf("[%d] document_id=%s\n", chunk.Rank, chunk.DocumentID))
	}

	return fmt.Sprintf(`You answer questions about a historical archive for a %s audience in a %s tone.
Use only the evidence below. Do not add facts the evidence does not support.
Return a strict JSON object with keys:
answer (string), confidence (number from 0 to 1), citations (array of document_id strings taken from the document list),
unsupported_claims (array of strings), clarifying_questions (array of strings).
No markdown, no extra keys.

Question:
%s

Documents:
%s
Evidence:
%s
`, req.Persona, tone, req.Query, docs.String(), req.Context.Text)
}
