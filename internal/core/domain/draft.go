package domain

// DraftRequest is what the external generation step sees of a pipeline run.
type DraftRequest struct {
	Query   string
	Persona PersonaKey
	Tone    string
	Context FormattedContext
	Chunks  []RetrievalChunk
}

// Draft is the unvalidated output of the generation step.
type Draft struct {
	Text                string   `json:"answer"`
	Confidence          float64  `json:"confidence"`
	CitedDocumentIDs    []string `json:"citations"`
	UnsupportedClaims   []string `json:"unsupported_claims"`
	ClarifyingQuestions []string `json:"clarifying_questions"`
}
