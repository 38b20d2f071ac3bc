package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
	"github.com/kirillkom/grounded-archive/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
}

func New(baseURL, genModel, embedModel string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Embedder implements ports.Embedder against /api/embed.
type Embedder struct {
	client *Client
	exec   *resilience.Executor
}

// NewEmbedder wraps client; a nil executor calls Ollama directly.
func NewEmbedder(client *Client, exec *resilience.Executor) *Embedder {
	return &Embedder{client: client, exec: exec}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "embed query", fmt.Errorf("text is empty"))
	}
	vector, err := e.call(ctx, text)
	if err != nil {
		return nil, mapOllamaError("ollama embed", err)
	}
	return vector, nil
}

func (e *Embedder) call(ctx context.Context, text string) ([]float32, error) {
	embed := func(callCtx context.Context) ([]float32, error) {
		request := map[string]any{
			"model": e.client.embedModel,
			"input": []string{text},
		}
		var response struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := e.client.postJSON(callCtx, "embed", "/api/embed", e.client.embedModel, request, &response); err != nil {
			return nil, err
		}
		if len(response.Embeddings) == 0 || len(response.Embeddings[0]) == 0 {
			return nil, fmt.Errorf("empty embedding result")
		}
		return response.Embeddings[0], nil
	}
	if e.exec == nil {
		return embed(ctx)
	}
	return resilience.Call(ctx, e.exec, "ollama_embed", embed, classifyOllamaError)
}

// Drafter implements ports.AnswerDrafter with a JSON-mode generation call.
type Drafter struct {
	client *Client
	exec   *resilience.Executor
}

func NewDrafter(client *Client, exec *resilience.Executor) *Drafter {
	return &Drafter{client: client, exec: exec}
}

func (d *Drafter) Draft(ctx context.Context, req domain.DraftRequest) (domain.Draft, error) {
	prompt := buildDraftPrompt(req)
	generate := func(callCtx context.Context) (string, error) {
		return d.client.generateJSON(callCtx, prompt)
	}

	var (
		raw string
		err error
	)
	if d.exec == nil {
		raw, err = generate(ctx)
	} else {
		raw, err = resilience.Call(ctx, d.exec, "ollama_draft", generate, classifyOllamaError)
	}
	if err != nil {
		return domain.Draft{}, mapOllamaError("ollama draft", err)
	}

	var draft domain.Draft
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &draft); err != nil {
		return domain.Draft{}, fmt.Errorf("parse draft json: %w", err)
	}
	return normalizeDraft(draft), nil
}

func normalizeDraft(d domain.Draft) domain.Draft {
	d.Text = strings.TrimSpace(d.Text)
	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 1 {
		d.Confidence = 1
	}
	if d.CitedDocumentIDs == nil {
		d.CitedDocumentIDs = []string{}
	}
	if d.UnsupportedClaims == nil {
		d.UnsupportedClaims = []string{}
	}
	if d.ClarifyingQuestions == nil {
		d.ClarifyingQuestions = []string{}
	}
	return d
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "generate", "/api/generate", c.genModel, reqBody, &response); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
