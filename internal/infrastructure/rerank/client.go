package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
	"github.com/kirillkom/grounded-archive/internal/infrastructure/resilience"
)

// Client scores query/text pairs with a cross-encoder served over the text-embeddings-inference
// /rerank API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	exec       *resilience.Executor
}

func New(baseURL string, exec *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		exec:       exec,
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

func (c *Client) Rerank(ctx context.Context, query string, candidates []domain.RerankCandidate) ([]domain.RerankScore, error) {
	if len(candidates) == 0 {
		return []domain.RerankScore{}, nil
	}
	texts := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		texts = append(texts, cand.Text)
	}
	payload := rerankRequest{Query: query, Texts: texts}

	call := func(callCtx context.Context) ([]rerankResult, error) {
		return c.post(callCtx, payload)
	}
	var (
		results []rerankResult
		err     error
	)
	if c.exec == nil {
		results, err = call(ctx)
	} else {
		results, err = resilience.Call(ctx, c.exec, "rerank", call, classifyRerankError)
	}
	if err != nil {
		if classifyRerankError(err).Temporary {
			return nil, domain.WrapError(domain.ErrTemporary, "rerank", err)
		}
		return nil, err
	}

	out := make([]domain.RerankScore, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(candidates) {
			return nil, fmt.Errorf("rerank response index %d out of range", r.Index)
		}
		out = append(out, domain.RerankScore{ID: candidates[r.Index].ID, Score: r.Score})
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, payload rerankRequest) ([]rerankResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &statusError{code: resp.StatusCode, status: resp.Status, body: strings.TrimSpace(string(msg))}
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	return results, nil
}

type statusError struct {
	code   int
	status string
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return "rerank status: " + e.status
	}
	return "rerank status: " + e.status + ": " + e.body
}

func classifyRerankError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return resilience.ClassifyHTTPStatus(statusErr.code)
	}
	return resilience.Permanent
}
