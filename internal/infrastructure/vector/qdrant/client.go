package qdrant

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

// Client searches one Qdrant collection per namespace. Collections are named prefix+namespace.
type Client struct {
	baseURL    string
	prefix     string
	httpClient *http.Client
	exec       *resilience.Executor
}

func New(baseURL, collectionPrefix string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		prefix:     collectionPrefix,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// WithExecutor guards each namespace's searches with its own breaker.
func (c *Client) WithExecutor(exec *resilience.Executor) *Client {
	c.exec = exec
	return c
}

func (c *Client) Collection(namespace string) string {
	return c.prefix + namespace
}

func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	namespace string,
	filter domain.MetadataFilter,
	limit int,
	threshold float64,
) ([]domain.VectorHit, error) {
	if strings.TrimSpace(namespace) == "" {
		return nil, fmt.Errorf("qdrant search: namespace is required")
	}
	if limit <= 0 {
		limit = 10
	}

	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if threshold > 0 {
		reqBody["score_threshold"] = threshold
	}
	if f := buildFilter(filter); f != nil {
		reqBody["filter"] = f
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.Collection(namespace))
	search := func(callCtx context.Context) ([]domain.VectorHit, error) {
		return c.search(callCtx, url, body)
	}
	if c.exec == nil {
		return search(ctx)
	}
	hits, err := resilience.Call(ctx, c.exec, "qdrant_search:"+namespace, search, classifySearchError)
	if err != nil && classifySearchError(err).Temporary {
		return nil, domain.WrapError(domain.ErrTemporary, "qdrant search "+namespace, err)
	}
	return hits, err
}

func (c *Client) search(ctx context.Context, url string, body []byte) ([]domain.VectorHit, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &searchStatusError{code: resp.StatusCode, status: resp.Status, body: strings.TrimSpace(string(msg))}
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.VectorHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		payload := r.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		out = append(out, domain.VectorHit{
			ID:       pointID(r.ID),
			Score:    r.Score,
			Text:     getStringPayload(payload, "text"),
			Metadata: payload,
		})
	}
	return out, nil
}

type searchStatusError struct {
	code   int
	status string
	body   string
}

func (e *searchStatusError) Error() string {
	if e.body == "" {
		return "qdrant search status: " + e.status
	}
	return "qdrant search status: " + e.status + ": " + e.body
}

// classifySearchError keeps a missing collection out of the breaker; it is a deployment mistake,
// not an outage.
func classifySearchError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var statusErr *searchStatusError
	if errors.As(err, &statusErr) {
		return resilience.ClassifyHTTPStatus(statusErr.code)
	}
	return resilience.Permanent
}

// buildFilter turns the hard filter conditions into a Qdrant "must" clause. Preferred tags are
// advisory and never reach the store.
func buildFilter(filter domain.MetadataFilter) map[string]any {
	conds := filter.Conditions()
	if len(conds) == 0 {
		return nil
	}

	must := make([]map[string]any, 0, len(conds))
	for _, cond := range conds {
		switch cond.Op {
		case domain.FilterOpAny:
			must = append(must, map[string]any{
				"key":   cond.Field,
				"match": map[string]any{"any": cond.Values},
			})
		case domain.FilterOpAll:
			for _, v := range cond.Values {
				must = append(must, map[string]any{
					"key":   cond.Field,
					"match": map[string]any{"value": v},
				})
			}
		case domain.FilterOpGTE:
			must = append(must, map[string]any{
				"key":   cond.Field,
				"range": map[string]any{"gte": cond.Number},
			})
		case domain.FilterOpLTE:
			must = append(must, map[string]any{
				"key":   cond.Field,
				"range": map[string]any{"lte": cond.Number},
			})
		}
	}
	return map[string]any{"must": must}
}

func pointID(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
