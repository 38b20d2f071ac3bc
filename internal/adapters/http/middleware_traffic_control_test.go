package httpadapter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/grounded-archive/internal/config"
)

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	handler := newTestHandler(t, config.Config{
		APIRateLimitRPS:   1,
		APIRateLimitBurst: 1,
	}, testDeps())

	req1 := httptest.NewRequest(http.MethodGet, "/v1/personas", nil)
	res1 := httptest.NewRecorder()
	handler.ServeHTTP(res1, req1)
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/v1/personas", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After 1, got %q", res2.Header().Get("Retry-After"))
	}
	var resp map[string]any
	if err := json.NewDecoder(res2.Body).Decode(&resp); err != nil {
		t.Fatalf("decode 429 response: %v", err)
	}
	if resp["error"] != "rate limit exceeded" {
		t.Fatalf("unexpected 429 body %v", resp)
	}
}

func TestRateLimitMiddlewareSkipsHealthz(t *testing.T) {
	handler := newTestHandler(t, config.Config{
		APIRateLimitRPS:   1,
		APIRateLimitBurst: 1,
	}, testDeps())

	for i := 0; i < 3; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("healthz #%d expected 200, got %d", i+1, res.Code)
		}
	}
}

func TestClientLimiterTracksClientsSeparately(t *testing.T) {
	limiter := newClientLimiter(1, 1)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	if !limiter.allow("10.0.0.1") || !limiter.allow("10.0.0.2") {
		t.Fatalf("expected first request of each client to pass")
	}
	if limiter.allow("10.0.0.1") {
		t.Fatalf("expected second request within the same second to be limited")
	}

	now = now.Add(5 * time.Minute)
	if !limiter.allow("10.0.0.1") {
		t.Fatalf("expected bucket to refill")
	}
	if _, ok := limiter.visitors["10.0.0.2"]; ok {
		t.Fatalf("expected idle visitor to be swept")
	}
}
