package httpadapter

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/grounded-archive/internal/config"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func accessLogEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if entry["msg"] == "http_request" {
			return entry
		}
	}
	t.Fatalf("no http_request entry in %s", buf.String())
	return nil
}

func TestRequestIDIsEchoedOrMinted(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, testDeps())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "trace-42")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get(requestIDHeader); got != "trace-42" {
		t.Fatalf("expected caller id to be echoed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("x", maxRequestIDLength+1))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get(requestIDHeader); got == "" || len(got) > maxRequestIDLength {
		t.Fatalf("expected oversized id to be replaced, got %q", got)
	}
}

func TestAccessLogCarriesAnswerProvenance(t *testing.T) {
	logs := captureLogs(t)
	handler := newTestHandler(t, config.Config{}, testDeps())

	res := doJSON(t, handler, http.MethodPost, "/v1/answer", map[string]any{"query": "Reconstruction amendments"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	entry := accessLogEntry(t, logs)
	if entry["message_id"] != "msg-1" || entry["path"] != "/v1/answer" || entry["level"] != "INFO" {
		t.Fatalf("unexpected access log entry %v", entry)
	}
}

func TestAccessLogLevelFollowsStatus(t *testing.T) {
	logs := captureLogs(t)
	handler := newTestHandler(t, config.Config{}, testDeps())

	res := doJSON(t, handler, http.MethodGet, "/v1/sessions/s-1/persona", nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", res.Code)
	}
	if entry := accessLogEntry(t, logs); entry["level"] != "WARN" {
		t.Fatalf("expected WARN for client error, got %v", entry["level"])
	}
}
