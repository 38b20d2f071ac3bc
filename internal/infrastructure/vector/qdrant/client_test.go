package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
	"github.com/kirillkom/grounded-archive/internal/infrastructure/resilience"
)

func TestSearchTargetsNamespaceCollectionWithFilter(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode search body: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":[
			{"id":"7f1c","score":0.91,"payload":{"text":"Title II text","document_id":"nara-cra-1964","year":1964}},
			{"id":42,"score":0.8,"payload":{"text":"Second"}}
		]}`))
	}))
	defer server.Close()

	from := 1950
	client := New(server.URL, "archive_")
	hits, err := client.Search(context.Background(), []float32{0.1, 0.2}, "primary_sources", domain.MetadataFilter{
		ContentTypes:  []string{"letter", "statute"},
		YearFrom:      &from,
		RequiredTags:  []string{"k12", "law"},
		PreferredTags: []string{"ignored"},
	}, 5, 0.7)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if gotPath != "/collections/archive_primary_sources/points/search" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotBody["score_threshold"] != 0.7 || gotBody["limit"] != float64(5) || gotBody["with_payload"] != true {
		t.Fatalf("unexpected search body %v", gotBody)
	}
	filter, ok := gotBody["filter"].(map[string]any)
	if !ok {
		t.Fatalf("expected filter in body, got %v", gotBody)
	}
	must, _ := filter["must"].([]any)
	if len(must) != 4 {
		t.Fatalf("expected content type, year and two tag conditions, got %v", must)
	}
	raw, _ := json.Marshal(must)
	if strings.Contains(string(raw), "ignored") {
		t.Fatalf("preferred tags must not reach the store: %s", raw)
	}

	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "7f1c" || hits[0].Text != "Title II text" || hits[0].Metadata["document_id"] != "nara-cra-1964" {
		t.Fatalf("unexpected first hit %+v", hits[0])
	}
	if hits[1].ID != "42" {
		t.Fatalf("expected numeric id to be rendered, got %q", hits[1].ID)
	}
}

func TestSearchWithoutFilterOmitsClause(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	hits, err := New(server.URL, "").Search(context.Background(), []float32{0.1}, "datasets", domain.MetadataFilter{}, 0, 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
	if _, ok := gotBody["filter"]; ok {
		t.Fatalf("expected no filter clause, got %v", gotBody["filter"])
	}
	if _, ok := gotBody["score_threshold"]; ok {
		t.Fatalf("expected no score threshold, got %v", gotBody["score_threshold"])
	}
}

func TestSearchIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(server.URL, "archive_").Search(context.Background(), []float32{0.1}, "oral_histories", domain.MetadataFilter{}, 5, 0.5)
	if err == nil || !strings.Contains(err.Error(), "collection not found") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}

func TestSearchRequiresNamespace(t *testing.T) {
	if _, err := New("http://unused", "").Search(context.Background(), nil, " ", domain.MetadataFilter{}, 5, 0); err == nil {
		t.Fatalf("expected error for blank namespace")
	}
}

func TestSearchBreakerIsPerNamespace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "oral_histories") {
			http.Error(w, "shard unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "archive_").WithExecutor(resilience.NewExecutor(resilience.Config{
		BreakerEnabled:      true,
		BreakerMinRequests:  1,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  time.Minute,
	}))

	_, err := client.Search(context.Background(), []float32{0.1}, "oral_histories", domain.MetadataFilter{}, 5, 0)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	_, err = client.Search(context.Background(), []float32{0.1}, "oral_histories", domain.MetadataFilter{}, 5, 0)
	if !resilience.IsCircuitOpen(err) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if _, err := client.Search(context.Background(), []float32{0.1}, "primary_sources", domain.MetadataFilter{}, 5, 0); err != nil {
		t.Fatalf("healthy namespace must not be affected: %v", err)
	}
}

func TestClassifySearchErrorIgnoresMissingCollection(t *testing.T) {
	if class := classifySearchError(&searchStatusError{code: http.StatusNotFound}); class.RecordFailure {
		t.Fatalf("missing collection must not trip the breaker, got %+v", class)
	}
}
