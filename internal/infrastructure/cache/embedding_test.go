package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func TestEmbedderReusesCachedVector(t *testing.T) {
	next := &countingEmbedder{}
	cached := NewEmbedder(next, time.Minute)

	first, err := cached.EmbedQuery(context.Background(), "civil rights act")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	first[0] = 99

	second, err := cached.EmbedQuery(context.Background(), " civil rights act ")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if next.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", next.calls)
	}
	if second[0] != 16 {
		t.Fatalf("cached vector was mutated through a returned slice: %v", second)
	}
}

func TestEmbedderDoesNotCacheFailures(t *testing.T) {
	next := &countingEmbedder{err: errors.New("offline")}
	cached := NewEmbedder(next, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cached.EmbedQuery(context.Background(), "q"); err == nil {
			t.Fatalf("expected error")
		}
	}
	if next.calls != 2 || cached.Len() != 0 {
		t.Fatalf("failures must not be cached: calls=%d len=%d", next.calls, cached.Len())
	}
}

func TestEmbedderExpiresEntries(t *testing.T) {
	next := &countingEmbedder{}
	cached := NewEmbedder(next, 10*time.Millisecond)

	_, _ = cached.EmbedQuery(context.Background(), "q")
	time.Sleep(25 * time.Millisecond)
	_, _ = cached.EmbedQuery(context.Background(), "q")
	if next.calls != 2 {
		t.Fatalf("expected expired entry to be refreshed, got %d calls", next.calls)
	}
}
