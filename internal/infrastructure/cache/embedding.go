package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kirillkom/grounded-archive/internal/core/ports"
)

// Embedder memoizes query embeddings. Personas with the same expanded query reuse one vector until
// the TTL runs out.
type Embedder struct {
	next  ports.Embedder
	items *gocache.Cache
}

func NewEmbedder(next ports.Embedder, ttl time.Duration) *Embedder {
	cleanup := ttl * 2
	if ttl <= 0 {
		ttl = gocache.NoExpiration
		cleanup = 0
	}
	return &Embedder{next: next, items: gocache.New(ttl, cleanup)}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := strings.TrimSpace(text)
	if v, ok := e.items.Get(key); ok {
		if vector, ok := v.([]float32); ok {
			return cloneVector(vector), nil
		}
	}

	vector, err := e.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.items.SetDefault(key, cloneVector(vector))
	return vector, nil
}

func (e *Embedder) Len() int {
	return e.items.ItemCount()
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
