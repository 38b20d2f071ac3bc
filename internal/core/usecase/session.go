package usecase

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
)

// PersonaSessions remembers the persona a client selected. The instance is created by the process
// and handed to whoever needs it; expiry only happens when Sweep is called.
type PersonaSessions struct {
	items *gocache.Cache
}

func NewPersonaSessions(ttl time.Duration) *PersonaSessions {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	// A zero cleanup interval keeps go-cache's janitor goroutine off.
	return &PersonaSessions{items: gocache.New(ttl, 0)}
}

// Select stores key for the session and restarts its TTL.
func (s *PersonaSessions) Select(sessionID string, key domain.PersonaKey) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return
	}
	s.items.SetDefault(sessionID, key)
}

func (s *PersonaSessions) Lookup(sessionID string) (domain.PersonaKey, bool) {
	v, ok := s.items.Get(strings.TrimSpace(sessionID))
	if !ok {
		return "", false
	}
	key, ok := v.(domain.PersonaKey)
	return key, ok
}

// Sweep drops expired sessions and reports how many were removed.
func (s *PersonaSessions) Sweep() int {
	before := s.items.ItemCount()
	s.items.DeleteExpired()
	removed := before - s.items.ItemCount()
	if removed < 0 {
		return 0
	}
	return removed
}

func (s *PersonaSessions) Len() int {
	return s.items.ItemCount()
}
