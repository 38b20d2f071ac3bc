package usecase

import (
	"testing"
	"time"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
)

func TestPersonaSessionsSelectAndLookup(t *testing.T) {
	sessions := NewPersonaSessions(time.Hour)
	sessions.Select(" s-1 ", domain.PersonaResearcher)
	sessions.Select("", domain.PersonaBuilder)

	key, ok := sessions.Lookup("s-1")
	if !ok || key != domain.PersonaResearcher {
		t.Fatalf("expected researcher for s-1, got %q (found=%v)", key, ok)
	}
	if sessions.Len() != 1 {
		t.Fatalf("blank session ids must be ignored, got %d entries", sessions.Len())
	}

	sessions.Select("s-1", domain.PersonaCreator)
	if key, _ := sessions.Lookup("s-1"); key != domain.PersonaCreator {
		t.Fatalf("expected reselection to replace the persona, got %q", key)
	}
	if _, ok := sessions.Lookup("missing"); ok {
		t.Fatalf("unexpected persona for unknown session")
	}
}

func TestPersonaSessionsSweepRemovesExpired(t *testing.T) {
	sessions := NewPersonaSessions(20 * time.Millisecond)
	sessions.Select("a", domain.PersonaEducator)
	sessions.Select("b", domain.PersonaBuilder)

	time.Sleep(40 * time.Millisecond)
	if _, ok := sessions.Lookup("a"); ok {
		t.Fatalf("expected expired session to be invisible")
	}
	if removed := sessions.Sweep(); removed != 2 {
		t.Fatalf("expected two sessions swept, got %d", removed)
	}
	if sessions.Len() != 0 {
		t.Fatalf("expected empty store after sweep, got %d", sessions.Len())
	}
}

func TestPersonaSessionsWithoutTTLNeverExpire(t *testing.T) {
	sessions := NewPersonaSessions(0)
	sessions.Select("a", domain.PersonaEducator)
	if removed := sessions.Sweep(); removed != 0 {
		t.Fatalf("expected nothing swept, got %d", removed)
	}
	if _, ok := sessions.Lookup("a"); !ok {
		t.Fatalf("expected session to persist")
	}
}
