package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSessionLifecycle(t *testing.T) {
	store := New()
	u := NewUser{UserID: uuid.New(), UserName: "alice", UserCountry: 840, UserLanguage: 1033, IsEmailVerified: true}

	id, err := store.NewSession(u, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	sess, err := store.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.UserName != "alice" {
		t.Fatalf("unexpected user name: %s", sess.UserName)
	}
	if !sess.CreatedAt.Before(sess.ExpiresAt) {
		t.Fatalf("created_at must precede expires_at")
	}

	time.Sleep(80 * time.Millisecond)

	pruned, remaining := store.PurgeExpired()
	if pruned < 1 {
		t.Fatalf("expected at least one pruned session, got %d", pruned)
	}
	if remaining != store.Count() {
		t.Fatalf("remaining count mismatch: %d vs %d", remaining, store.Count())
	}

	if _, err := store.GetSession(id); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after purge, got %v", err)
	}
}

func TestPurgeCompleteness(t *testing.T) {
	store := New()
	u := NewUser{UserID: uuid.New()}

	var ids []uuid.UUID
	for i := 0; i < 10; i++ {
		id, err := store.NewSession(u, time.Nanosecond)
		if err != nil {
			t.Fatalf("NewSession: %v", err)
		}
		ids = append(ids, id)
	}
	// A couple of long-lived sessions that should survive the purge.
	for i := 0; i < 3; i++ {
		if _, err := store.NewSession(u, time.Hour); err != nil {
			t.Fatalf("NewSession: %v", err)
		}
	}

	time.Sleep(5 * time.Millisecond)

	before := store.Count()
	pruned, remaining := store.PurgeExpired()
	if pruned+remaining != before {
		t.Fatalf("pruned(%d) + remaining(%d) != sessions_before(%d)", pruned, remaining, before)
	}
	if remaining != 3 {
		t.Fatalf("expected 3 surviving sessions, got %d", remaining)
	}

	for _, id := range ids {
		if _, err := store.GetSession(id); err != ErrNotFound {
			t.Fatalf("expired session %s should have been purged", id)
		}
	}
}

func TestNewSessionDefaultTTL(t *testing.T) {
	store := New()
	id, err := store.NewSession(NewUser{UserID: uuid.New()}, 0)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	sess, err := store.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got := sess.ExpiresAt.Sub(sess.CreatedAt); got != DefaultTTL {
		t.Fatalf("expected default ttl %v, got %v", DefaultTTL, got)
	}
}

func TestRemoveSession(t *testing.T) {
	store := New()
	id, _ := store.NewSession(NewUser{UserID: uuid.New()}, time.Hour)

	if _, _, err := store.RemoveSession(id); err != nil {
		t.Fatalf("RemoveSession: %v", err)
	}
	if _, _, err := store.RemoveSession(id); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on double-remove, got %v", err)
	}
}
