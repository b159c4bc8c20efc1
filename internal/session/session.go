// Package session implements the Session Store (component C2): a
// concurrent, sharded map of opaque-UUID-keyed session records with TTL
// expiry and scheduler-driven reaping. Sessions are never persisted to the
// database — the in-memory map is the sole authority, matching spec.md's
// "Session (not persisted — in memory)" note.
//
// The sharding follows the RWMutex-registry pattern the teacher uses for
// its in-memory agent connection registry, generalized from one lock to
// shardCount independent locks to absorb higher per-request churn.
package session

import (
	"errors"
	"hash/maphash"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is used by NewSession when no explicit ttl is supplied.
const DefaultTTL = time.Hour

const shardCount = 32

// ErrNotFound is returned by GetSession and RemoveSession when the id is
// absent (either never created or already reaped/removed).
var ErrNotFound = errors.New("session: not found")

// ErrCollision is returned by NewSession in the practically-impossible
// event of a UUIDv4 collision. The contract forbids silently clobbering an
// existing session.
var ErrCollision = errors.New("session: id collision")

// Session is an in-memory record; handlers receive copies, never pointers
// into the store, so held references can never observe concurrent mutation.
type Session struct {
	SessionID       uuid.UUID
	UserID          uuid.UUID
	UserName        string
	UserCountry     int32
	UserLanguage    int32
	IsEmailVerified bool
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// NewUser is the input needed to mint a session; callers (auth handlers)
// look this up from the User row after verifying credentials.
type NewUser struct {
	UserID          uuid.UUID
	UserName        string
	UserCountry     int32
	UserLanguage    int32
	IsEmailVerified bool
}

type shard struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]Session
}

// Store is the sharded session map. The zero value is not usable; use New.
type Store struct {
	shards [shardCount]*shard
	seed   maphash.Seed
	now    func() time.Time
}

// New constructs an empty Store.
func New() *Store {
	s := &Store{seed: maphash.MakeSeed(), now: time.Now}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[uuid.UUID]Session)}
	}
	return s
}

func (s *Store) shardFor(id uuid.UUID) *shard {
	var h maphash.Hash
	h.SetSeed(s.seed)
	h.Write(id[:])
	return s.shards[h.Sum64()%uint64(shardCount)]
}

// NewSession generates a fresh UUIDv4, inserts a new record, and returns
// its id. ttl defaults to DefaultTTL (1 hour) when zero.
func (s *Store) NewSession(u NewUser, ttl time.Duration) (uuid.UUID, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id := uuid.New()
	now := s.now()

	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.sessions[id]; exists {
		return uuid.Nil, ErrCollision
	}

	sh.sessions[id] = Session{
		SessionID:       id,
		UserID:          u.UserID,
		UserName:        u.UserName,
		UserCountry:     u.UserCountry,
		UserLanguage:    u.UserLanguage,
		IsEmailVerified: u.IsEmailVerified,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}
	return id, nil
}

// GetSession returns a point-in-time copy of the session, or ErrNotFound.
// A session whose ExpiresAt is not after now is reported as ErrNotFound
// even before PurgeExpired reaps it, so every returned session satisfies
// "created_at <= now < expires_at". GetSession itself does not evict;
// PurgeExpired is the only operation that removes expired sessions.
func (s *Store) GetSession(id uuid.UUID) (Session, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	sess, ok := sh.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	if !s.now().Before(sess.ExpiresAt) {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// RemoveSession deletes the session, returning its id and the shard's
// remaining count, or ErrNotFound if absent.
func (s *Store) RemoveSession(id uuid.UUID) (uuid.UUID, int, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.sessions[id]; !ok {
		return uuid.Nil, 0, ErrNotFound
	}
	delete(sh.sessions, id)
	return id, len(sh.sessions), nil
}

// PurgeExpired removes every session whose ExpiresAt is before now,
// returning the count pruned and the count remaining across all shards.
func (s *Store) PurgeExpired() (pruned int, remaining int) {
	now := s.now()
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, sess := range sh.sessions {
			if sess.ExpiresAt.Before(now) {
				delete(sh.sessions, id)
				pruned++
			}
		}
		remaining += len(sh.sessions)
		sh.mu.Unlock()
	}
	return pruned, remaining
}

// Count returns the total number of live (not necessarily unexpired)
// sessions across all shards. Used by tests and diagnostics.
func (s *Store) Count() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return total
}
