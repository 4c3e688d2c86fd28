package dialogue

import (
	"sync"
	"time"
)

// SessionStore holds the live dialogue context for every session. It is an
// explicitly constructed object (no package-level instance) so hosts and
// tests can run independent stores side by side.
//
// Access is atomic per key: the store-level lock only guards the map, and a
// per-session mutex serializes all turns for one session. Two different
// sessions never contend with each other beyond map access.
type SessionStore struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
}

type sessionEntry struct {
	mu  sync.Mutex
	ctx *DialogueContext
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		entries: make(map[string]*sessionEntry),
	}
}

// acquire returns the entry for sessionID with its session lock held,
// creating a fresh context in StageInitial on first use. Get-or-create is
// idempotent: an unknown session id is never an error. The caller must
// release the entry's lock when the turn is committed.
func (s *SessionStore) acquire(sessionID string) *sessionEntry {
	s.mu.RLock()
	e, ok := s.entries[sessionID]
	s.mu.RUnlock()

	if !ok {
		s.mu.Lock()
		if e, ok = s.entries[sessionID]; !ok {
			now := time.Now()
			e = &sessionEntry{ctx: &DialogueContext{
				SessionID: sessionID,
				Stage:     StageInitial,
				CreatedAt: now,
				UpdatedAt: now,
			}}
			s.entries[sessionID] = e
		}
		s.mu.Unlock()
	}

	e.mu.Lock()
	return e
}

// Snapshot returns a deep copy of the stored context for sessionID. The
// second return is false when the session has never been seen.
func (s *SessionStore) Snapshot(sessionID string) (DialogueContext, bool) {
	s.mu.RLock()
	e, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok {
		return DialogueContext{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctx.snapshot(), true
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Evict removes a session's context. The next turn for this session id will
// start a fresh conversation.
func (s *SessionStore) Evict(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
}

// IdleSessions returns the ids of sessions whose last update is older than
// maxIdle. Used by the host's TTL sweeper; the store itself never expires
// anything.
func (s *SessionStore) IdleSessions(maxIdle time.Duration) []string {
	cutoff := time.Now().Add(-maxIdle)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var idle []string
	for id, e := range s.entries {
		e.mu.Lock()
		updated := e.ctx.UpdatedAt
		e.mu.Unlock()
		if updated.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	return idle
}
