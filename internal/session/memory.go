package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in a process-local map.
//
// Used in development (no Redis required) and throughout the tests. Entries
// carry an expiry checked lazily on Get — good enough for a dev store where
// the process restarts often.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
}

type memoryEntry struct {
	sess      Session
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	if !ok {
		return nil, notFound(id)
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.sessions, id)
		return nil, notFound(id)
	}

	// Copy so callers cannot mutate stored state without Save.
	sess := entry.sess
	return &sess, nil
}

func (s *MemoryStore) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = memoryEntry{
		sess:      *sess,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}
