// Package authflow implements the browser-driven authorization flow
// that produces the first refresh token.
package authflow

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// PendingStore tracks in-flight browser authorization attempts keyed
// by their state token. Tokens are cryptographically random, single
// use and expire after the configured TTL.
type PendingStore struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	states map[string]time.Time // state token -> created_at
}

// NewPendingStore creates a store with the given TTL.
func NewPendingStore(ttl time.Duration) *PendingStore {
	return &PendingStore{
		ttl:    ttl,
		now:    time.Now,
		states: make(map[string]time.Time),
	}
}

// Create sweeps expired states, then records and returns a fresh
// random state token.
func (s *PendingStore) Create() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	token := hex.EncodeToString(b)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for state, createdAt := range s.states {
		if now.Sub(createdAt) > s.ttl {
			delete(s.states, state)
		}
	}
	s.states[token] = now
	return token, nil
}

// Consume deletes the state token and reports whether it was present
// and within its TTL. Deletion happens regardless of outcome, so the
// same state can never be accepted twice.
func (s *PendingStore) Consume(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return s.now().Sub(createdAt) <= s.ttl
}

// Len returns the number of pending states.
func (s *PendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
