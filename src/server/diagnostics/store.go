// Package diagnostics keeps the latest push notification payload per subject
// (a document URI) and lets readers wait for a newer one.
package diagnostics

import (
	"context"
	"encoding/json"
	"sync"
)

type entry struct {
	payload    json.RawMessage
	generation uint64
}

// Store is last-write-wins state keyed by subject. No history is kept.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	// changed is closed and replaced on every Put
	changed chan struct{}
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		entries: make(map[string]entry),
		changed: make(chan struct{}),
	}
}

// Put replaces the payload for subject and returns its new generation.
// Generations start at 1 and only grow.
func (s *Store) Put(subject string, payload json.RawMessage) uint64 {
	cp := make(json.RawMessage, len(payload))
	copy(cp, payload)

	s.mu.Lock()
	gen := s.entries[subject].generation + 1
	s.entries[subject] = entry{payload: cp, generation: gen}
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
	return gen
}

// Latest returns the most recent payload for subject. It never blocks on
// the server; ok is false when nothing has been received yet.
func (s *Store) Latest(subject string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[subject]
	return e.payload, ok
}

// Generation returns how many payloads were received for subject, 0 if none
func (s *Store) Generation(subject string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[subject].generation
}

// Wait blocks until subject has a generation greater than after, then
// returns that payload. It returns ctx.Err() if the context ends first.
func (s *Store) Wait(ctx context.Context, subject string, after uint64) (json.RawMessage, uint64, error) {
	for {
		s.mu.Lock()
		e := s.entries[subject]
		changed := s.changed
		s.mu.Unlock()

		if e.generation > after {
			return e.payload, e.generation, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
}
