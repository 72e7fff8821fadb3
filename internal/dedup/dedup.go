// Package dedup tracks which event ids a session has already ingested.
// Event ids are unique within a session, so the set lives and dies with the
// session; nothing is persisted.
package dedup

import (
	"sync"
)

type Store struct {
	mu   sync.Mutex
	seen map[int64]struct{}
}

func NewStore() *Store {
	return &Store{seen: make(map[int64]struct{})}
}

// CheckAndMark records id and reports whether it had been seen before.
// Re-delivered events answer true and must not re-enter the log.
func (s *Store) CheckAndMark(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[id]; exists {
		return true
	}
	s.seen[id] = struct{}{}
	return false
}

// Seen answers without marking.
func (s *Store) Seen(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.seen[id]
	return exists
}

// Reset forgets everything; used when a store is rebound to a new
// conversation.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[int64]struct{})
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
