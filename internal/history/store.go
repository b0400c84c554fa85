// Package history keeps the identity -> last-seen record mapping that survives across runs.
package history

import (
	"context"
	"sync"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

// Backend loads and persists a Store.
type Backend interface {
	// Load returns the persisted store. A missing document yields an empty store.
	Load(ctx context.Context) (*Store, error)
	// Save persists the whole store in one pass.
	Save(ctx context.Context, store *Store) error
}

// Store is an in-memory identity -> record mapping that remembers insertion order.
type Store struct {
	mu      sync.RWMutex
	records map[string]notice.Record
	order   []string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]notice.Record)}
}

// Get returns the record stored under identity.
func (s *Store) Get(identity string) (notice.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[identity]
	return rec, ok
}

// Has reports whether identity is known.
func (s *Store) Has(identity string) bool {
	_, ok := s.Get(identity)
	return ok
}

// Put inserts r, or overwrites it in place when its identity is already known.
func (s *Store) Put(r notice.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.Identity]; !ok {
		s.order = append(s.order, r.Identity)
	}
	s.records[r.Identity] = r
}

// Len returns the number of stored identities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Records returns a copy of every record in insertion order.
func (s *Store) Records() []notice.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]notice.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}
