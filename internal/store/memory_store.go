package store

import (
	"context"
	"sync"

	"github.com/cadre-oss/statecast/internal/state"
)

// DefaultMemoryCapacity bounds a MemoryStore created with capacity <= 0.
const DefaultMemoryCapacity = 10000

// MemoryStore implements an in-memory transition store. When full, the
// oldest transition is dropped.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	events   []state.Event
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity}
}

// Append stores a transition
func (s *MemoryStore) Append(_ context.Context, ev state.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == s.capacity {
		copy(s.events, s.events[1:])
		s.events = s.events[:len(s.events)-1]
	}
	s.events = append(s.events, ev.Clone())
	return nil
}

// List returns transitions matching q
func (s *MemoryStore) List(_ context.Context, q Query) ([]state.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []state.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
		if q.matches(s.events[i]) {
			out = append(out, s.events[i].Clone())
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Count returns the number of stored transitions
func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events), nil
}

// Clear removes every stored transition
func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
