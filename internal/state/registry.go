package state

import (
	"sync"
	"time"

	"github.com/cadre-oss/statecast/internal/clock"
	"github.com/google/uuid"
)

// DefaultCapacity bounds the transition log when no capacity is given.
const DefaultCapacity = 100

// Registry holds the current state and a bounded, oldest-first log of
// accepted transitions. Accept is the only mutator besides Clear.
type Registry struct {
	mu       sync.RWMutex
	clock    clock.Clock
	capacity int
	log      []Event
	current  *Event
	seq      uint64
	last     time.Time
}

// NewRegistry creates a registry. A capacity <= 0 means DefaultCapacity and
// a nil clock means wall time.
func NewRegistry(capacity int, clk clock.Clock) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		clock:    clock.OrReal(clk),
		capacity: capacity,
		log:      make([]Event, 0, capacity),
	}
}

// Accept finalizes p into an Event, makes it current, and appends it to the
// log, evicting the oldest entry when the log is full.
func (r *Registry) Accept(p Partial) Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if now.Before(r.last) {
		now = r.last
	}
	r.last = now
	r.seq++

	ev := Event{
		ID:           uuid.New().String(),
		Seq:          r.seq,
		Actor:        p.Actor,
		State:        p.State,
		RequiresUser: p.RequiresUser,
		Message:      p.Message,
		Timestamp:    now,
		Metadata:     p.Metadata.Clone(),
	}
	if p.Confidence != nil {
		c := *p.Confidence
		ev.Confidence = &c
	}

	if len(r.log) == r.capacity {
		copy(r.log, r.log[1:])
		r.log[len(r.log)-1] = ev
	} else {
		r.log = append(r.log, ev)
	}
	r.current = &ev

	return ev.Clone()
}

// Current returns the state of the most recently accepted event. Before the
// first event it returns Idle and false.
func (r *Registry) Current() (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return Idle, false
	}
	return r.current.State, true
}

// Latest returns the most recently accepted event, even if Clear has since
// emptied the log.
func (r *Registry) Latest() (Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return Event{}, false
	}
	return r.current.Clone(), true
}

// History returns a copy of the whole log, oldest first.
func (r *Registry) History() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneEvents(r.log)
}

// Recent returns the last n entries, oldest first.
func (r *Registry) Recent(n int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 {
		return []Event{}
	}
	if n > len(r.log) {
		n = len(r.log)
	}
	return cloneEvents(r.log[len(r.log)-n:])
}

// Clear empties the log. The current state is kept.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = r.log[:0]
}

// Len returns the number of logged events.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.log)
}

// Capacity returns the log bound.
func (r *Registry) Capacity() int {
	return r.capacity
}

func cloneEvents(in []Event) []Event {
	out := make([]Event, len(in))
	for i, ev := range in {
		out[i] = ev.Clone()
	}
	return out
}
