package store

import (
	"context"
	"time"

	"github.com/cadre-oss/statecast/internal/state"
)

const recordTimeout = 5 * time.Second

// Recorder is a blocking hook that appends every accepted transition to a
// Store. Attach it with event.Hub.Register.
type Recorder struct {
	store Store
}

// NewRecorder creates a recorder writing to s.
func NewRecorder(s Store) *Recorder {
	return &Recorder{store: s}
}

func (r *Recorder) Name() string             { return "store-recorder" }
func (r *Recorder) Matches(state.State) bool { return true }
func (r *Recorder) IsBlocking() bool         { return true }

// Handle appends ev to the store.
func (r *Recorder) Handle(ev state.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	return r.store.Append(ctx, ev)
}
