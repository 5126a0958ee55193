// Package store persists accepted transitions beyond the registry's bounded
// in-memory window.
package store

import (
	"context"

	"github.com/cadre-oss/statecast/internal/errors"
	"github.com/cadre-oss/statecast/internal/state"
)

// Store defines the interface for transition storage backends
type Store interface {
	Append(ctx context.Context, ev state.Event) error
	List(ctx context.Context, q Query) ([]state.Event, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Close() error
}

// Query filters stored transitions. Zero fields match everything. With a
// Limit, the most recent matches are returned. Results are oldest first.
type Query struct {
	Actor string
	State state.State
	Limit int
}

func (q Query) matches(ev state.Event) bool {
	if q.Actor != "" && ev.Actor != q.Actor {
		return false
	}
	if q.State != "" && ev.State != q.State {
		return false
	}
	return true
}

// Open creates the backend named by driver.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "memory", "":
		return NewMemoryStore(0), nil
	case "sqlite":
		s, err := NewSQLiteStore(path)
		if err != nil {
			return nil, errors.Wrap(errors.CodeStoreError, "failed to create sqlite store", err)
		}
		return s, nil
	default:
		return nil, errors.Newf(errors.CodeConfigInvalid, "unsupported store driver: %s", driver).
			WithSuggestion("Use one of: memory, sqlite")
	}
}
