package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/cayleygraph/quad"
)

// ErrStore marks failures raised by the underlying store.
var ErrStore = errors.New("store error")

// Wrap tags err as a store failure with the given action.
func Wrap(err error, action string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStore) {
		return fmt.Errorf("%s: %w", action, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrStore, action, err)
}

// Pattern selects quads. A nil term matches anything.
type Pattern struct {
	Subject   quad.Value
	Predicate quad.Value
	Object    quad.Value
	Context   quad.Value
}

// Matches reports whether q satisfies the pattern.
func (p Pattern) Matches(q quad.Quad) bool {
	return termMatches(p.Subject, q.Subject) &&
		termMatches(p.Predicate, q.Predicate) &&
		termMatches(p.Object, q.Object) &&
		termMatches(p.Context, q.Label)
}

func termMatches(want, got quad.Value) bool {
	if want == nil {
		return true
	}
	if got == nil {
		return false
	}
	return Key(want) == Key(got)
}

// Connection is a handle on one physical quad store.
type Connection interface {
	// ID identifies the store in diagnostics.
	ID() string

	// Read operations
	Query(ctx context.Context, p Pattern) ([]quad.Quad, error)

	// Write operations. Add is idempotent; Remove of an absent quad is a no-op.
	Add(ctx context.Context, q quad.Quad) error
	Remove(ctx context.Context, q quad.Quad) error

	// Transaction control
	AutoCommit() bool
	SetAutoCommit(ctx context.Context, on bool) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Close releases resources
	Close() error
}
