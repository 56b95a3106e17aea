package mapping

import (
	"context"
	"errors"
	"log/slog"
	"reflect"

	"quadmap/internal/store"
)

// writeTraversal is the state of one top-level persist or remove call. It is
// passed down every recursive call and discarded when the call returns.
type writeTraversal struct {
	// written maps an entity pointer to its identity IRI.
	written map[any]string
	// opened lists connections this traversal switched to manual commit.
	opened []store.Connection
	depth  int
}

func newWriteTraversal() *writeTraversal {
	return &writeTraversal{written: make(map[any]string)}
}

// begin joins conn to the traversal's transaction. A connection in
// auto-commit mode is switched to manual commit and restored by finish; one
// already in manual mode belongs to an outer unit of work and is left alone.
func (t *writeTraversal) begin(ctx context.Context, conn store.Connection) error {
	for _, c := range t.opened {
		if c == conn {
			return nil
		}
	}
	if !conn.AutoCommit() {
		return nil
	}
	if err := conn.SetAutoCommit(ctx, false); err != nil {
		return err
	}
	t.opened = append(t.opened, conn)
	return nil
}

// finish commits every transaction begin opened and restores auto-commit.
// When err is set nothing is committed or rolled back: the writes stay
// pending in manual-commit mode for the caller to resolve.
func (t *writeTraversal) finish(ctx context.Context, logger *slog.Logger, err error) error {
	if err != nil {
		for _, c := range t.opened {
			logger.Warn("operation failed mid-cascade, transaction left open",
				"store", c.ID(), "error", err)
		}
		return err
	}
	var errs []error
	for _, c := range t.opened {
		if cerr := c.Commit(ctx); cerr != nil {
			errs = append(errs, cerr)
			continue
		}
		if cerr := c.SetAutoCommit(ctx, true); cerr != nil {
			errs = append(errs, cerr)
		}
	}
	return errors.Join(errs...)
}

// readTraversal is the state of one top-level load.
type readTraversal struct {
	// loaded maps identity IRIs to the entity pointers built for them.
	loaded map[string]reflect.Value
	depth  int
}

func newReadTraversal() *readTraversal {
	return &readTraversal{loaded: make(map[string]reflect.Value)}
}
