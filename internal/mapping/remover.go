package mapping

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cayleygraph/quad"

	"quadmap/internal/schema"
	"quadmap/internal/store"
)

// Remover deletes the triples that make up one entity's own representation.
// Entities it references are left alone.
type Remover struct {
	registry *schema.Registry
	observer Observer
	logger   *slog.Logger
}

// NewRemover creates a remover. observer may be nil.
func NewRemover(registry *schema.Registry, observer Observer, logger *slog.Logger) *Remover {
	if logger == nil {
		logger = slog.Default()
	}
	return &Remover{registry: registry, observer: observer, logger: logger}
}

// Remove deletes the chains and map entries owned by entity's collection
// fields, then every triple with entity as subject or object.
func (r *Remover) Remove(ctx context.Context, conn store.Connection, entity any) error {
	v, err := entityPointer(entity)
	if err != nil {
		return err
	}
	sch, err := r.registry.Resolve(v.Type())
	if err != nil {
		return err
	}
	id := v.Elem().FieldByIndex(sch.ID.Index).String()
	if id == "" {
		return fmt.Errorf("%w: %s has no identity", ErrNotFound, sch.Name)
	}

	tr := newWriteTraversal()
	if err := tr.begin(ctx, conn); err != nil {
		return err
	}
	return tr.finish(ctx, r.logger, r.remove(ctx, conn, sch, quad.IRI(id)))
}

func (r *Remover) remove(ctx context.Context, conn store.Connection, sch *schema.Schema, id quad.IRI) error {
	w := quadWriter{conn: conn, observer: r.observer}

	for _, f := range sch.Fields {
		if !f.Chained() && f.Kind != schema.KindMap {
			continue
		}
		heads, err := query(ctx, conn, store.Pattern{Subject: id, Predicate: f.Pred})
		if err != nil {
			return err
		}
		for _, h := range heads {
			if f.Chained() {
				err = removeChain(ctx, w, h.Object)
			} else {
				err = removeNode(ctx, w, h.Object)
			}
			if err != nil {
				return fmt.Errorf("%s.%s: %w", sch.Name, f.Name, err)
			}
		}
	}

	own, err := query(ctx, conn, store.Pattern{Subject: id})
	if err != nil {
		return err
	}
	inbound, err := query(ctx, conn, store.Pattern{Object: id})
	if err != nil {
		return err
	}
	if err := w.removeAll(ctx, own); err != nil {
		return err
	}
	if err := w.removeAll(ctx, inbound); err != nil {
		return err
	}
	r.logger.Debug("removed entity", "id", id, "store", conn.ID(), "triples", len(own)+len(inbound))
	return nil
}
