package mapping

import (
	"context"
	"strings"

	"github.com/cayleygraph/quad"
	"github.com/google/uuid"

	"quadmap/internal/store"
	"quadmap/internal/vocab"
)

// quadWriter adds and removes quads on one connection and reports the churn.
type quadWriter struct {
	conn     store.Connection
	observer Observer
}

func (w quadWriter) add(ctx context.Context, q quad.Quad) error {
	if err := w.conn.Add(ctx, q); err != nil {
		return store.Wrap(err, "add quad")
	}
	if w.observer != nil {
		w.observer.QuadsAdded(w.conn.ID(), 1)
	}
	return nil
}

func (w quadWriter) remove(ctx context.Context, q quad.Quad) error {
	if err := w.conn.Remove(ctx, q); err != nil {
		return store.Wrap(err, "remove quad")
	}
	if w.observer != nil {
		w.observer.QuadsRemoved(w.conn.ID(), 1)
	}
	return nil
}

// ensure adds q unless it is already stored.
func (w quadWriter) ensure(ctx context.Context, q quad.Quad) error {
	existing, err := query(ctx, w.conn, store.Pattern{Subject: q.Subject, Predicate: q.Predicate, Object: q.Object, Context: q.Label})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	return w.add(ctx, q)
}

func (w quadWriter) removeAll(ctx context.Context, quads []quad.Quad) error {
	for _, q := range quads {
		if err := w.remove(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func query(ctx context.Context, conn store.Connection, p store.Pattern) ([]quad.Quad, error) {
	quads, err := conn.Query(ctx, p)
	if err != nil {
		return nil, store.Wrap(err, "query")
	}
	return quads, nil
}

// objects returns the distinct objects of the quads matching p.
func objects(ctx context.Context, conn store.Connection, p store.Pattern) ([]quad.Value, error) {
	quads, err := query(ctx, conn, p)
	if err != nil {
		return nil, err
	}
	return distinct(quads, func(q quad.Quad) quad.Value { return q.Object }), nil
}

func distinct(quads []quad.Quad, pick func(quad.Quad) quad.Value) []quad.Value {
	seen := make(map[string]bool, len(quads))
	out := make([]quad.Value, 0, len(quads))
	for _, q := range quads {
		v := pick(q)
		k := store.Key(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

func newBlankNode() quad.BNode {
	return quad.BNode("n" + strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// one returns the single object of (node, pred). Zero or several objects
// are a data integrity error.
func one(ctx context.Context, conn store.Connection, node, pred quad.Value) (quad.Value, error) {
	vals, err := objects(ctx, conn, store.Pattern{Subject: node, Predicate: pred})
	if err != nil {
		return nil, err
	}
	switch len(vals) {
	case 1:
		return vals[0], nil
	case 0:
		return nil, integrityErrorf("node %v has no %v", node, pred)
	default:
		return nil, integrityErrorf("node %v has %d values for %v", node, len(vals), pred)
	}
}

// readChain walks an rdf:first/rdf:rest chain from head and returns its
// elements in order.
func readChain(ctx context.Context, conn store.Connection, head quad.Value) ([]quad.Value, error) {
	out := []quad.Value{}
	seen := make(map[string]bool)
	for node := head; !isNil(node); {
		k := store.Key(node)
		if seen[k] {
			return nil, integrityErrorf("list chain loops back to %v", node)
		}
		seen[k] = true

		first, err := one(ctx, conn, node, vocab.RDFFirst)
		if err != nil {
			return nil, err
		}
		rest, err := one(ctx, conn, node, vocab.RDFRest)
		if err != nil {
			return nil, err
		}
		out = append(out, first)
		node = rest
	}
	return out, nil
}

func isNil(v quad.Value) bool {
	iri, ok := v.(quad.IRI)
	return ok && iri == vocab.RDFNil
}

// writeChain stores elems as a fresh chain in graph and returns its head.
// An empty sequence is rdf:nil.
func writeChain(ctx context.Context, w quadWriter, graph quad.Value, elems []quad.Value) (quad.Value, error) {
	if len(elems) == 0 {
		return vocab.RDFNil, nil
	}
	nodes := make([]quad.Value, len(elems))
	for i := range elems {
		nodes[i] = newBlankNode()
	}
	for i, elem := range elems {
		var rest quad.Value = vocab.RDFNil
		if i+1 < len(nodes) {
			rest = nodes[i+1]
		}
		if err := w.add(ctx, quad.Quad{Subject: nodes[i], Predicate: vocab.RDFFirst, Object: elem, Label: graph}); err != nil {
			return nil, err
		}
		if err := w.add(ctx, quad.Quad{Subject: nodes[i], Predicate: vocab.RDFRest, Object: rest, Label: graph}); err != nil {
			return nil, err
		}
	}
	return nodes[0], nil
}

// removeChain deletes every first/rest triple reachable from head. It stops
// quietly at a malformed node so a broken chain can still be cleaned up.
func removeChain(ctx context.Context, w quadWriter, head quad.Value) error {
	seen := make(map[string]bool)
	for node := head; node != nil && !isNil(node); {
		if _, ok := node.(quad.BNode); !ok {
			return nil
		}
		k := store.Key(node)
		if seen[k] {
			return nil
		}
		seen[k] = true

		cell, err := query(ctx, w.conn, store.Pattern{Subject: node})
		if err != nil {
			return err
		}
		var next quad.Value
		for _, q := range cell {
			if q.Predicate == vocab.RDFRest {
				next = q.Object
			}
		}
		if err := w.removeAll(ctx, cell); err != nil {
			return err
		}
		node = next
	}
	return nil
}

// entry is one decoded map entry node.
type entry struct {
	node  quad.Value
	key   quad.Value
	value quad.Value
}

func (e entry) id() string {
	return store.Key(e.key) + "\x00" + store.Key(e.value)
}

func readEntry(ctx context.Context, conn store.Connection, node quad.Value) (entry, error) {
	switch node.(type) {
	case quad.BNode, quad.IRI:
	default:
		return entry{}, integrityErrorf("map entry %v is not a node", node)
	}
	k, err := one(ctx, conn, node, vocab.EntryKey)
	if err != nil {
		return entry{}, err
	}
	v, err := one(ctx, conn, node, vocab.EntryValue)
	if err != nil {
		return entry{}, err
	}
	return entry{node: node, key: k, value: v}, nil
}

func writeEntry(ctx context.Context, w quadWriter, graph quad.Value, key, value quad.Value) (quad.Value, error) {
	node := newBlankNode()
	if err := w.add(ctx, quad.Quad{Subject: node, Predicate: vocab.EntryKey, Object: key, Label: graph}); err != nil {
		return nil, err
	}
	if err := w.add(ctx, quad.Quad{Subject: node, Predicate: vocab.EntryValue, Object: value, Label: graph}); err != nil {
		return nil, err
	}
	return node, nil
}

// removeNode deletes every triple whose subject is a blank node.
func removeNode(ctx context.Context, w quadWriter, node quad.Value) error {
	if _, ok := node.(quad.BNode); !ok {
		return nil
	}
	quads, err := query(ctx, w.conn, store.Pattern{Subject: node})
	if err != nil {
		return err
	}
	return w.removeAll(ctx, quads)
}
