package mapping

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/cayleygraph/quad"

	"quadmap/internal/schema"
	"quadmap/internal/store"
	"quadmap/internal/vocab"
)

// Persister writes entity graphs as triples, diffing each field against what
// is already stored.
type Persister struct {
	registry *schema.Registry
	resolver Resolver
	observer Observer
	logger   *slog.Logger

	mu       sync.Mutex
	declared map[string]bool
}

// NewPersister creates a persister. resolver and observer may be nil.
func NewPersister(registry *schema.Registry, resolver Resolver, observer Observer, logger *slog.Logger) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{
		registry: registry,
		resolver: resolver,
		observer: observer,
		logger:   logger,
		declared: make(map[string]bool),
	}
}

// Persist writes entity, a pointer to a registered struct, and every entity
// reachable from it. The identity field is assigned if empty. overrideContext
// replaces the type's default context for this entity's own triples; empty
// keeps the context the entity was last stored under.
//
// The whole cascade runs in one transaction per store. On failure nothing is
// rolled back: stores left in manual-commit mode must be resolved by the
// caller.
func (p *Persister) Persist(ctx context.Context, conn store.Connection, entity any, overrideContext string) (string, error) {
	v, err := entityPointer(entity)
	if err != nil {
		return "", err
	}
	tr := newWriteTraversal()
	id, err := p.persist(ctx, tr, conn, v, overrideContext)
	if err = tr.finish(ctx, p.logger, err); err != nil {
		return "", err
	}
	return id, nil
}

func entityPointer(entity any) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: entity must be a non-nil struct pointer, got %T", ErrSchema, entity)
	}
	return v, nil
}

// entityState is what one persist call knows about the entity it writes.
type entityState struct {
	id    quad.IRI
	graph quad.IRI
	// home is the type's default context, where schema declarations live.
	home quad.IRI
	w    quadWriter
}

func (p *Persister) persist(ctx context.Context, tr *writeTraversal, conn store.Connection, ptr reflect.Value, override string) (string, error) {
	key := ptr.Interface()
	if id, ok := tr.written[key]; ok {
		return id, nil
	}

	sch, err := p.registry.Resolve(ptr.Type())
	if err != nil {
		return "", err
	}
	if err := tr.begin(ctx, conn); err != nil {
		return "", err
	}
	w := quadWriter{conn: conn, observer: p.observer}
	if err := p.declareClasses(ctx, w, sch); err != nil {
		return "", err
	}

	idField := ptr.Elem().FieldByIndex(sch.ID.Index)
	id := idField.String()
	if id == "" {
		id = mintIdentity(sch)
		idField.SetString(id)
		p.logger.Debug("minted identity", "id", id, "type", sch.Name)
	}
	tr.written[key] = id

	tr.depth++
	defer func() { tr.depth-- }()
	p.logger.Debug("persisting entity", "id", id, "type", sch.Name, "store", conn.ID(), "depth", tr.depth)

	st := entityState{id: quad.IRI(id), home: sch.DefaultContext, w: w}
	if st.graph, err = p.effectiveContext(ctx, w, sch, st.id, override); err != nil {
		return "", err
	}
	for _, class := range sch.Types() {
		if err := w.ensure(ctx, quad.Quad{Subject: st.id, Predicate: vocab.RDFType, Object: class, Label: st.graph}); err != nil {
			return "", err
		}
	}

	for _, f := range sch.Fields {
		field := ptr.Elem().FieldByIndex(f.Index)
		if f.Deferred {
			slot := slotOf(field)
			if slot.pending() {
				continue
			}
			field = slot.current()
		}
		if err := p.persistField(ctx, tr, st, f, field); err != nil {
			return "", fmt.Errorf("%s.%s: %w", sch.Name, f.Name, err)
		}
	}
	return id, nil
}

// declareClasses asserts the class hierarchy of sch once per store.
func (p *Persister) declareClasses(ctx context.Context, w quadWriter, sch *schema.Schema) error {
	if !p.firstTime("class|" + w.conn.ID() + "|" + sch.Name) {
		return nil
	}
	for _, class := range sch.Types() {
		if err := w.ensure(ctx, quad.Quad{Subject: class, Predicate: vocab.RDFType, Object: vocab.OWLClass, Label: sch.DefaultContext}); err != nil {
			return err
		}
		for _, super := range sch.Supertypes {
			if err := w.ensure(ctx, quad.Quad{Subject: class, Predicate: vocab.RDFSSubClassOf, Object: super, Label: sch.DefaultContext}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Persister) firstTime(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.declared[key] {
		return false
	}
	p.declared[key] = true
	return true
}

// effectiveContext returns the graph the entity's triples live in. An
// override differing from the default is recorded with a context triple in
// the default graph so later persists without an override keep using it.
// When the override changes the graph, the entity's triples are moved out of
// the graph they were stored in.
func (p *Persister) effectiveContext(ctx context.Context, w quadWriter, sch *schema.Schema, id quad.IRI, override string) (quad.IRI, error) {
	def := sch.DefaultContext
	stored, err := query(ctx, w.conn, store.Pattern{Subject: id, Predicate: vocab.ContextOverride, Context: def})
	if err != nil {
		return "", err
	}
	previous := def
	for _, q := range stored {
		if iri, ok := q.Object.(quad.IRI); ok {
			previous = iri
			break
		}
	}
	if override == "" {
		return previous, nil
	}

	graph := quad.IRI(override)
	for _, q := range stored {
		if q.Object == graph {
			continue
		}
		if err := w.remove(ctx, q); err != nil {
			return "", err
		}
	}
	if graph != def {
		if err := w.ensure(ctx, quad.Quad{Subject: id, Predicate: vocab.ContextOverride, Object: graph, Label: def}); err != nil {
			return "", err
		}
	}
	if graph != previous {
		if err := p.moveGraph(ctx, w, sch, id, previous, graph); err != nil {
			return "", err
		}
	}
	return graph, nil
}

// moveGraph moves the entity's own triples from one graph to another: its
// subject triples, the chain and entry nodes they own, and inverse field
// triples naming it.
func (p *Persister) moveGraph(ctx context.Context, w quadWriter, sch *schema.Schema, id quad.IRI, from, to quad.IRI) error {
	own, err := query(ctx, w.conn, store.Pattern{Subject: id, Context: from})
	if err != nil {
		return err
	}
	var moving []quad.Quad
	for _, q := range own {
		if q.Predicate == vocab.ContextOverride {
			continue
		}
		moving = append(moving, q)
	}
	for _, f := range sch.Fields {
		if !f.Inverse {
			continue
		}
		inbound, err := query(ctx, w.conn, store.Pattern{Predicate: f.Pred, Object: id, Context: from})
		if err != nil {
			return err
		}
		moving = append(moving, inbound...)
	}

	seen := make(map[quad.BNode]bool)
	for len(moving) > 0 {
		q := moving[0]
		moving = moving[1:]
		if err := w.remove(ctx, q); err != nil {
			return err
		}
		q.Label = to
		if err := w.add(ctx, q); err != nil {
			return err
		}
		node, ok := q.Object.(quad.BNode)
		if !ok || seen[node] {
			continue
		}
		seen[node] = true
		owned, err := query(ctx, w.conn, store.Pattern{Subject: node, Context: from})
		if err != nil {
			return err
		}
		moving = append(moving, owned...)
	}
	p.logger.Debug("moved entity between contexts", "id", id, "from", from, "to", to)
	return nil
}

func (p *Persister) persistField(ctx context.Context, tr *writeTraversal, st entityState, f *schema.FieldInfo, field reflect.Value) error {
	switch f.Kind {
	case schema.KindScalar:
		var want []quad.Value
		term, ok, err := encodeScalar(field)
		if err != nil {
			return err
		}
		if ok {
			want = append(want, term)
		}
		return p.diffObjects(ctx, st, f.Pred, want)

	case schema.KindBoolClass:
		return p.persistBool(ctx, st, f, field.Bool())

	case schema.KindEntity:
		var want []quad.Value
		if !field.IsNil() {
			ref, err := p.persistRef(ctx, tr, st.w.conn, field)
			if err != nil {
				return err
			}
			want = append(want, ref)
		}
		if f.Inverse {
			return p.diffSubjects(ctx, st, f.Pred, want)
		}
		return p.diffObjects(ctx, st, f.Pred, want)

	case schema.KindSet, schema.KindEntityCollection, schema.KindList:
		var want []quad.Value
		if !field.IsNil() {
			want = make([]quad.Value, 0, field.Len())
			for i := 0; i < field.Len(); i++ {
				term, ok, err := p.encodeElem(ctx, tr, st, f, field.Index(i))
				if err != nil {
					return err
				}
				if ok {
					want = append(want, term)
				}
			}
		}
		switch {
		case f.Chained():
			return p.persistChain(ctx, st, f, want, field.IsNil())
		case f.Inverse:
			return p.diffSubjects(ctx, st, f.Pred, want)
		}
		return p.diffObjects(ctx, st, f.Pred, want)

	case schema.KindMap:
		return p.persistMap(ctx, st, f, field)
	}
	return fmt.Errorf("%w: unknown field kind %s", ErrSchema, f.Kind)
}

func (p *Persister) encodeElem(ctx context.Context, tr *writeTraversal, st entityState, f *schema.FieldInfo, elem reflect.Value) (quad.Value, bool, error) {
	if !f.ElemEntity {
		return encodeScalar(elem)
	}
	if elem.IsNil() {
		return nil, false, nil
	}
	ref, err := p.persistRef(ctx, tr, st.w.conn, elem)
	if err != nil {
		return nil, false, err
	}
	return ref, true, nil
}

// persistRef persists a referenced entity, in the store that owns its type,
// and returns its identity.
func (p *Persister) persistRef(ctx context.Context, tr *writeTraversal, conn store.Connection, ref reflect.Value) (quad.IRI, error) {
	if id, ok := tr.written[ref.Interface()]; ok {
		return quad.IRI(id), nil
	}
	target := conn
	if p.resolver != nil {
		sch, err := p.registry.Resolve(ref.Type())
		if err != nil {
			return "", err
		}
		if target, err = p.resolver.ForType(ctx, sch.Name); err != nil {
			return "", err
		}
	}
	id, err := p.persist(ctx, tr, target, ref, "")
	if err != nil {
		return "", err
	}
	return quad.IRI(id), nil
}

// diffObjects makes the objects of (id, pred) in the entity's graph equal to
// want, touching only the difference.
func (p *Persister) diffObjects(ctx context.Context, st entityState, pred quad.IRI, want []quad.Value) error {
	have, err := query(ctx, st.w.conn, store.Pattern{Subject: st.id, Predicate: pred, Context: st.graph})
	if err != nil {
		return err
	}
	return applyDiff(ctx, st.w, have, want, func(v quad.Value) quad.Quad {
		return quad.Quad{Subject: st.id, Predicate: pred, Object: v, Label: st.graph}
	}, func(q quad.Quad) quad.Value { return q.Object })
}

// diffSubjects is diffObjects for inverse fields: (ref, pred, id).
func (p *Persister) diffSubjects(ctx context.Context, st entityState, pred quad.IRI, want []quad.Value) error {
	have, err := query(ctx, st.w.conn, store.Pattern{Predicate: pred, Object: st.id, Context: st.graph})
	if err != nil {
		return err
	}
	return applyDiff(ctx, st.w, have, want, func(v quad.Value) quad.Quad {
		return quad.Quad{Subject: v, Predicate: pred, Object: st.id, Label: st.graph}
	}, func(q quad.Quad) quad.Value { return q.Subject })
}

func applyDiff(ctx context.Context, w quadWriter, have []quad.Quad, want []quad.Value, build func(quad.Value) quad.Quad, term func(quad.Quad) quad.Value) error {
	wanted := make(map[string]bool, len(want))
	for _, v := range want {
		wanted[store.Key(v)] = true
	}
	stored := make(map[string]bool, len(have))
	for _, q := range have {
		k := store.Key(term(q))
		stored[k] = true
		if !wanted[k] {
			if err := w.remove(ctx, q); err != nil {
				return err
			}
		}
	}
	for _, v := range want {
		k := store.Key(v)
		if stored[k] {
			continue
		}
		stored[k] = true
		if err := w.add(ctx, build(v)); err != nil {
			return err
		}
	}
	return nil
}

// persistBool keeps exactly one of the field's two classes asserted.
func (p *Persister) persistBool(ctx context.Context, st entityState, f *schema.FieldInfo, value bool) error {
	if p.firstTime("disjoint|" + st.w.conn.ID() + "|" + string(f.True) + "|" + string(f.False)) {
		if err := st.w.ensure(ctx, quad.Quad{Subject: f.True, Predicate: vocab.OWLDisjointWith, Object: f.False, Label: st.home}); err != nil {
			return err
		}
	}
	want, other := f.True, f.False
	if !value {
		want, other = f.False, f.True
	}
	stale, err := query(ctx, st.w.conn, store.Pattern{Subject: st.id, Predicate: vocab.RDFType, Object: other, Context: st.graph})
	if err != nil {
		return err
	}
	if err := st.w.removeAll(ctx, stale); err != nil {
		return err
	}
	return st.w.ensure(ctx, quad.Quad{Subject: st.id, Predicate: vocab.RDFType, Object: want, Label: st.graph})
}

// persistChain replaces the stored chain only when its decoded elements
// differ from want.
func (p *Persister) persistChain(ctx context.Context, st entityState, f *schema.FieldInfo, want []quad.Value, unset bool) error {
	heads, err := query(ctx, st.w.conn, store.Pattern{Subject: st.id, Predicate: f.Pred, Context: st.graph})
	if err != nil {
		return err
	}
	if !unset && len(heads) == 1 {
		if have, err := readChain(ctx, st.w.conn, heads[0].Object); err == nil && sameTerms(have, want) {
			return nil
		}
	}

	for _, h := range heads {
		if err := removeChain(ctx, st.w, h.Object); err != nil {
			return err
		}
		if err := st.w.remove(ctx, h); err != nil {
			return err
		}
	}
	if unset {
		return nil
	}
	head, err := writeChain(ctx, st.w, st.graph, want)
	if err != nil {
		return err
	}
	p.logger.Debug("rewrote list chain", "id", st.id, "field", f.Name, "length", len(want))
	return st.w.add(ctx, quad.Quad{Subject: st.id, Predicate: f.Pred, Object: head, Label: st.graph})
}

func sameTerms(a, b []quad.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if store.Key(a[i]) != store.Key(b[i]) {
			return false
		}
	}
	return true
}

// persistMap diffs entries by (key, value) and adds or removes whole entry
// nodes. Malformed entry nodes are removed.
func (p *Persister) persistMap(ctx context.Context, st entityState, f *schema.FieldInfo, field reflect.Value) error {
	type pair struct{ key, value quad.Value }
	want := make(map[string]pair)
	if !field.IsNil() {
		iter := field.MapRange()
		for iter.Next() {
			k, err := encodeAs(f.KeyType, iter.Key())
			if err != nil {
				return fmt.Errorf("map key: %w", err)
			}
			v, err := encodeAs(f.Field.ValueType, iter.Value())
			if err != nil {
				return fmt.Errorf("map value: %w", err)
			}
			e := entry{key: k, value: v}
			want[e.id()] = pair{k, v}
		}
	}

	links, err := query(ctx, st.w.conn, store.Pattern{Subject: st.id, Predicate: f.Pred, Context: st.graph})
	if err != nil {
		return err
	}
	kept := make(map[string]bool, len(links))
	for _, link := range links {
		e, err := readEntry(ctx, st.w.conn, link.Object)
		if err == nil {
			if _, ok := want[e.id()]; ok && !kept[e.id()] {
				kept[e.id()] = true
				continue
			}
		}
		if err := removeNode(ctx, st.w, link.Object); err != nil {
			return err
		}
		if err := st.w.remove(ctx, link); err != nil {
			return err
		}
	}

	for id, e := range want {
		if kept[id] {
			continue
		}
		node, err := writeEntry(ctx, st.w, st.graph, e.key, e.value)
		if err != nil {
			return err
		}
		if err := st.w.add(ctx, quad.Quad{Subject: st.id, Predicate: f.Pred, Object: node, Label: st.graph}); err != nil {
			return err
		}
	}
	return nil
}
