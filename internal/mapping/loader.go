package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/cayleygraph/quad"

	"quadmap/internal/schema"
	"quadmap/internal/store"
	"quadmap/internal/vocab"
)

// Loader reconstructs entities from stored triples.
type Loader struct {
	registry *schema.Registry
	resolver Resolver
	logger   *slog.Logger
}

// NewLoader creates a loader. resolver may be nil, in which case referenced
// entities are read from the caller's connection.
func NewLoader(registry *schema.Registry, resolver Resolver, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{registry: registry, resolver: resolver, logger: logger}
}

// Find loads the entity with identity id. typ may be nil, in which case the
// type is recovered from id. It returns a pointer to the entity struct and
// false when no triple has id as subject.
func (l *Loader) Find(ctx context.Context, conn store.Connection, typ reflect.Type, id string) (any, bool, error) {
	var (
		sch *schema.Schema
		err error
	)
	if typ == nil {
		name, ok := TypeNameFromIRI(id)
		if !ok {
			return nil, false, routingErrorf("cannot recover a type name from %s", id)
		}
		sch, err = l.registry.ResolveName(name)
		if errors.Is(err, schema.ErrUnknownType) {
			return nil, false, fmt.Errorf("%w: %s: %w", ErrRouting, id, err)
		}
	} else {
		sch, err = l.registry.Resolve(typ)
	}
	if err != nil {
		return nil, false, err
	}

	v, found, err := l.find(ctx, newReadTraversal(), conn, sch, id)
	if err != nil || !found {
		return nil, false, err
	}
	return v.Interface(), true, nil
}

func (l *Loader) find(ctx context.Context, tr *readTraversal, conn store.Connection, sch *schema.Schema, id string) (reflect.Value, bool, error) {
	subject := quad.IRI(id)
	quads, err := query(ctx, conn, store.Pattern{Subject: subject})
	if err != nil {
		return reflect.Value{}, false, err
	}
	if len(quads) == 0 {
		return reflect.Value{}, false, nil
	}

	byPred := make(map[quad.IRI][]quad.Quad)
	for _, q := range quads {
		if p, ok := q.Predicate.(quad.IRI); ok {
			byPred[p] = append(byPred[p], q)
		}
	}

	ptr := reflect.New(sch.Type)
	ptr.Elem().FieldByIndex(sch.ID.Index).SetString(id)
	tr.loaded[id] = ptr

	tr.depth++
	defer func() { tr.depth-- }()
	l.logger.Debug("loading entity", "id", id, "type", sch.Name, "store", conn.ID(), "depth", tr.depth)

	for _, f := range sch.Fields {
		var values []quad.Value
		switch {
		case f.Kind == schema.KindBoolClass:
			values = distinct(byPred[vocab.RDFType], func(q quad.Quad) quad.Value { return q.Object })
		case f.Inverse:
			inbound, err := query(ctx, conn, store.Pattern{Predicate: f.Pred, Object: subject})
			if err != nil {
				return reflect.Value{}, false, err
			}
			values = distinct(inbound, func(q quad.Quad) quad.Value { return q.Subject })
		default:
			values = distinct(byPred[f.Pred], func(q quad.Quad) quad.Value { return q.Object })
		}

		field := ptr.Elem().FieldByIndex(f.Index)
		if f.Fetch == schema.FetchLazy {
			l.installPlaceholder(ctx, conn, id, f, values, field)
			continue
		}

		val, err := l.decodeField(ctx, tr, conn, id, f, values)
		if err != nil {
			return reflect.Value{}, false, fmt.Errorf("%s.%s: %w", sch.Name, f.Name, err)
		}
		if !val.IsValid() {
			continue
		}
		if f.Deferred {
			slotOf(field).assign(val)
		} else {
			field.Set(val)
		}
	}
	return ptr, true, nil
}

// installPlaceholder defers decoding of a lazy field until its first Get.
// The load runs in a traversal of its own, detached from ctx cancellation
// since it can happen long after the call that built the entity returned.
func (l *Loader) installPlaceholder(ctx context.Context, conn store.Connection, owner string, f *schema.FieldInfo, values []quad.Value, field reflect.Value) {
	detached := context.WithoutCancel(ctx)
	slotOf(field).deferTo(func() (reflect.Value, error) {
		l.logger.Debug("resolving lazy field", "id", owner, "field", f.Name)
		v, err := l.decodeField(detached, newReadTraversal(), conn, owner, f, values)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("lazy field %s: %w", f.Name, err)
		}
		return v, nil
	})
}

// decodeField turns the raw stored values of a field into a value of
// f.ValueType. An invalid result means the field is unset.
func (l *Loader) decodeField(ctx context.Context, tr *readTraversal, conn store.Connection, owner string, f *schema.FieldInfo, values []quad.Value) (reflect.Value, error) {
	switch f.Kind {
	case schema.KindScalar:
		term, err := single(values)
		if err != nil || term == nil {
			return reflect.Value{}, err
		}
		return decodeScalar(term, f.ValueType)

	case schema.KindBoolClass:
		for _, v := range values {
			if v == f.True {
				return reflect.ValueOf(true).Convert(f.ValueType), nil
			}
		}
		for _, v := range values {
			if v == f.False {
				return reflect.ValueOf(false).Convert(f.ValueType), nil
			}
		}
		l.logger.Warn("boolean field has neither class, decoding as false",
			"id", owner, "field", f.Name, "true_class", f.True, "false_class", f.False)
		return reflect.Zero(f.ValueType), nil

	case schema.KindEntity:
		term, err := single(values)
		if err != nil || term == nil {
			return reflect.Value{}, err
		}
		ref, err := l.loadRef(ctx, tr, conn, f.ValueType, term)
		if err != nil || !ref.IsValid() {
			return reflect.Value{}, err
		}
		return ref, nil

	case schema.KindList, schema.KindSet, schema.KindEntityCollection:
		if len(values) == 0 {
			return reflect.Value{}, nil
		}
		elems := values
		if f.Chained() {
			head, err := single(values)
			if err != nil {
				return reflect.Value{}, err
			}
			if elems, err = readChain(ctx, conn, head); err != nil {
				return reflect.Value{}, err
			}
		}
		out := reflect.MakeSlice(f.ValueType, 0, len(elems))
		for _, term := range elems {
			var (
				v   reflect.Value
				err error
			)
			if f.ElemEntity {
				v, err = l.loadRef(ctx, tr, conn, f.Elem, term)
			} else {
				v, err = decodeScalar(term, f.Elem)
			}
			if err != nil {
				return reflect.Value{}, err
			}
			if !v.IsValid() {
				continue
			}
			out = reflect.Append(out, v)
		}
		return out, nil

	case schema.KindMap:
		if len(values) == 0 {
			return reflect.Value{}, nil
		}
		out := reflect.MakeMapWithSize(f.ValueType, len(values))
		seen := make(map[string]string, len(values))
		for _, node := range values {
			e, err := readEntry(ctx, conn, node)
			if err != nil {
				return reflect.Value{}, err
			}
			key, value := store.Key(e.key), store.Key(e.value)
			if prev, ok := seen[key]; ok {
				if prev != value {
					return reflect.Value{}, integrityErrorf("map key %v has several values", e.key)
				}
				continue
			}
			seen[key] = value
			k, err := decodeAs(f.KeyType, e.key, f.ValueType.Key())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("map key: %w", err)
			}
			v, err := decodeAs(f.Field.ValueType, e.value, f.ValueType.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("map value: %w", err)
			}
			out.SetMapIndex(k, v)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("%w: unknown field kind %s", ErrSchema, f.Kind)
}

// loadRef resolves a reference to an entity of type typ (a struct pointer).
// An entity already built in this traversal is reused; a reference to an
// identity with no stored triples yields an invalid value.
func (l *Loader) loadRef(ctx context.Context, tr *readTraversal, conn store.Connection, typ reflect.Type, term quad.Value) (reflect.Value, error) {
	iri, ok := term.(quad.IRI)
	if !ok {
		return reflect.Value{}, integrityErrorf("entity reference %v is not an IRI", term)
	}
	id := string(iri)
	if v, ok := tr.loaded[id]; ok {
		if !v.Type().AssignableTo(typ) {
			return reflect.Value{}, integrityErrorf("%s is a %s, not a %s", id, v.Type(), typ)
		}
		return v, nil
	}

	sch, err := l.registry.Resolve(typ)
	if err != nil {
		return reflect.Value{}, err
	}
	target := conn
	if l.resolver != nil {
		if target, err = l.resolver.ForIRI(ctx, id); err != nil {
			return reflect.Value{}, err
		}
	}

	v, found, err := l.find(ctx, tr, target, sch, id)
	if err != nil {
		return reflect.Value{}, err
	}
	if !found {
		l.logger.Debug("dangling reference", "id", id, "store", target.ID())
		return reflect.Value{}, nil
	}
	return v, nil
}

// single returns the only value, nil for none, and a data integrity error
// for several.
func single(values []quad.Value) (quad.Value, error) {
	switch len(values) {
	case 0:
		return nil, nil
	case 1:
		return values[0], nil
	}
	return nil, integrityErrorf("expected one value, found %d", len(values))
}
