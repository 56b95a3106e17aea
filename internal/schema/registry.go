package schema

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/cayleygraph/quad"

	"quadmap/internal/vocab"
)

// ErrSchema marks invalid or missing schema metadata.
var ErrSchema = errors.New("schema error")

// ErrUnknownType is returned when no descriptor is registered for a type.
var ErrUnknownType = fmt.Errorf("%w: unknown entity type", ErrSchema)

// Registry holds descriptors and memoises their resolved schemas.
type Registry struct {
	mu        sync.RWMutex
	namespace string
	descs     map[reflect.Type]Descriptor
	byName    map[string]reflect.Type
	cache     map[reflect.Type]*Schema
}

// NewRegistry creates an empty registry. namespace is used for descriptors
// that declare none; empty means vocab.EntityNamespace.
func NewRegistry(namespace string) *Registry {
	if namespace == "" {
		namespace = vocab.EntityNamespace
	}
	return &Registry{
		namespace: namespace,
		descs:     make(map[reflect.Type]Descriptor),
		byName:    make(map[string]reflect.Type),
		cache:     make(map[reflect.Type]*Schema),
	}
}

// Register adds a descriptor. Validation happens on first Resolve.
func (r *Registry) Register(d Descriptor) error {
	if d.Type == nil {
		return fmt.Errorf("%w: descriptor %q has no type", ErrSchema, d.Name)
	}
	t := structType(d.Type)
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("%w: descriptor %q: %s is not a struct", ErrSchema, d.Name, d.Type)
	}
	if d.Name == "" {
		d.Name = t.PkgPath() + "." + t.Name()
		if i := strings.LastIndex(d.Name, "/"); i >= 0 {
			d.Name = d.Name[i+1:]
		}
	}
	if strings.ContainsAny(d.Name, "/#") {
		return fmt.Errorf("%w: type name %q must not contain '/' or '#'", ErrSchema, d.Name)
	}
	ns := d.Namespace
	if ns == "" {
		ns = r.namespace
	}
	if !strings.HasSuffix(ns, "/") && !strings.HasSuffix(ns, "#") {
		return fmt.Errorf("%w: descriptor %q: namespace %q must end with '/' or '#'", ErrSchema, d.Name, ns)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if other, ok := r.byName[d.Name]; ok && other != t {
		return fmt.Errorf("%w: type name %q already registered for %s", ErrSchema, d.Name, other)
	}
	r.descs[t] = d
	r.byName[d.Name] = t
	delete(r.cache, t)
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Resolve returns the schema of t (a struct type or pointer to one).
func (r *Registry) Resolve(t reflect.Type) (*Schema, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil type", ErrSchema)
	}
	t = structType(t)

	r.mu.RLock()
	s, ok := r.cache[t]
	d, registered := r.descs[t]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}
	if !registered {
		return nil, fmt.Errorf("%w %s", ErrUnknownType, t)
	}

	s, err := r.resolve(t, d)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[t] = s
	r.mu.Unlock()
	return s, nil
}

// ResolveName returns the schema registered under the type name.
func (r *Registry) ResolveName(name string) (*Schema, error) {
	r.mu.RLock()
	t, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownType, name)
	}
	return r.Resolve(t)
}

// Lookup returns the schema of an entity value.
func (r *Registry) Lookup(v any) (*Schema, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil entity", ErrSchema)
	}
	return r.Resolve(reflect.TypeOf(v))
}

// Names lists registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invalidate drops every memoised schema. Descriptors stay registered.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.cache = make(map[reflect.Type]*Schema)
	r.mu.Unlock()
}

func structType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func (r *Registry) resolve(t reflect.Type, d Descriptor) (*Schema, error) {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrSchema, d.Name, fmt.Sprintf(format, args...))
	}

	if d.IDField == "" {
		return nil, fail("no identity field declared")
	}
	if d.DefaultContext == "" {
		return nil, fail("no default context declared")
	}

	s := &Schema{
		Name:       d.Name,
		Type:       t,
		Namespace:  d.Namespace,
		Namespaces: d.Namespaces,
	}
	if s.Namespace == "" {
		s.Namespace = r.namespace
	}
	expand := func(name string) quad.IRI {
		return quad.IRI(expandIRI(name, d.Namespaces))
	}

	s.Class = quad.IRI(s.Namespace + d.Name)
	if d.ClassIRI != "" {
		s.Class = expand(d.ClassIRI)
	}
	for _, x := range d.ExtraTypes {
		s.ExtraTypes = append(s.ExtraTypes, expand(x))
	}
	for _, x := range d.Supertypes {
		s.Supertypes = append(s.Supertypes, expand(x))
	}
	s.DefaultContext = expand(d.DefaultContext)

	idField, ok := t.FieldByName(d.IDField)
	if !ok {
		return nil, fail("identity field %s not found on %s", d.IDField, t)
	}
	if idField.Type.Kind() != reflect.String {
		return nil, fail("identity field %s must be a string, got %s", d.IDField, idField.Type)
	}
	s.ID = &FieldInfo{Field: Field{Name: d.IDField}, Index: idField.Index, GoType: idField.Type, ValueType: idField.Type}

	seen := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		if seen[f.Name] {
			return nil, fail("field %s declared twice", f.Name)
		}
		seen[f.Name] = true

		info, err := resolveField(t, f, expand)
		if err != nil {
			return nil, fail("field %s: %v", f.Name, err)
		}
		s.Fields = append(s.Fields, info)
	}

	return s, nil
}

func resolveField(t reflect.Type, f Field, expand func(string) quad.IRI) (*FieldInfo, error) {
	sf, ok := t.FieldByName(f.Name)
	if !ok {
		return nil, fmt.Errorf("not found on %s", t)
	}
	if !sf.IsExported() {
		return nil, fmt.Errorf("must be exported")
	}
	if f.Predicate == "" {
		return nil, fmt.Errorf("no predicate")
	}

	info := &FieldInfo{
		Field:     f,
		Pred:      expand(f.Predicate),
		Index:     sf.Index,
		GoType:    sf.Type,
		ValueType: sf.Type,
	}

	if reflect.PointerTo(sf.Type).Implements(deferredIface) {
		info.Deferred = true
		info.ValueType = reflect.New(sf.Type).Interface().(Deferred).DeferredType()
	}
	if f.Fetch == FetchLazy && !info.Deferred {
		return nil, fmt.Errorf("lazy fetch requires a deferred wrapper, got %s", sf.Type)
	}

	vt := info.ValueType
	switch f.Kind {
	case KindScalar:
		if _, ok := ScalarTypeOf(vt); !ok {
			return nil, fmt.Errorf("unsupported scalar type %s", vt)
		}
	case KindList, KindSet:
		if vt.Kind() != reflect.Slice {
			return nil, fmt.Errorf("%s field must be a slice, got %s", f.Kind, vt)
		}
		info.Elem = vt.Elem()
		info.ElemEntity = IsEntityRef(info.Elem)
		if _, ok := ScalarTypeOf(info.Elem); !ok && !info.ElemEntity {
			return nil, fmt.Errorf("unsupported element type %s", info.Elem)
		}
	case KindMap:
		if vt.Kind() != reflect.Map {
			return nil, fmt.Errorf("map field must be a map, got %s", vt)
		}
		if f.KeyType == TypeUnspecified || f.ValueType == TypeUnspecified {
			return nil, fmt.Errorf("map field requires declared key and value types")
		}
		if !compatible(f.KeyType, vt.Key()) {
			return nil, fmt.Errorf("key type %s cannot hold declared key type", vt.Key())
		}
		if !compatible(f.ValueType, vt.Elem()) {
			return nil, fmt.Errorf("value type %s cannot hold declared value type", vt.Elem())
		}
	case KindEntity:
		if !IsEntityRef(vt) {
			return nil, fmt.Errorf("entity field must be a pointer to a struct, got %s", vt)
		}
	case KindEntityCollection:
		if vt.Kind() != reflect.Slice || !IsEntityRef(vt.Elem()) {
			return nil, fmt.Errorf("entity collection must be a slice of struct pointers, got %s", vt)
		}
		info.Elem = vt.Elem()
		info.ElemEntity = true
	case KindBoolClass:
		if vt.Kind() != reflect.Bool {
			return nil, fmt.Errorf("boolean field must be a bool, got %s", vt)
		}
		if f.TrueClass == "" || f.FalseClass == "" {
			return nil, fmt.Errorf("boolean field requires both true and false classes")
		}
		info.True = expand(f.TrueClass)
		info.False = expand(f.FalseClass)
		if info.True == info.False {
			return nil, fmt.Errorf("true and false classes must differ")
		}
	default:
		return nil, fmt.Errorf("unknown kind %d", f.Kind)
	}

	if f.Inverse {
		if f.Kind != KindEntity && !(f.Kind == KindEntityCollection && !f.Ordered) {
			return nil, fmt.Errorf("inverse is only supported on entity and unordered entity collection fields")
		}
	}
	return info, nil
}

// expandIRI expands "prefix:local" through ns. Absolute IRIs and unknown
// prefixes are returned unchanged.
func expandIRI(name string, ns map[string]string) string {
	prefix, local, ok := strings.Cut(name, ":")
	if !ok || strings.HasPrefix(local, "//") {
		return name
	}
	if base, ok := ns[prefix]; ok {
		return base + local
	}
	return name
}
