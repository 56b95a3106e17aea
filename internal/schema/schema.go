package schema

import (
	"reflect"

	"github.com/cayleygraph/quad"
)

// Field declares how one struct field is encoded.
type Field struct {
	// Name is the Go struct field name.
	Name string
	// Predicate is an absolute IRI or a "prefix:local" name expanded through
	// the descriptor's namespace table.
	Predicate string
	Kind      Kind
	Fetch     Fetch
	// Inverse stores "referent predicate owner" instead of "owner predicate
	// referent". Entity-valued kinds only.
	Inverse bool
	// Ordered encodes a KindEntityCollection as a chain instead of a set.
	Ordered bool

	// KindBoolClass only.
	TrueClass  string
	FalseClass string

	// KindMap only; both are required.
	KeyType   ScalarType
	ValueType ScalarType
}

// Descriptor is the registration record for one entity type.
type Descriptor struct {
	// Name is the fully qualified type name embedded in identity IRIs. It
	// must not contain '/' or '#'.
	Name string
	// Type is the struct type (or a pointer to it).
	Type reflect.Type
	// Namespace prefixes minted identity IRIs and the default class IRI.
	// Empty uses the registry default.
	Namespace string
	// ClassIRI overrides Namespace+Name as the class of every instance.
	ClassIRI       string
	ExtraTypes     []string
	Supertypes     []string
	DefaultContext string
	// Namespaces maps prefixes to IRIs for compact predicate names.
	Namespaces map[string]string
	// IDField names the string field holding the identity IRI.
	IDField string
	Fields  []Field
}

// Schema is a resolved, immutable Descriptor.
type Schema struct {
	Name           string
	Type           reflect.Type
	Namespace      string
	Class          quad.IRI
	ExtraTypes     []quad.IRI
	Supertypes     []quad.IRI
	DefaultContext quad.IRI
	Namespaces     map[string]string
	ID             *FieldInfo
	Fields         []*FieldInfo
}

// IdentityPrefix is the part of every minted identity IRI before the final
// underscore.
func (s *Schema) IdentityPrefix() string {
	return s.Namespace + s.Name
}

// Types lists every class an instance is asserted to belong to.
func (s *Schema) Types() []quad.IRI {
	return append([]quad.IRI{s.Class}, s.ExtraTypes...)
}

// Field returns the resolved field with the given Go name.
func (s *Schema) Field(name string) (*FieldInfo, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// FieldInfo is a Field plus everything derived from the Go struct.
type FieldInfo struct {
	Field
	Pred  quad.IRI
	Index []int
	// GoType is the declared struct field type.
	GoType reflect.Type
	// ValueType is GoType, or T when GoType is a deferred wrapper.
	ValueType reflect.Type
	// Deferred is set when GoType wraps its value for lazy loading.
	Deferred bool
	// Elem is the slice element type of list, set and collection fields.
	Elem reflect.Type
	// ElemEntity is set when Elem refers to an entity.
	ElemEntity bool
	True       quad.IRI
	False      quad.IRI
}

// Chained reports whether the field is stored as an rdf:first/rdf:rest chain.
func (f *FieldInfo) Chained() bool {
	return f.Kind == KindList || (f.Kind == KindEntityCollection && f.Ordered)
}

// Deferred is implemented by wrapper types that postpone loading a field
// until first access. DeferredType reports the wrapped value type.
type Deferred interface {
	DeferredType() reflect.Type
}

var deferredIface = reflect.TypeOf((*Deferred)(nil)).Elem()

// For returns the reflect.Type of T for use in Descriptor.Type.
func For[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
