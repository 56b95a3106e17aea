package schema

import (
	"math/big"
	"net/url"
	"reflect"
	"time"

	"github.com/cayleygraph/quad"
	"github.com/google/uuid"

	"quadmap/internal/vocab"
)

// Kind selects the triple encoding of a field.
type Kind int

const (
	KindScalar Kind = iota
	KindList
	KindSet
	KindMap
	KindEntity
	KindEntityCollection
	KindBoolClass
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindMap:
		return "map"
	case KindEntity:
		return "entity"
	case KindEntityCollection:
		return "entity-collection"
	case KindBoolClass:
		return "bool-class"
	default:
		return "unknown"
	}
}

// Fetch controls when a field is decoded on load.
type Fetch int

const (
	FetchEager Fetch = iota
	FetchLazy
)

// ScalarType names a literal type. Map fields must declare one for keys and
// one for values.
type ScalarType int

const (
	TypeUnspecified ScalarType = iota
	TypeString
	TypeBool
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeBigInt
	TypeBigDecimal
	TypeDateTime
	TypeUUID
	TypeURI
)

var (
	bigIntType   = reflect.TypeOf((*big.Int)(nil))
	bigFloatType = reflect.TypeOf((*big.Float)(nil))
	urlType      = reflect.TypeOf((*url.URL)(nil))
	timeType     = reflect.TypeOf(time.Time{})
	uuidType     = reflect.TypeOf(uuid.UUID{})
)

// GoType is the canonical Go type values of st decode to.
func (st ScalarType) GoType() reflect.Type {
	switch st {
	case TypeString:
		return reflect.TypeOf("")
	case TypeBool:
		return reflect.TypeOf(false)
	case TypeInt8:
		return reflect.TypeOf(int8(0))
	case TypeInt16:
		return reflect.TypeOf(int16(0))
	case TypeInt32:
		return reflect.TypeOf(int32(0))
	case TypeInt64:
		return reflect.TypeOf(int64(0))
	case TypeUint8:
		return reflect.TypeOf(uint8(0))
	case TypeUint16:
		return reflect.TypeOf(uint16(0))
	case TypeUint32:
		return reflect.TypeOf(uint32(0))
	case TypeUint64:
		return reflect.TypeOf(uint64(0))
	case TypeFloat32:
		return reflect.TypeOf(float32(0))
	case TypeFloat64:
		return reflect.TypeOf(float64(0))
	case TypeBigInt:
		return bigIntType
	case TypeBigDecimal:
		return bigFloatType
	case TypeDateTime:
		return timeType
	case TypeUUID:
		return uuidType
	case TypeURI:
		return urlType
	}
	return nil
}

// Datatype is the literal datatype written for st. Plain strings and URIs
// have none.
func (st ScalarType) Datatype() quad.IRI {
	switch st {
	case TypeBool:
		return vocab.XSDBoolean
	case TypeInt8:
		return vocab.XSDByte
	case TypeInt16:
		return vocab.XSDShort
	case TypeInt32:
		return vocab.XSDInt
	case TypeInt64:
		return vocab.XSDLong
	case TypeUint8:
		return vocab.XSDUnsignedByte
	case TypeUint16:
		return vocab.XSDUnsignedShort
	case TypeUint32:
		return vocab.XSDUnsignedInt
	case TypeUint64:
		return vocab.XSDUnsignedLong
	case TypeFloat32:
		return vocab.XSDFloat
	case TypeFloat64:
		return vocab.XSDDouble
	case TypeBigInt:
		return vocab.XSDInteger
	case TypeBigDecimal:
		return vocab.XSDDecimal
	case TypeDateTime:
		return vocab.XSDDateTime
	case TypeUUID:
		return vocab.UUID
	}
	return ""
}

// ScalarTypeOf maps a Go type to its scalar type. Pointers to scalars are
// accepted except where the scalar is itself a pointer (*big.Int, *big.Float,
// *url.URL).
func ScalarTypeOf(t reflect.Type) (ScalarType, bool) {
	switch t {
	case bigIntType:
		return TypeBigInt, true
	case bigFloatType:
		return TypeBigDecimal, true
	case urlType:
		return TypeURI, true
	case timeType:
		return TypeDateTime, true
	case uuidType:
		return TypeUUID, true
	}

	switch t.Kind() {
	case reflect.String:
		return TypeString, true
	case reflect.Bool:
		return TypeBool, true
	case reflect.Int8:
		return TypeInt8, true
	case reflect.Int16:
		return TypeInt16, true
	case reflect.Int32:
		return TypeInt32, true
	case reflect.Int, reflect.Int64:
		return TypeInt64, true
	case reflect.Uint8:
		return TypeUint8, true
	case reflect.Uint16:
		return TypeUint16, true
	case reflect.Uint32:
		return TypeUint32, true
	case reflect.Uint, reflect.Uint64:
		return TypeUint64, true
	case reflect.Float32:
		return TypeFloat32, true
	case reflect.Float64:
		return TypeFloat64, true
	case reflect.Pointer:
		return ScalarTypeOf(t.Elem())
	}
	return TypeUnspecified, false
}

// IsEntityRef reports whether t refers to an entity: a pointer to a struct
// that is not one of the pointer scalars.
func IsEntityRef(t reflect.Type) bool {
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return false
	}
	_, scalar := ScalarTypeOf(t)
	return !scalar
}

// compatible reports whether Go values of type t can carry values of st.
func compatible(st ScalarType, t reflect.Type) bool {
	got, ok := ScalarTypeOf(t)
	if !ok {
		return false
	}
	if got == st {
		return true
	}
	family := func(s ScalarType) int {
		switch {
		case s >= TypeInt8 && s <= TypeInt64:
			return 1
		case s >= TypeUint8 && s <= TypeUint64:
			return 2
		case s == TypeFloat32 || s == TypeFloat64:
			return 3
		}
		return 0
	}
	return family(got) != 0 && family(got) == family(st)
}
