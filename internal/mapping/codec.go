package mapping

import (
	"fmt"
	"math"
	"math/big"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cayleygraph/quad"
	"github.com/google/uuid"

	"quadmap/internal/schema"
	"quadmap/internal/vocab"
)

var (
	bigIntType   = reflect.TypeOf((*big.Int)(nil))
	bigFloatType = reflect.TypeOf((*big.Float)(nil))
	urlType      = reflect.TypeOf((*url.URL)(nil))
	timeType     = reflect.TypeOf(time.Time{})
	uuidType     = reflect.TypeOf(uuid.UUID{})
)

func typed(v string, dt quad.IRI) quad.Value {
	return quad.TypedString{Value: quad.String(v), Type: dt}
}

// decimalPrecision is enough mantissa bits to keep every significant digit
// of a decimal literal.
func decimalPrecision(s string) uint {
	digits := 0
	for _, r := range s {
		if r == 'e' || r == 'E' {
			break
		}
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	prec := uint(math.Ceil(float64(digits)*math.Log2(10))) + 8
	if prec < 64 {
		prec = 64
	}
	return prec
}

// encodeScalar turns a Go scalar into a term. ok is false for unset values
// (nil pointers).
func encodeScalar(v reflect.Value) (quad.Value, bool, error) {
	switch v.Type() {
	case bigIntType:
		if v.IsNil() {
			return nil, false, nil
		}
		return typed(v.Interface().(*big.Int).String(), vocab.XSDInteger), true, nil
	case bigFloatType:
		if v.IsNil() {
			return nil, false, nil
		}
		f := v.Interface().(*big.Float)
		if f.IsInf() {
			return nil, false, fmt.Errorf("%w: infinite decimal", ErrSchema)
		}
		return typed(f.Text('f', -1), vocab.XSDDecimal), true, nil
	case urlType:
		if v.IsNil() {
			return nil, false, nil
		}
		return quad.IRI(v.Interface().(*url.URL).String()), true, nil
	case timeType:
		t := v.Interface().(time.Time)
		return typed(t.Format(time.RFC3339Nano), vocab.XSDDateTime), true, nil
	case uuidType:
		return typed(v.Interface().(uuid.UUID).String(), vocab.UUID), true, nil
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return nil, false, nil
		}
		return encodeScalar(v.Elem())
	case reflect.String:
		return quad.String(v.String()), true, nil
	case reflect.Bool:
		return typed(strconv.FormatBool(v.Bool()), vocab.XSDBoolean), true, nil
	case reflect.Int8:
		return typed(strconv.FormatInt(v.Int(), 10), vocab.XSDByte), true, nil
	case reflect.Int16:
		return typed(strconv.FormatInt(v.Int(), 10), vocab.XSDShort), true, nil
	case reflect.Int32:
		return typed(strconv.FormatInt(v.Int(), 10), vocab.XSDInt), true, nil
	case reflect.Int, reflect.Int64:
		return typed(strconv.FormatInt(v.Int(), 10), vocab.XSDLong), true, nil
	case reflect.Uint8:
		return typed(strconv.FormatUint(v.Uint(), 10), vocab.XSDUnsignedByte), true, nil
	case reflect.Uint16:
		return typed(strconv.FormatUint(v.Uint(), 10), vocab.XSDUnsignedShort), true, nil
	case reflect.Uint32:
		return typed(strconv.FormatUint(v.Uint(), 10), vocab.XSDUnsignedInt), true, nil
	case reflect.Uint, reflect.Uint64:
		return typed(strconv.FormatUint(v.Uint(), 10), vocab.XSDUnsignedLong), true, nil
	case reflect.Float32:
		return typed(strconv.FormatFloat(v.Float(), 'g', -1, 32), vocab.XSDFloat), true, nil
	case reflect.Float64:
		return typed(strconv.FormatFloat(v.Float(), 'g', -1, 64), vocab.XSDDouble), true, nil
	}
	return nil, false, fmt.Errorf("%w: cannot encode %s as a literal", ErrSchema, v.Type())
}

// encodeAs encodes v with the datatype of a declared scalar type rather than
// the one its Go type implies.
func encodeAs(st schema.ScalarType, v reflect.Value) (quad.Value, error) {
	target := st.GoType()
	if target == nil {
		return nil, fmt.Errorf("%w: undeclared scalar type", ErrSchema)
	}
	for v.Kind() == reflect.Pointer && v.Type() != target {
		if v.IsNil() {
			return nil, fmt.Errorf("%w: nil %s in map", ErrSchema, v.Type())
		}
		v = v.Elem()
	}
	if v.Type() != target {
		if !v.Type().ConvertibleTo(target) {
			return nil, fmt.Errorf("%w: %s does not convert to %s", ErrSchema, v.Type(), target)
		}
		v = v.Convert(target)
	}
	term, ok, err := encodeScalar(v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: nil %s in map", ErrSchema, v.Type())
	}
	return term, nil
}

// decodeLiteral dispatches on the term's datatype and returns the native Go
// value it denotes.
func decodeLiteral(term quad.Value) (any, error) {
	switch t := term.(type) {
	case quad.String:
		return string(t), nil
	case quad.LangString:
		return string(t.Value), nil
	case quad.IRI:
		u, err := url.Parse(string(t))
		if err != nil {
			return nil, integrityErrorf("malformed IRI %q: %v", t, err)
		}
		return u, nil
	case quad.TypedString:
		return decodeTyped(string(t.Value), t.Type)
	case quad.BNode:
		return nil, integrityErrorf("blank node %s where a scalar was expected", t)
	}
	return nil, integrityErrorf("unsupported term %T", term)
}

func decodeTyped(s string, dt quad.IRI) (any, error) {
	bad := func(err error) error {
		return integrityErrorf("invalid %s literal %q: %v", dt, s, err)
	}

	if vocab.Unsigned(dt) && strings.HasPrefix(strings.TrimSpace(s), "-") {
		return nil, integrityErrorf("negative value %q for unsigned datatype %s", s, dt)
	}

	switch dt {
	case vocab.XSDString:
		return s, nil
	case vocab.XSDBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, bad(err)
		}
		return b, nil
	case vocab.XSDByte, vocab.XSDShort, vocab.XSDInt, vocab.XSDLong:
		bits := map[quad.IRI]int{vocab.XSDByte: 8, vocab.XSDShort: 16, vocab.XSDInt: 32, vocab.XSDLong: 64}[dt]
		n, err := strconv.ParseInt(s, 10, bits)
		if err != nil {
			return nil, bad(err)
		}
		switch bits {
		case 8:
			return int8(n), nil
		case 16:
			return int16(n), nil
		case 32:
			return int32(n), nil
		}
		return n, nil
	case vocab.XSDUnsignedByte, vocab.XSDUnsignedShort, vocab.XSDUnsignedInt, vocab.XSDUnsignedLong:
		bits := map[quad.IRI]int{vocab.XSDUnsignedByte: 8, vocab.XSDUnsignedShort: 16, vocab.XSDUnsignedInt: 32, vocab.XSDUnsignedLong: 64}[dt]
		n, err := strconv.ParseUint(s, 10, bits)
		if err != nil {
			return nil, bad(err)
		}
		switch bits {
		case 8:
			return uint8(n), nil
		case 16:
			return uint16(n), nil
		case 32:
			return uint32(n), nil
		}
		return n, nil
	case vocab.XSDFloat:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, bad(err)
		}
		return float32(f), nil
	case vocab.XSDDouble:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, bad(err)
		}
		return f, nil
	case vocab.XSDInteger:
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, bad(fmt.Errorf("not an integer"))
		}
		return n, nil
	case vocab.XSDDecimal:
		f, _, err := big.ParseFloat(s, 10, decimalPrecision(s), big.ToNearestEven)
		if err != nil {
			return nil, bad(err)
		}
		return f, nil
	case vocab.XSDDateTime:
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, bad(err)
		}
		return t, nil
	case vocab.XSDAnyURI:
		u, err := url.Parse(s)
		if err != nil {
			return nil, bad(err)
		}
		return u, nil
	case vocab.UUID:
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, bad(err)
		}
		return id, nil
	}
	return nil, integrityErrorf("unsupported datatype %s", dt)
}

// assignScalar converts a decoded native value to target. Integer and float
// widths convert when the value fits.
func assignScalar(native any, target reflect.Type) (reflect.Value, error) {
	src := reflect.ValueOf(native)
	if src.Type() == target {
		return src, nil
	}

	switch target {
	case bigIntType:
		switch src.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return reflect.ValueOf(big.NewInt(src.Int())), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return reflect.ValueOf(new(big.Int).SetUint64(src.Uint())), nil
		}
	case bigFloatType:
		switch src.Kind() {
		case reflect.Float32, reflect.Float64:
			return reflect.ValueOf(big.NewFloat(src.Float())), nil
		}
	case urlType:
		if src.Kind() == reflect.String {
			u, err := url.Parse(src.String())
			if err != nil {
				return reflect.Value{}, integrityErrorf("malformed URI %q: %v", src.String(), err)
			}
			return reflect.ValueOf(u), nil
		}
	case timeType, uuidType:
		return reflect.Value{}, mismatch(native, target)
	}

	if target.Kind() == reflect.Pointer {
		inner, err := assignScalar(native, target.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(target.Elem())
		p.Elem().Set(inner)
		return p, nil
	}

	out := reflect.New(target).Elem()
	switch target.Kind() {
	case reflect.String:
		switch n := native.(type) {
		case string:
			out.SetString(n)
			return out, nil
		case *url.URL:
			out.SetString(n.String())
			return out, nil
		}
	case reflect.Bool:
		if src.Kind() == reflect.Bool {
			out.SetBool(src.Bool())
			return out, nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch src.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if out.OverflowInt(src.Int()) {
				return reflect.Value{}, integrityErrorf("value %d overflows %s", src.Int(), target)
			}
			out.SetInt(src.Int())
			return out, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if src.Uint() > 1<<63-1 || out.OverflowInt(int64(src.Uint())) {
				return reflect.Value{}, integrityErrorf("value %d overflows %s", src.Uint(), target)
			}
			out.SetInt(int64(src.Uint()))
			return out, nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		switch src.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if out.OverflowUint(src.Uint()) {
				return reflect.Value{}, integrityErrorf("value %d overflows %s", src.Uint(), target)
			}
			out.SetUint(src.Uint())
			return out, nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if src.Int() < 0 {
				return reflect.Value{}, integrityErrorf("negative value %d for unsigned field %s", src.Int(), target)
			}
			if out.OverflowUint(uint64(src.Int())) {
				return reflect.Value{}, integrityErrorf("value %d overflows %s", src.Int(), target)
			}
			out.SetUint(uint64(src.Int()))
			return out, nil
		}
	case reflect.Float32, reflect.Float64:
		switch src.Kind() {
		case reflect.Float32, reflect.Float64:
			out.SetFloat(src.Float())
			return out, nil
		}
	}
	return reflect.Value{}, mismatch(native, target)
}

func mismatch(native any, target reflect.Type) error {
	return integrityErrorf("cannot decode %T into %s", native, target)
}

// decodeScalar decodes a single term into a value of type target.
func decodeScalar(term quad.Value, target reflect.Type) (reflect.Value, error) {
	native, err := decodeLiteral(term)
	if err != nil {
		return reflect.Value{}, err
	}
	return assignScalar(native, target)
}

// decodeAs decodes term, requiring the datatype of a declared scalar type.
func decodeAs(st schema.ScalarType, term quad.Value, target reflect.Type) (reflect.Value, error) {
	ok := false
	switch t := term.(type) {
	case quad.String, quad.LangString:
		ok = st == schema.TypeString
	case quad.IRI:
		ok = st == schema.TypeURI
	case quad.TypedString:
		switch st {
		case schema.TypeString:
			ok = t.Type == vocab.XSDString
		case schema.TypeURI:
			ok = t.Type == vocab.XSDAnyURI
		default:
			ok = t.Type == st.Datatype()
		}
	}
	if !ok {
		return reflect.Value{}, integrityErrorf("term %v does not carry a %s value", term, st.GoType())
	}
	return decodeScalar(term, target)
}
