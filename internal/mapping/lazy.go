package mapping

import (
	"fmt"
	"reflect"
)

// Lazy holds a field value that is loaded on first access. It is either
// loaded (holding a value) or pending (holding a loader); Get performs the
// pending to loaded transition exactly once.
//
// The zero Lazy is loaded with the zero value of T.
type Lazy[T any] struct {
	value T
	load  func() (reflect.Value, error)
}

// NewLazy returns a loaded Lazy holding v.
func NewLazy[T any](v T) Lazy[T] {
	return Lazy[T]{value: v}
}

// Get returns the value, loading it first if pending. A failed load leaves
// the wrapper pending.
func (l *Lazy[T]) Get() (T, error) {
	if l.load != nil {
		v, err := l.load()
		if err != nil {
			var zero T
			return zero, err
		}
		l.load = nil
		l.value = fromValue[T](v)
	}
	return l.value, nil
}

// MustGet is Get that panics on a load failure.
func (l *Lazy[T]) MustGet() T {
	v, err := l.Get()
	if err != nil {
		panic(fmt.Sprintf("lazy load: %v", err))
	}
	return v
}

// Set replaces the value, discarding any pending load.
func (l *Lazy[T]) Set(v T) {
	l.value = v
	l.load = nil
}

// Pending reports whether the value has not been loaded yet.
func (l *Lazy[T]) Pending() bool {
	return l.load != nil
}

// Loaded reports whether the value is available without a store round trip.
func (l *Lazy[T]) Loaded() bool {
	return l.load == nil
}

// DeferredType implements schema.Deferred.
func (*Lazy[T]) DeferredType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (l *Lazy[T]) pending() bool {
	return l.load != nil
}

func (l *Lazy[T]) current() reflect.Value {
	return reflect.ValueOf(&l.value).Elem()
}

func (l *Lazy[T]) deferTo(load func() (reflect.Value, error)) {
	var zero T
	l.value = zero
	l.load = load
}

func (l *Lazy[T]) assign(v reflect.Value) {
	l.value = fromValue[T](v)
	l.load = nil
}

func fromValue[T any](v reflect.Value) T {
	var zero T
	if !v.IsValid() {
		return zero
	}
	return v.Interface().(T)
}

// deferredSlot is the engine's view of a *Lazy[T] field.
type deferredSlot interface {
	pending() bool
	current() reflect.Value
	deferTo(load func() (reflect.Value, error))
	assign(v reflect.Value)
}

func slotOf(field reflect.Value) deferredSlot {
	return field.Addr().Interface().(deferredSlot)
}
