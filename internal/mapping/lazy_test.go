package mapping

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyZeroValueIsLoaded(t *testing.T) {
	var l Lazy[string]
	assert.True(t, l.Loaded())
	v, err := l.Get()
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestLazyLoadsOnce(t *testing.T) {
	calls := 0
	var l Lazy[int]
	l.deferTo(func() (reflect.Value, error) {
		calls++
		return reflect.ValueOf(7), nil
	})
	require.True(t, l.Pending())

	for i := 0; i < 3; i++ {
		assert.Equal(t, 7, l.MustGet())
	}
	assert.Equal(t, 1, calls)
	assert.False(t, l.Pending())
}

func TestLazyFailedLoadStaysPending(t *testing.T) {
	fail := true
	var l Lazy[int]
	l.deferTo(func() (reflect.Value, error) {
		if fail {
			return reflect.Value{}, errors.New("store offline")
		}
		return reflect.ValueOf(3), nil
	})

	_, err := l.Get()
	require.Error(t, err)
	assert.True(t, l.Pending())

	fail = false
	v, err := l.Get()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestLazySetDiscardsPendingLoad(t *testing.T) {
	l := NewLazy(1)
	l.deferTo(func() (reflect.Value, error) {
		t.Fatal("load must not run after Set")
		return reflect.Value{}, nil
	})
	l.Set(5)
	assert.Equal(t, 5, l.MustGet())
}

func TestLazyInvalidValueLoadsZero(t *testing.T) {
	var l Lazy[*person]
	l.deferTo(func() (reflect.Value, error) { return reflect.Value{}, nil })
	v, err := l.Get()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestTypeNameFromIRI(t *testing.T) {
	tests := []struct {
		iri  string
		want string
		ok   bool
	}{
		{"http://example.org/entity/test.Person_abc123", "test.Person", true},
		{"http://example.org/ns#my_pkg.Thing_0f", "my_pkg.Thing", true},
		{"http://example.org/entity/plain", "", false},
		{"http://example.org/entity/_leading", "", false},
	}
	for _, tt := range tests {
		got, ok := TypeNameFromIRI(tt.iri)
		assert.Equal(t, tt.ok, ok, tt.iri)
		assert.Equal(t, tt.want, got, tt.iri)
	}
}
