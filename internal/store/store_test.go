package store

import (
	"errors"
	"testing"

	"github.com/cayleygraph/quad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTermRoundTrip(t *testing.T) {
	values := []quad.Value{
		quad.IRI("http://example.org/a"),
		quad.BNode("n1"),
		quad.String("plain"),
		quad.TypedString{Value: "42", Type: "http://www.w3.org/2001/XMLSchema#int"},
		quad.LangString{Value: "hallo", Lang: "de"},
	}
	for _, v := range values {
		term, err := ToTerm(v)
		require.NoError(t, err)
		assert.Equal(t, v, term.Quad())
	}
}

func TestKeyDistinguishesKinds(t *testing.T) {
	assert.NotEqual(t, Key(quad.IRI("x")), Key(quad.String("x")))
	assert.NotEqual(t, Key(quad.IRI("x")), Key(quad.BNode("x")))
	assert.NotEqual(t, Key(quad.String("1")), Key(quad.TypedString{Value: "1", Type: "t"}))
	assert.Equal(t, Key(quad.IRI("x")), Key(quad.IRI("x")))
}

func TestPatternMatches(t *testing.T) {
	q := quad.Quad{
		Subject:   quad.IRI("s"),
		Predicate: quad.IRI("p"),
		Object:    quad.String("o"),
		Label:     quad.IRI("c"),
	}

	assert.True(t, Pattern{}.Matches(q))
	assert.True(t, Pattern{Subject: quad.IRI("s")}.Matches(q))
	assert.True(t, Pattern{Subject: quad.IRI("s"), Context: quad.IRI("c")}.Matches(q))
	assert.False(t, Pattern{Object: quad.IRI("o")}.Matches(q))
	assert.False(t, Pattern{Context: quad.IRI("other")}.Matches(q))

	noContext := q
	noContext.Label = nil
	assert.False(t, Pattern{Context: quad.IRI("c")}.Matches(noContext))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "noop"))

	err := Wrap(errors.New("disk full"), "add quad")
	assert.ErrorIs(t, err, ErrStore)
	assert.Contains(t, err.Error(), "disk full")

	again := Wrap(err, "persist")
	assert.ErrorIs(t, again, ErrStore)
	assert.Equal(t, 1, countOccurrences(again.Error(), ErrStore.Error()))
}

func countOccurrences(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}
