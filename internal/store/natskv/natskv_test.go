package natskv

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/cayleygraph/quad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quadmap/internal/store"
)

// memBucket is an in-process stand-in for a JetStream key-value bucket.
type memBucket struct {
	data    map[string][]byte
	failPut bool
	gets    int
}

func newMemBucket() *memBucket {
	return &memBucket{data: make(map[string][]byte)}
}

func (b *memBucket) get(_ context.Context, key string) ([]byte, error) {
	b.gets++
	v, ok := b.data[key]
	if !ok {
		return nil, errKeyNotFound
	}
	return v, nil
}

func (b *memBucket) put(_ context.Context, key string, value []byte) error {
	if b.failPut {
		return errors.New("nats: timeout")
	}
	b.data[key] = value
	return nil
}

func (b *memBucket) del(_ context.Context, key string) error {
	if _, ok := b.data[key]; !ok {
		return errKeyNotFound
	}
	delete(b.data, key)
	return nil
}

func (b *memBucket) keys(_ context.Context, filter string) ([]string, error) {
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		if subjectMatches(filter, k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// subjectMatches applies NATS wildcard rules: '*' matches one token, '>'
// the rest.
func subjectMatches(filter, key string) bool {
	ft, kt := strings.Split(filter, "."), strings.Split(key, ".")
	for i, f := range ft {
		if f == ">" {
			return len(kt) > i
		}
		if i >= len(kt) || (f != "*" && f != kt[i]) {
			return false
		}
	}
	return len(ft) == len(kt)
}

func q(s, p string, o quad.Value) quad.Quad {
	return quad.Quad{Subject: quad.IRI(s), Predicate: quad.IRI(p), Object: o, Label: quad.IRI("ex:g")}
}

func TestAutoCommitWrites(t *testing.T) {
	ctx := context.Background()
	kv := newMemBucket()
	s := newStore("test", kv)

	require.NoError(t, s.Add(ctx, q("ex:a", "ex:p", quad.String("v"))))
	require.NoError(t, s.Add(ctx, q("ex:a", "ex:p", quad.String("v"))))
	assert.Len(t, kv.data, 1)

	quads, err := s.Query(ctx, store.Pattern{Subject: quad.IRI("ex:a")})
	require.NoError(t, err)
	require.Len(t, quads, 1)
	assert.Equal(t, quad.String("v"), quads[0].Object)
	assert.Equal(t, quad.IRI("ex:g"), quads[0].Label)

	require.NoError(t, s.Remove(ctx, q("ex:a", "ex:p", quad.String("v"))))
	require.NoError(t, s.Remove(ctx, q("ex:a", "ex:p", quad.String("v"))))
	assert.Empty(t, kv.data)
}

func TestStagedWritesAreVisibleBeforeCommit(t *testing.T) {
	ctx := context.Background()
	kv := newMemBucket()
	s := newStore("test", kv)

	require.NoError(t, s.Add(ctx, q("ex:a", "ex:p", quad.String("old"))))
	require.NoError(t, s.SetAutoCommit(ctx, false))

	require.NoError(t, s.Remove(ctx, q("ex:a", "ex:p", quad.String("old"))))
	require.NoError(t, s.Add(ctx, q("ex:a", "ex:p", quad.String("new"))))
	assert.Len(t, kv.data, 1, "bucket untouched until commit")

	quads, err := s.Query(ctx, store.Pattern{Subject: quad.IRI("ex:a")})
	require.NoError(t, err)
	require.Len(t, quads, 1)
	assert.Equal(t, quad.String("new"), quads[0].Object)

	require.NoError(t, s.Commit(ctx))
	require.NoError(t, s.SetAutoCommit(ctx, true))

	quads, err = s.Query(ctx, store.Pattern{})
	require.NoError(t, err)
	require.Len(t, quads, 1)
	assert.Equal(t, quad.String("new"), quads[0].Object)
}

func TestRollbackDropsStagedWrites(t *testing.T) {
	ctx := context.Background()
	kv := newMemBucket()
	s := newStore("test", kv)

	require.NoError(t, s.SetAutoCommit(ctx, false))
	require.NoError(t, s.Add(ctx, q("ex:a", "ex:p", quad.IRI("ex:b"))))
	require.NoError(t, s.Rollback(ctx))
	require.NoError(t, s.SetAutoCommit(ctx, true))

	quads, err := s.Query(ctx, store.Pattern{})
	require.NoError(t, err)
	assert.Empty(t, quads)
}

func TestCommitFailureKeepsRemainingOps(t *testing.T) {
	ctx := context.Background()
	kv := newMemBucket()
	s := newStore("test", kv)

	require.NoError(t, s.SetAutoCommit(ctx, false))
	require.NoError(t, s.Add(ctx, q("ex:a", "ex:p", quad.String("v"))))

	kv.failPut = true
	err := s.Commit(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrStore)

	kv.failPut = false
	require.NoError(t, s.Commit(ctx))
	assert.Len(t, kv.data, 1)
}

func TestQuadKeyIsStable(t *testing.T) {
	a := q("ex:a", "ex:p", quad.String("v"))
	b := q("ex:a", "ex:p", quad.String("v"))
	c := q("ex:a", "ex:p", quad.IRI("v"))

	assert.Equal(t, quadKey(a), quadKey(b))
	assert.NotEqual(t, quadKey(a), quadKey(c))
	assert.Regexp(t, `^[0-9a-f]{32}\.[0-9a-f]{32}\.[0-9a-f]{64}$`, quadKey(a))
}

func TestQueryListsOnlyIndexedKeys(t *testing.T) {
	ctx := context.Background()
	kv := newMemBucket()
	s := newStore("test", kv)

	for _, subject := range []string{"ex:a", "ex:b", "ex:c", "ex:d"} {
		require.NoError(t, s.Add(ctx, q(subject, "ex:p", quad.IRI("ex:target"))))
		require.NoError(t, s.Add(ctx, q(subject, "ex:name", quad.String(subject))))
	}

	kv.gets = 0
	quads, err := s.Query(ctx, store.Pattern{Subject: quad.IRI("ex:b")})
	require.NoError(t, err)
	assert.Len(t, quads, 2)
	assert.Equal(t, 2, kv.gets)

	kv.gets = 0
	quads, err = s.Query(ctx, store.Pattern{Predicate: quad.IRI("ex:p"), Object: quad.IRI("ex:target")})
	require.NoError(t, err)
	assert.Len(t, quads, 4)
	assert.Equal(t, 4, kv.gets)

	kv.gets = 0
	quads, err = s.Query(ctx, store.Pattern{Subject: quad.IRI("ex:c"), Object: quad.String("ex:c")})
	require.NoError(t, err)
	require.Len(t, quads, 1)
	assert.Equal(t, quad.IRI("ex:name"), quads[0].Predicate)
	assert.Equal(t, 1, kv.gets)

	kv.gets = 0
	quads, err = s.Query(ctx, store.Pattern{})
	require.NoError(t, err)
	assert.Len(t, quads, 8)
	assert.Equal(t, 8, kv.gets)
}

func TestSubjectMatches(t *testing.T) {
	assert.True(t, subjectMatches(">", "a.b.c"))
	assert.True(t, subjectMatches("a.*.*", "a.b.c"))
	assert.True(t, subjectMatches("*.b.*", "a.b.c"))
	assert.False(t, subjectMatches("*.x.*", "a.b.c"))
	assert.False(t, subjectMatches("a.*", "a.b.c"))
}

func TestToRecordRejectsBadTerms(t *testing.T) {
	_, err := toRecord(quad.Quad{Subject: quad.IRI("s"), Predicate: quad.String("p"), Object: quad.String("o")})
	assert.Error(t, err)

	_, err = toRecord(quad.Quad{Subject: quad.IRI("s"), Predicate: quad.IRI("p"), Object: quad.String("o"), Label: quad.String("g")})
	assert.Error(t, err)
}
