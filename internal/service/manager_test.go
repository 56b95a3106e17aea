package service

import (
	"context"
	"testing"

	"github.com/cayleygraph/quad"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quadmap/internal/mapping"
	"quadmap/internal/metrics"
	"quadmap/internal/router"
	"quadmap/internal/schema"
	"quadmap/internal/store"
)

const (
	ns     = "http://example.org/ns#"
	people = "http://example.org/graph/people"
	pets   = "http://example.org/graph/pets"
)

type author struct {
	ID    string
	Name  string
	Tags  []string
	Pet   *animal
	Draft bool
}

type animal struct {
	ID   string
	Name string
}

type unregistered struct {
	ID string
}

type novelist struct {
	ID     string
	Ghost  *unregistered
	Byline string
}

func newTestManager(t *testing.T, opts ...Option) (*EntityManager, *router.Router) {
	t.Helper()

	reg := schema.NewRegistry("http://example.org/entity/")
	reg.MustRegister(schema.Descriptor{
		Name:           "app.Author",
		Type:           schema.For[author](),
		DefaultContext: people,
		IDField:        "ID",
		Fields: []schema.Field{
			{Name: "Name", Predicate: ns + "name", Kind: schema.KindScalar},
			{Name: "Tags", Predicate: ns + "tag", Kind: schema.KindSet},
			{Name: "Pet", Predicate: ns + "pet", Kind: schema.KindEntity},
			{Name: "Draft", Predicate: ns + "draft", Kind: schema.KindBoolClass, TrueClass: ns + "Draft", FalseClass: ns + "Published"},
		},
	})
	reg.MustRegister(schema.Descriptor{
		Name:           "app.Animal",
		Type:           schema.For[animal](),
		DefaultContext: pets,
		IDField:        "ID",
		Fields: []schema.Field{
			{Name: "Name", Predicate: ns + "name", Kind: schema.KindScalar},
		},
	})
	reg.MustRegister(schema.Descriptor{
		Name:           "app.Novelist",
		Type:           schema.For[novelist](),
		DefaultContext: people,
		IDField:        "ID",
		Fields: []schema.Field{
			{Name: "Byline", Predicate: ns + "byline", Kind: schema.KindScalar},
			{Name: "Ghost", Predicate: ns + "ghost", Kind: schema.KindEntity},
		},
	})

	d := &router.Descriptor{
		Default: "main",
		Stores: []router.Store{
			{Name: "main", Index: "memory:", Types: []router.Binding{{Name: "app.Author"}, {Name: "app.Novelist"}}},
			{Name: "zoo", Index: "memory:", Types: []router.Binding{{Name: "app.Animal"}}},
		},
	}
	r, err := router.New(d)
	require.NoError(t, err)

	em := NewEntityManager(reg, r, opts...)
	t.Cleanup(func() { em.Close() })
	return em, r
}

func storeOf(t *testing.T, r *router.Router, name string) store.Connection {
	t.Helper()
	conn, err := r.Connection(context.Background(), name)
	require.NoError(t, err)
	return conn
}

func subjectQuads(t *testing.T, conn store.Connection, id string) []quad.Quad {
	t.Helper()
	quads, err := conn.Query(context.Background(), store.Pattern{Subject: quad.IRI(id)})
	require.NoError(t, err)
	return quads
}

func TestPersistAndFindAcrossStores(t *testing.T) {
	ctx := context.Background()
	em, r := newTestManager(t)

	a := &author{Name: "Ada", Tags: []string{"x", "y"}, Pet: &animal{Name: "Rex"}}
	id, err := em.Persist(ctx, a)
	require.NoError(t, err)
	require.Equal(t, a.ID, id)

	assert.NotEmpty(t, subjectQuads(t, storeOf(t, r, "main"), a.ID))
	assert.Empty(t, subjectQuads(t, storeOf(t, r, "main"), a.Pet.ID))
	assert.NotEmpty(t, subjectQuads(t, storeOf(t, r, "zoo"), a.Pet.ID))

	v, err := em.Find(ctx, id)
	require.NoError(t, err)
	got, ok := v.(*author)
	require.True(t, ok)
	assert.Equal(t, "Ada", got.Name)
	assert.ElementsMatch(t, []string{"x", "y"}, got.Tags)
	require.NotNil(t, got.Pet)
	assert.Equal(t, "Rex", got.Pet.Name)

	pet, err := Find[animal](ctx, em, a.Pet.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rex", pet.Name)
}

func TestFindNotFound(t *testing.T) {
	em, _ := newTestManager(t)

	_, err := em.Find(context.Background(), "http://example.org/entity/app.Author_missing")
	assert.ErrorIs(t, err, mapping.ErrNotFound)

	_, err = em.Find(context.Background(), "http://example.org/entity/nounderscore")
	assert.ErrorIs(t, err, mapping.ErrRouting)
}

func TestPersistWithContext(t *testing.T) {
	ctx := context.Background()
	em, r := newTestManager(t)

	const draft = "http://example.org/graph/drafts"
	a := &author{Name: "Ada"}
	_, err := em.Persist(ctx, a, WithContext(draft))
	require.NoError(t, err)

	quads, err := storeOf(t, r, "main").Query(ctx, store.Pattern{Subject: quad.IRI(a.ID), Predicate: quad.IRI(ns + "name")})
	require.NoError(t, err)
	require.Len(t, quads, 1)
	assert.Equal(t, quad.IRI(draft), quads[0].Label)
}

func TestRemoveMany(t *testing.T) {
	ctx := context.Background()
	em, r := newTestManager(t)

	a := &author{Name: "Ada", Pet: &animal{Name: "Rex"}}
	b := &author{Name: "Bea"}
	_, err := em.Persist(ctx, a)
	require.NoError(t, err)
	_, err = em.Persist(ctx, b)
	require.NoError(t, err)

	require.NoError(t, em.Remove(ctx, a, b, a.Pet))

	assert.Empty(t, subjectQuads(t, storeOf(t, r, "main"), a.ID))
	assert.Empty(t, subjectQuads(t, storeOf(t, r, "main"), b.ID))
	assert.Empty(t, subjectQuads(t, storeOf(t, r, "zoo"), a.Pet.ID))
	assert.True(t, storeOf(t, r, "main").AutoCommit())
	assert.True(t, storeOf(t, r, "zoo").AutoCommit())
}

func TestRemoveLeavesReferencedEntities(t *testing.T) {
	ctx := context.Background()
	em, _ := newTestManager(t)

	a := &author{Name: "Ada", Pet: &animal{Name: "Rex"}}
	_, err := em.Persist(ctx, a)
	require.NoError(t, err)
	require.NoError(t, em.Remove(ctx, a))

	pet, err := Find[animal](ctx, em, a.Pet.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rex", pet.Name)
}

func TestRollbackAfterFailedCascade(t *testing.T) {
	ctx := context.Background()
	em, r := newTestManager(t)

	n := &novelist{Byline: "Anon", Ghost: &unregistered{}}
	_, err := em.Persist(ctx, n)
	require.ErrorIs(t, err, schema.ErrSchema)

	main := storeOf(t, r, "main")
	assert.False(t, main.AutoCommit())

	require.NoError(t, em.Rollback(ctx))
	assert.True(t, main.AutoCommit())
	assert.Empty(t, subjectQuads(t, main, n.ID))
}

func TestCommitAfterFailedCascade(t *testing.T) {
	ctx := context.Background()
	em, r := newTestManager(t)

	n := &novelist{Byline: "Anon", Ghost: &unregistered{}}
	_, err := em.Persist(ctx, n)
	require.Error(t, err)

	require.NoError(t, em.Commit(ctx))
	main := storeOf(t, r, "main")
	assert.True(t, main.AutoCommit())
	assert.NotEmpty(t, subjectQuads(t, main, n.ID))
}

func TestEventsPublished(t *testing.T) {
	ctx := context.Background()
	bus := NewEventBus()
	ch := make(chan Event, 8)
	bus.Subscribe(ch)
	em, _ := newTestManager(t, WithEvents(bus))

	a := &author{Name: "Ada"}
	_, err := em.Persist(ctx, a)
	require.NoError(t, err)
	require.NoError(t, em.Remove(ctx, a))

	persisted := <-ch
	assert.Equal(t, EventEntityPersisted, persisted.Type)
	assert.Equal(t, a.ID, persisted.Payload["id"])
	assert.Equal(t, "app.Author", persisted.Payload["type"])

	removed := <-ch
	assert.Equal(t, EventEntityRemoved, removed.Type)
	assert.Equal(t, a.ID, removed.Payload["id"])
}

func TestMetricsRecorded(t *testing.T) {
	ctx := context.Background()
	m, err := metrics.New(prometheus.NewRegistry(), "")
	require.NoError(t, err)
	em, _ := newTestManager(t, WithMetrics(m))

	a := &author{Name: "Ada"}
	_, err = em.Persist(ctx, a)
	require.NoError(t, err)
	_, err = em.Find(ctx, a.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, testutil.CollectAndCount(m, "quadmap_operations_total"))
}
