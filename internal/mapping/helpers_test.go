package mapping

import (
	"context"
	"math/big"
	"net/url"
	"testing"
	"time"

	"github.com/cayleygraph/quad"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"quadmap/internal/schema"
	"quadmap/internal/store"
	"quadmap/internal/store/sqlite"
)

const (
	testNamespace = "http://example.org/entity/"
	peopleGraph   = "http://example.org/graph/people"
	petsGraph     = "http://example.org/graph/pets"
	ex            = "http://example.org/ns#"
)

type person struct {
	ID        string
	Name      string
	Age       *int32
	Tags      []string
	Nicknames []string
	Scores    map[string]int64
	Friend    *person
	Crowd     []*person
	Followers []*person
	Active    bool
	Mentor    Lazy[*person]
	Pet       *pet
	Born      time.Time
	Balance   *big.Int
	Rate      *big.Float
	Homepage  *url.URL
	Token     uuid.UUID
	Visits    uint32
}

type pet struct {
	ID    string
	Name  string
	Owner *person
}

type counter struct {
	ID    string
	Count uint32
}

func newTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	r := schema.NewRegistry(testNamespace)
	require.NoError(t, r.Register(schema.Descriptor{
		Name:           "test.Person",
		Type:           schema.For[person](),
		DefaultContext: peopleGraph,
		Supertypes:     []string{"ex:Agent"},
		Namespaces:     map[string]string{"ex": ex},
		IDField:        "ID",
		Fields: []schema.Field{
			{Name: "Name", Predicate: "ex:name", Kind: schema.KindScalar},
			{Name: "Age", Predicate: "ex:age", Kind: schema.KindScalar},
			{Name: "Tags", Predicate: "ex:tag", Kind: schema.KindSet},
			{Name: "Nicknames", Predicate: "ex:nickname", Kind: schema.KindList},
			{Name: "Scores", Predicate: "ex:score", Kind: schema.KindMap, KeyType: schema.TypeString, ValueType: schema.TypeInt64},
			{Name: "Friend", Predicate: "ex:friend", Kind: schema.KindEntity},
			{Name: "Crowd", Predicate: "ex:crowd", Kind: schema.KindEntityCollection, Ordered: true},
			{Name: "Followers", Predicate: "ex:follows", Kind: schema.KindEntityCollection, Inverse: true},
			{Name: "Active", Predicate: "ex:active", Kind: schema.KindBoolClass, TrueClass: "ex:Active", FalseClass: "ex:Inactive"},
			{Name: "Mentor", Predicate: "ex:mentor", Kind: schema.KindEntity, Fetch: schema.FetchLazy},
			{Name: "Pet", Predicate: "ex:pet", Kind: schema.KindEntity},
			{Name: "Born", Predicate: "ex:born", Kind: schema.KindScalar},
			{Name: "Balance", Predicate: "ex:balance", Kind: schema.KindScalar},
			{Name: "Rate", Predicate: "ex:rate", Kind: schema.KindScalar},
			{Name: "Homepage", Predicate: "ex:homepage", Kind: schema.KindScalar},
			{Name: "Token", Predicate: "ex:token", Kind: schema.KindScalar},
			{Name: "Visits", Predicate: "ex:visits", Kind: schema.KindScalar},
		},
	}))
	require.NoError(t, r.Register(schema.Descriptor{
		Name:           "test.Pet",
		Type:           schema.For[pet](),
		DefaultContext: petsGraph,
		Namespaces:     map[string]string{"ex": ex},
		IDField:        "ID",
		Fields: []schema.Field{
			{Name: "Name", Predicate: "ex:name", Kind: schema.KindScalar},
			{Name: "Owner", Predicate: "ex:owner", Kind: schema.KindEntity},
		},
	}))
	require.NoError(t, r.Register(schema.Descriptor{
		Name:           "test.Counter",
		Type:           schema.For[counter](),
		DefaultContext: peopleGraph,
		IDField:        "ID",
		Fields: []schema.Field{
			{Name: "Count", Predicate: ex + "count", Kind: schema.KindScalar},
		},
	}))
	return r
}

func newTestStore(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func countQuads(t *testing.T, repo *sqlite.Repository, p store.Pattern) int {
	t.Helper()
	n, err := repo.Count(context.Background(), p)
	require.NoError(t, err)
	return n
}

func pred(local string) quad.IRI {
	return quad.IRI(ex + local)
}

// churn counts quads reported through the Observer interface.
type churn struct {
	added, removed map[string]int
}

func newChurn() *churn {
	return &churn{added: map[string]int{}, removed: map[string]int{}}
}

func (c *churn) QuadsAdded(storeID string, n int)   { c.added[storeID] += n }
func (c *churn) QuadsRemoved(storeID string, n int) { c.removed[storeID] += n }

func (c *churn) reset() {
	c.added = map[string]int{}
	c.removed = map[string]int{}
}

// countingConn counts queries issued against the wrapped connection.
type countingConn struct {
	store.Connection
	queries int
}

func (c *countingConn) Query(ctx context.Context, p store.Pattern) ([]quad.Quad, error) {
	c.queries++
	return c.Connection.Query(ctx, p)
}

// typeResolver routes by the type name embedded in identity IRIs.
type typeResolver map[string]store.Connection

func (r typeResolver) ForType(_ context.Context, name string) (store.Connection, error) {
	conn, ok := r[name]
	if !ok {
		return nil, routingErrorf("no store for %s", name)
	}
	return conn, nil
}

func (r typeResolver) ForIRI(ctx context.Context, iri string) (store.Connection, error) {
	name, ok := TypeNameFromIRI(iri)
	if !ok {
		return nil, routingErrorf("not an entity IRI: %s", iri)
	}
	return r.ForType(ctx, name)
}
