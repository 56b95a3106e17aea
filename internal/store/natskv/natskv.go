// Package natskv is a remote quad store kept in a NATS JetStream key-value
// bucket, one key per quad.
//
// Keys have the form <subject hash>.<object hash>.<quad hash>, so queries
// with a bound subject or object list only the matching keys through a
// server-side key filter.
package natskv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cayleygraph/quad"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"quadmap/internal/store"
)

// bucket is the slice of a key-value bucket the store uses.
type bucket interface {
	get(ctx context.Context, key string) ([]byte, error)
	put(ctx context.Context, key string, value []byte) error
	del(ctx context.Context, key string) error
	// keys lists the keys matching a NATS subject filter.
	keys(ctx context.Context, filter string) ([]string, error)
}

// errKeyNotFound is returned by bucket.get for absent keys.
var errKeyNotFound = errors.New("key not found")

// record is the JSON value stored under each key.
type record struct {
	Subject   store.Term `json:"s"`
	Predicate string     `json:"p"`
	Object    store.Term `json:"o"`
	Context   string     `json:"c,omitempty"`
}

type opKind int

const (
	opAdd opKind = iota
	opRemove
)

type pendingOp struct {
	kind opKind
	rec  record
}

// Store implements store.Connection on a JetStream key-value bucket.
type Store struct {
	id         string
	kv         bucket
	nc         *nats.Conn
	autoCommit bool
	pending    map[string]pendingOp
	order      []string
}

var _ store.Connection = (*Store)(nil)

// Open connects to the NATS server at url and opens (creating if needed) the
// named bucket.
func Open(ctx context.Context, url, bucketName string) (*Store, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, store.Wrap(err, "connect nats")
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, store.Wrap(err, "create jetstream context")
	}

	kv, err := getOrCreateBucket(ctx, js, bucketName)
	if err != nil {
		nc.Close()
		return nil, store.Wrap(err, fmt.Sprintf("open bucket %s", bucketName))
	}

	s := newStore("nats:"+url+"/"+bucketName, jetstreamBucket{kv: kv})
	s.nc = nc
	return s, nil
}

func newStore(id string, kv bucket) *Store {
	return &Store{
		id:         id,
		kv:         kv,
		autoCommit: true,
		pending:    make(map[string]pendingOp),
	}
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("quadmap quads %s", strings.ToLower(name)),
		History:     1,
	})
}

// ID returns the store identifier used in diagnostics.
func (s *Store) ID() string {
	return s.id
}

// Query returns every quad matching p, including writes pending in the
// current transaction. Only a pattern with neither subject nor object bound
// lists the whole bucket.
func (s *Store) Query(ctx context.Context, p store.Pattern) ([]quad.Quad, error) {
	keys, err := s.kv.keys(ctx, keyFilter(p))
	if err != nil {
		return nil, store.Wrap(err, "list quad keys")
	}

	var out []quad.Quad
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		seen[key] = true
		if op, ok := s.pending[key]; ok {
			if op.kind == opRemove {
				continue
			}
		}
		data, err := s.kv.get(ctx, key)
		if errors.Is(err, errKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, store.Wrap(err, fmt.Sprintf("get quad %s", key))
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, store.Wrap(err, fmt.Sprintf("decode quad %s", key))
		}
		if q := rec.toQuad(); p.Matches(q) {
			out = append(out, q)
		}
	}

	for _, key := range s.order {
		op, ok := s.pending[key]
		if !ok || op.kind != opAdd || seen[key] {
			continue
		}
		if q := op.rec.toQuad(); p.Matches(q) {
			out = append(out, q)
		}
	}
	return out, nil
}

// Add stores q, or stages it when auto-commit is off.
func (s *Store) Add(ctx context.Context, q quad.Quad) error {
	rec, err := toRecord(q)
	if err != nil {
		return err
	}
	key := quadKey(q)
	if !s.autoCommit {
		s.stage(key, pendingOp{kind: opAdd, rec: rec})
		return nil
	}
	return s.apply(ctx, key, pendingOp{kind: opAdd, rec: rec})
}

// Remove deletes q, or stages the deletion when auto-commit is off.
func (s *Store) Remove(ctx context.Context, q quad.Quad) error {
	rec, err := toRecord(q)
	if err != nil {
		return err
	}
	key := quadKey(q)
	if !s.autoCommit {
		s.stage(key, pendingOp{kind: opRemove, rec: rec})
		return nil
	}
	return s.apply(ctx, key, pendingOp{kind: opRemove, rec: rec})
}

func (s *Store) stage(key string, op pendingOp) {
	if _, ok := s.pending[key]; !ok {
		s.order = append(s.order, key)
	}
	s.pending[key] = op
}

func (s *Store) apply(ctx context.Context, key string, op pendingOp) error {
	switch op.kind {
	case opAdd:
		data, err := json.Marshal(op.rec)
		if err != nil {
			return store.Wrap(err, "encode quad")
		}
		if err := s.kv.put(ctx, key, data); err != nil {
			return store.Wrap(err, "put quad")
		}
	case opRemove:
		if err := s.kv.del(ctx, key); err != nil && !errors.Is(err, errKeyNotFound) {
			return store.Wrap(err, "delete quad")
		}
	}
	return nil
}

// AutoCommit reports whether writes go straight to the bucket.
func (s *Store) AutoCommit() bool {
	return s.autoCommit
}

// SetAutoCommit switches commit mode; re-enabling auto-commit flushes staged
// writes.
func (s *Store) SetAutoCommit(ctx context.Context, on bool) error {
	if on == s.autoCommit {
		return nil
	}
	if on {
		if err := s.Commit(ctx); err != nil {
			return err
		}
	}
	s.autoCommit = on
	return nil
}

// Commit writes staged operations to the bucket in the order they were made.
// A failure leaves the remaining operations staged.
func (s *Store) Commit(ctx context.Context) error {
	for len(s.order) > 0 {
		key := s.order[0]
		if op, ok := s.pending[key]; ok {
			if err := s.apply(ctx, key, op); err != nil {
				return fmt.Errorf("commit: %w", err)
			}
			delete(s.pending, key)
		}
		s.order = s.order[1:]
	}
	return nil
}

// Rollback drops staged operations.
func (s *Store) Rollback(ctx context.Context) error {
	s.pending = make(map[string]pendingOp)
	s.order = nil
	return nil
}

// Close drops staged operations and closes the NATS connection.
func (s *Store) Close() error {
	s.Rollback(context.Background())
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

// quadKey derives a bucket key from the quad's canonical form, prefixed by
// the subject and object index tokens.
func quadKey(q quad.Quad) string {
	sum := sha256.Sum256([]byte(store.QuadKey(q)))
	return termToken(q.Subject) + "." + termToken(q.Object) + "." + hex.EncodeToString(sum[:])
}

func termToken(v quad.Value) string {
	sum := sha256.Sum256([]byte(store.Key(v)))
	return hex.EncodeToString(sum[:16])
}

// keyFilter is the key filter selecting the candidates for p.
func keyFilter(p store.Pattern) string {
	if p.Subject == nil && p.Object == nil {
		return ">"
	}
	subject, object := "*", "*"
	if p.Subject != nil {
		subject = termToken(p.Subject)
	}
	if p.Object != nil {
		object = termToken(p.Object)
	}
	return subject + "." + object + ".*"
}

func toRecord(q quad.Quad) (record, error) {
	subject, err := store.ToTerm(q.Subject)
	if err != nil {
		return record{}, fmt.Errorf("subject: %w", err)
	}
	predicate, ok := q.Predicate.(quad.IRI)
	if !ok {
		return record{}, fmt.Errorf("predicate must be an IRI, got %T", q.Predicate)
	}
	object, err := store.ToTerm(q.Object)
	if err != nil {
		return record{}, fmt.Errorf("object: %w", err)
	}
	rec := record{Subject: subject, Predicate: string(predicate), Object: object}
	switch c := q.Label.(type) {
	case nil:
	case quad.IRI:
		rec.Context = string(c)
	default:
		return record{}, fmt.Errorf("context must be an IRI, got %T", q.Label)
	}
	return rec, nil
}

func (r record) toQuad() quad.Quad {
	q := quad.Quad{
		Subject:   r.Subject.Quad(),
		Predicate: quad.IRI(r.Predicate),
		Object:    r.Object.Quad(),
	}
	if r.Context != "" {
		q.Label = quad.IRI(r.Context)
	}
	return q
}

// jetstreamBucket adapts jetstream.KeyValue to bucket.
type jetstreamBucket struct {
	kv jetstream.KeyValue
}

func (b jetstreamBucket) get(ctx context.Context, key string) ([]byte, error) {
	entry, err := b.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, errKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry.Value(), nil
}

func (b jetstreamBucket) put(ctx context.Context, key string, value []byte) error {
	_, err := b.kv.Put(ctx, key, value)
	return err
}

func (b jetstreamBucket) del(ctx context.Context, key string) error {
	err := b.kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return errKeyNotFound
	}
	return err
}

func (b jetstreamBucket) keys(ctx context.Context, filter string) ([]string, error) {
	lister, err := b.kv.ListKeysFiltered(ctx, filter)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer lister.Stop()

	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
