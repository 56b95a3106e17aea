// Package router maps entity types and identity IRIs to the physical store
// that owns them and keeps one lazily opened connection per store.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"quadmap/internal/mapping"
	"quadmap/internal/store"
	"quadmap/internal/store/natskv"
	"quadmap/internal/store/sqlite"
)

// ErrRouting is returned when no store owns a type or IRI.
var ErrRouting = mapping.ErrRouting

// Opener opens a connection for a store index.
type Opener func(ctx context.Context, index string) (store.Connection, error)

// Option configures a Router.
type Option func(*Router)

// WithOpener registers an opener for indexes starting with "<scheme>:".
func WithOpener(scheme string, open Opener) Option {
	return func(r *Router) { r.openers[scheme] = open }
}

// WithLogger sets the router's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// Router resolves stores from a static descriptor. Connections are opened on
// first use and cached until Close.
type Router struct {
	desc    *Descriptor
	byName  map[string]*Store
	byType  map[string]string
	prefix  []prefixRule
	openers map[string]Opener
	logger  *slog.Logger

	mu    sync.Mutex
	conns map[string]store.Connection
}

type prefixRule struct {
	prefix string
	store  string
}

// New builds a router for d.
func New(d *Descriptor, opts ...Option) (*Router, error) {
	if d == nil {
		return nil, fmt.Errorf("nil descriptor")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	r := &Router{
		desc:   d,
		byName: make(map[string]*Store, len(d.Stores)),
		byType: make(map[string]string),
		openers: map[string]Opener{
			"sqlite": openSQLite,
			"memory": openMemory,
			"nats":   openNATS,
		},
		logger: slog.Default(),
		conns:  make(map[string]store.Connection),
	}
	for _, opt := range opts {
		opt(r)
	}

	for i := range d.Stores {
		s := &d.Stores[i]
		r.byName[s.Name] = s
		for _, b := range s.Types {
			r.byType[b.Name] = s.Name
			if b.URI != "" {
				r.prefix = append(r.prefix, prefixRule{prefix: b.URI, store: s.Name})
			}
		}
	}
	return r, nil
}

// Descriptor returns the routing table the router was built from.
func (r *Router) Descriptor() *Descriptor {
	return r.desc
}

// StoreForType returns the store owning instances of the named type.
func (r *Router) StoreForType(typeName string) (string, error) {
	if name, ok := r.byType[typeName]; ok {
		return name, nil
	}
	if r.desc.Default != "" {
		return r.desc.Default, nil
	}
	return "", fmt.Errorf("%w: no store owns type %s", ErrRouting, typeName)
}

// StoreForIRI returns the store owning the entity with identity iri. The
// type name embedded in the IRI wins, then the longest bound type URI
// prefix, then the first matching URI pattern, then the default store.
func (r *Router) StoreForIRI(iri string) (string, error) {
	if typeName, ok := mapping.TypeNameFromIRI(iri); ok {
		if name, ok := r.byType[typeName]; ok {
			return name, nil
		}
	}

	best := -1
	var owner string
	for _, rule := range r.prefix {
		if strings.HasPrefix(iri, rule.prefix) && len(rule.prefix) > best {
			best, owner = len(rule.prefix), rule.store
		}
	}
	if owner != "" {
		return owner, nil
	}

	if target := patternTarget(iri); target != "" {
		for _, s := range r.desc.Stores {
			for _, p := range s.URIs {
				if ok, _ := doublestar.Match(p, target); ok {
					return s.Name, nil
				}
			}
		}
	}

	if r.desc.Default != "" {
		return r.desc.Default, nil
	}
	return "", fmt.Errorf("%w: no store owns %s", ErrRouting, iri)
}

// patternTarget is the part of an IRI that URI patterns see: host, path and
// fragment without the scheme.
func patternTarget(iri string) string {
	u, err := url.Parse(iri)
	if err != nil || u.Host == "" {
		return ""
	}
	target := u.Host + u.Path
	if u.Fragment != "" {
		target += "#" + u.Fragment
	}
	return target
}

// Connection returns the open connection of the named store, opening it on
// first use.
func (r *Router) Connection(ctx context.Context, name string) (store.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[name]; ok {
		return conn, nil
	}
	s, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: store %s is not declared", ErrRouting, name)
	}

	scheme, _, _ := strings.Cut(s.Index, ":")
	open, ok := r.openers[scheme]
	if !ok {
		return nil, fmt.Errorf("store %s: no opener for index %q", name, s.Index)
	}
	conn, err := open(ctx, s.Index)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", name, err)
	}
	r.logger.Info("opened store", "store", name, "index", s.Index)
	r.conns[name] = conn
	return conn, nil
}

// ForType implements mapping.Resolver.
func (r *Router) ForType(ctx context.Context, typeName string) (store.Connection, error) {
	name, err := r.StoreForType(typeName)
	if err != nil {
		return nil, err
	}
	return r.Connection(ctx, name)
}

// ForIRI implements mapping.Resolver.
func (r *Router) ForIRI(ctx context.Context, iri string) (store.Connection, error) {
	name, err := r.StoreForIRI(iri)
	if err != nil {
		return nil, err
	}
	return r.Connection(ctx, name)
}

// Open lists the connections opened so far, keyed by store name.
func (r *Router) Open() map[string]store.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]store.Connection, len(r.conns))
	for name, conn := range r.conns {
		out[name] = conn
	}
	return out
}

// Close closes every opened connection.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, conn := range r.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store %s: %w", name, err))
		}
	}
	r.conns = make(map[string]store.Connection)
	return errors.Join(errs...)
}

func openSQLite(_ context.Context, index string) (store.Connection, error) {
	path := strings.TrimPrefix(index, "sqlite:")
	if path == "" {
		return nil, fmt.Errorf("sqlite index %q has no path", index)
	}
	repo, err := sqlite.New(path)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func openMemory(_ context.Context, _ string) (store.Connection, error) {
	repo, err := sqlite.New(":memory:")
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// openNATS opens "nats://host:port/<bucket>".
func openNATS(ctx context.Context, index string) (store.Connection, error) {
	u, err := url.Parse(index)
	if err != nil {
		return nil, fmt.Errorf("invalid nats index %q: %w", index, err)
	}
	bucket := strings.Trim(u.Path, "/")
	if bucket == "" {
		return nil, fmt.Errorf("nats index %q names no bucket", index)
	}
	kv, err := natskv.Open(ctx, u.Scheme+"://"+u.Host, bucket)
	if err != nil {
		return nil, err
	}
	return kv, nil
}

var _ mapping.Resolver = (*Router)(nil)
