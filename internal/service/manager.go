package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"time"

	"quadmap/internal/mapping"
	"quadmap/internal/metrics"
	"quadmap/internal/router"
	"quadmap/internal/schema"
	"quadmap/internal/store"
)

// EntityManager persists, loads and removes entities across routed stores.
type EntityManager struct {
	registry  *schema.Registry
	router    *router.Router
	loader    *mapping.Loader
	persister *mapping.Persister
	remover   *mapping.Remover
	metrics   *metrics.Metrics
	events    *EventBus
	logger    *slog.Logger
}

// Option configures an EntityManager.
type Option func(*EntityManager)

// WithMetrics records operations and quad churn in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(em *EntityManager) { em.metrics = m }
}

// WithEvents publishes entity events on bus.
func WithEvents(bus *EventBus) Option {
	return func(em *EntityManager) { em.events = bus }
}

// WithLogger sets the logger shared by the manager and its engines.
func WithLogger(logger *slog.Logger) Option {
	return func(em *EntityManager) { em.logger = logger }
}

// NewEntityManager creates an entity manager over the registry and router.
func NewEntityManager(registry *schema.Registry, r *router.Router, opts ...Option) *EntityManager {
	em := &EntityManager{
		registry: registry,
		router:   r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(em)
	}

	var observer mapping.Observer
	if em.metrics != nil {
		observer = em.metrics
	}
	em.loader = mapping.NewLoader(registry, r, em.logger)
	em.persister = mapping.NewPersister(registry, r, observer, em.logger)
	em.remover = mapping.NewRemover(registry, observer, em.logger)
	return em
}

// PersistOption adjusts a single Persist call.
type PersistOption func(*persistOptions)

type persistOptions struct {
	context string
}

// WithContext writes the entity's own triples to the given context IRI
// instead of its type's default context.
func WithContext(iri string) PersistOption {
	return func(o *persistOptions) { o.context = iri }
}

// Persist writes entity and everything reachable from it, and returns its
// identity IRI.
func (em *EntityManager) Persist(ctx context.Context, entity any, opts ...PersistOption) (id string, err error) {
	defer em.observe("persist", time.Now(), &err)

	var o persistOptions
	for _, opt := range opts {
		opt(&o)
	}

	sch, err := em.registry.Lookup(entity)
	if err != nil {
		return "", err
	}
	conn, err := em.router.ForType(ctx, sch.Name)
	if err != nil {
		return "", err
	}

	id, err = em.persister.Persist(ctx, conn, entity, o.context)
	if err != nil {
		return "", fmt.Errorf("failed to persist %s: %w", sch.Name, err)
	}

	em.events.Publish(Event{
		Type:    EventEntityPersisted,
		Payload: map[string]string{"id": id, "type": sch.Name, "store": conn.ID()},
	})
	return id, nil
}

// Find loads the entity with identity id from the store that owns it. The
// type is recovered from id. A missing entity is ErrNotFound.
func (em *EntityManager) Find(ctx context.Context, id string) (any, error) {
	return em.find(ctx, nil, id)
}

// Find loads the entity of type T with identity id.
func Find[T any](ctx context.Context, em *EntityManager, id string) (*T, error) {
	v, err := em.find(ctx, reflect.TypeOf((*T)(nil)).Elem(), id)
	if err != nil {
		return nil, err
	}
	return v.(*T), nil
}

func (em *EntityManager) find(ctx context.Context, typ reflect.Type, id string) (v any, err error) {
	defer em.observe("find", time.Now(), &err)

	conn, err := em.router.ForIRI(ctx, id)
	if err != nil {
		return nil, err
	}
	v, found, err := em.loader.Find(ctx, conn, typ, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", id, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", mapping.ErrNotFound, id)
	}
	return v, nil
}

// Remove deletes the own triples of each entity, in one transaction per
// store. Referenced entities are not removed.
func (em *EntityManager) Remove(ctx context.Context, entities ...any) (err error) {
	defer em.observe("remove", time.Now(), &err)

	type target struct {
		entity any
		sch    *schema.Schema
		conn   store.Connection
	}
	targets := make([]target, 0, len(entities))
	for _, e := range entities {
		sch, err := em.registry.Lookup(e)
		if err != nil {
			return err
		}
		conn, err := em.router.ForType(ctx, sch.Name)
		if err != nil {
			return err
		}
		targets = append(targets, target{entity: e, sch: sch, conn: conn})
	}

	var opened []store.Connection
	for _, t := range targets {
		if !t.conn.AutoCommit() || contains(opened, t.conn) {
			continue
		}
		if err := t.conn.SetAutoCommit(ctx, false); err != nil {
			return err
		}
		opened = append(opened, t.conn)
	}

	for _, t := range targets {
		if err := em.remover.Remove(ctx, t.conn, t.entity); err != nil {
			em.logger.Warn("remove failed, transaction left open", "type", t.sch.Name, "error", err)
			return fmt.Errorf("failed to remove %s: %w", t.sch.Name, err)
		}
	}

	for _, conn := range opened {
		if err := conn.Commit(ctx); err != nil {
			return err
		}
		if err := conn.SetAutoCommit(ctx, true); err != nil {
			return err
		}
	}

	for _, t := range targets {
		em.events.Publish(Event{
			Type:    EventEntityRemoved,
			Payload: map[string]string{"id": idOf(t.sch, t.entity), "type": t.sch.Name, "store": t.conn.ID()},
		})
	}
	return nil
}

func contains(conns []store.Connection, c store.Connection) bool {
	for _, x := range conns {
		if x == c {
			return true
		}
	}
	return false
}

func idOf(sch *schema.Schema, entity any) string {
	return reflect.ValueOf(entity).Elem().FieldByIndex(sch.ID.Index).String()
}

// Commit commits every store left in manual-commit mode and restores
// auto-commit.
func (em *EntityManager) Commit(ctx context.Context) error {
	return em.resolve(ctx, EventCommitted, store.Connection.Commit)
}

// Rollback discards the pending writes of every store left in manual-commit
// mode and restores auto-commit.
func (em *EntityManager) Rollback(ctx context.Context) error {
	return em.resolve(ctx, EventRolledBack, store.Connection.Rollback)
}

func (em *EntityManager) resolve(ctx context.Context, event EventType, finish func(store.Connection, context.Context) error) error {
	open := em.router.Open()
	names := make([]string, 0, len(open))
	for name := range open {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		conn := open[name]
		if conn.AutoCommit() {
			continue
		}
		if err := finish(conn, ctx); err != nil {
			errs = append(errs, fmt.Errorf("store %s: %w", name, err))
			continue
		}
		if err := conn.SetAutoCommit(ctx, true); err != nil {
			errs = append(errs, fmt.Errorf("store %s: %w", name, err))
			continue
		}
		em.logger.Info("resolved transaction", "store", name, "action", string(event))
		em.events.Publish(Event{Type: event, Payload: map[string]string{"store": name}})
	}
	return errors.Join(errs...)
}

// InvalidateSchemas drops the registry's memoised schemas.
func (em *EntityManager) InvalidateSchemas() {
	em.registry.Invalidate()
}

// Close closes every store connection the manager opened.
func (em *EntityManager) Close() error {
	return em.router.Close()
}

func (em *EntityManager) observe(op string, start time.Time, err *error) {
	em.metrics.ObserveOperation(op, start, *err)
	if *err != nil {
		em.logger.Debug("operation failed", "op", op, "error", *err)
	}
}
