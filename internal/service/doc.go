// Package service composes the router and the mapping engines into an
// entity manager, the unit-of-work facade applications use.
//
// # Entity Manager
//
// EntityManager routes every call to the store owning the entity's type (for
// writes) or identity IRI (for reads), so callers never name a store. Persist
// cascades through referenced entities, possibly across stores, inside one
// transaction per store. Remove deletes each given entity's own triples.
//
// A failed cascade leaves its stores in manual-commit mode with the partial
// writes pending. Commit keeps them, Rollback discards them; both restore
// auto-commit.
//
// # Event System
//
// Each successful persist, remove, commit and rollback is published on the
// optional EventBus. Slow subscribers miss events rather than block.
//
// # Concurrency
//
// An EntityManager serves one logical unit of work at a time. Run concurrent
// callers on separate managers.
package service
