// Package store defines the triple store connection the mapping engine
// writes through.
//
// A Connection is a quad store scoped to one physical repository. It answers
// pattern queries, adds and removes single quads, and exposes an auto-commit
// switch plus explicit Commit and Rollback. The engine never assumes more
// than this: query evaluation, indexing and the on-disk format belong to the
// implementation.
//
// # Implementations
//
// The sqlite subpackage is the local embedded store. It keeps quads in a
// single indexed table and maps manual-commit mode onto a database/sql
// transaction.
//
// The natskv subpackage is the remote store. It keeps one key per quad in a
// NATS JetStream key-value bucket and buffers writes in memory until Commit.
//
// # Terms
//
// Quads use the github.com/cayleygraph/quad term model. Only IRIs, blank
// nodes, plain strings and typed literals are stored; see Kind.
package store
