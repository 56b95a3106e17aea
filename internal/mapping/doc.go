// Package mapping persists entity graphs as triples and reconstructs them.
//
// Three engines share the schema registry:
//
//   - Loader rebuilds an entity from the quads whose subject is its identity
//     IRI, recursing into referenced entities and installing Lazy
//     placeholders for deferred fields.
//   - Persister writes an entity, minting its identity IRI on first persist
//     and diffing every field against what is already stored.
//   - Remover deletes the quads that make up one entity's own
//     representation, including the chain and map-entry nodes it owns.
//
// Each top-level call threads a traversal value through its recursion. The
// traversal carries the visited map (object identity for writes, identity
// IRI for reads) so shared and cyclic references are processed once, and is
// discarded when the call returns. The engines themselves hold only the
// per-process memo of asserted class declarations and must not be used from
// several goroutines at once.
//
// Persister and Remover run their whole call tree in one transaction per
// store connection. When a call fails part-way the transaction is left open
// so the caller can choose between Commit and Rollback.
package mapping
