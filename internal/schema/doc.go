// Package schema describes how entity types map onto triples.
//
// Every entity type is registered once with an explicit Descriptor: its type
// name, namespace, class and supertypes, default context, identity field and
// an ordered list of Field descriptors. Nothing is discovered from struct
// tags; reflection is only used to locate the named Go fields and check that
// their types fit the declared encoding.
//
// A Registry resolves descriptors into Schemas on first use and memoises
// them until Invalidate is called.
//
// # Field kinds
//
//	KindScalar            one literal or reference triple
//	KindList              rdf:first/rdf:rest chain ending in rdf:nil
//	KindSet               one triple per element
//	KindMap               one entry node per key with entryKey/entryValue
//	KindEntity            reference to another entity's identity IRI
//	KindEntityCollection  references, as a set or (Ordered) a chain
//	KindBoolClass         rdf:type membership in TrueClass xor FalseClass
package schema
