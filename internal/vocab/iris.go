// Package vocab holds the IRIs of every class and predicate the mapping
// engine writes on its own behalf. Application predicates live in schema
// descriptors, not here.
package vocab

import "github.com/cayleygraph/quad"

// Namespace prefixes.
const (
	RDF     = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFS    = "http://www.w3.org/2000/01/rdf-schema#"
	OWL     = "http://www.w3.org/2002/07/owl#"
	XSD     = "http://www.w3.org/2001/XMLSchema#"
	Quadmap = "https://quadmap.dev/ontology/"

	// EntityNamespace is the default namespace for minted identity URIs.
	EntityNamespace = "https://quadmap.dev/entity/"
)

// Structural predicates and classes.
const (
	RDFType  = quad.IRI(RDF + "type")
	RDFFirst = quad.IRI(RDF + "first")
	RDFRest  = quad.IRI(RDF + "rest")
	RDFNil   = quad.IRI(RDF + "nil")

	RDFSSubClassOf = quad.IRI(RDFS + "subClassOf")

	OWLClass        = quad.IRI(OWL + "Class")
	OWLDisjointWith = quad.IRI(OWL + "disjointWith")

	// EntryKey and EntryValue are the two predicates on a map entry node.
	EntryKey   = quad.IRI(Quadmap + "entryKey")
	EntryValue = quad.IRI(Quadmap + "entryValue")

	// ContextOverride records the partition an instance was written to when
	// it differs from its type's default context.
	ContextOverride = quad.IRI(Quadmap + "context")
)

// Literal datatypes.
const (
	XSDString        = quad.IRI(XSD + "string")
	XSDBoolean       = quad.IRI(XSD + "boolean")
	XSDByte          = quad.IRI(XSD + "byte")
	XSDShort         = quad.IRI(XSD + "short")
	XSDInt           = quad.IRI(XSD + "int")
	XSDLong          = quad.IRI(XSD + "long")
	XSDUnsignedByte  = quad.IRI(XSD + "unsignedByte")
	XSDUnsignedShort = quad.IRI(XSD + "unsignedShort")
	XSDUnsignedInt   = quad.IRI(XSD + "unsignedInt")
	XSDUnsignedLong  = quad.IRI(XSD + "unsignedLong")
	XSDFloat         = quad.IRI(XSD + "float")
	XSDDouble        = quad.IRI(XSD + "double")
	XSDInteger       = quad.IRI(XSD + "integer")
	XSDDecimal       = quad.IRI(XSD + "decimal")
	XSDDateTime      = quad.IRI(XSD + "dateTime")
	XSDAnyURI        = quad.IRI(XSD + "anyURI")

	// UUID has no XSD counterpart.
	UUID = quad.IRI(Quadmap + "uuid")
)

// Unsigned reports whether dt is one of the unsigned XSD integer datatypes.
func Unsigned(dt quad.IRI) bool {
	switch dt {
	case XSDUnsignedByte, XSDUnsignedShort, XSDUnsignedInt, XSDUnsignedLong:
		return true
	}
	return false
}
