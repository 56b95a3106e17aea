package store

import (
	"fmt"

	"github.com/cayleygraph/quad"
)

// Kind classifies a stored term.
type Kind string

const (
	KindIRI     Kind = "i"
	KindBNode   Kind = "b"
	KindLiteral Kind = "l"
)

// Term is the flattened storage form of a quad.Value.
type Term struct {
	Kind     Kind   `json:"k"`
	Value    string `json:"v"`
	Datatype string `json:"t,omitempty"`
}

// ToTerm flattens v. Language-tagged strings keep their tag as "@lang" in
// the datatype slot.
func ToTerm(v quad.Value) (Term, error) {
	switch t := v.(type) {
	case quad.IRI:
		return Term{Kind: KindIRI, Value: string(t)}, nil
	case quad.BNode:
		return Term{Kind: KindBNode, Value: string(t)}, nil
	case quad.String:
		return Term{Kind: KindLiteral, Value: string(t)}, nil
	case quad.TypedString:
		return Term{Kind: KindLiteral, Value: string(t.Value), Datatype: string(t.Type)}, nil
	case quad.LangString:
		return Term{Kind: KindLiteral, Value: string(t.Value), Datatype: "@" + t.Lang}, nil
	case nil:
		return Term{}, fmt.Errorf("nil term")
	default:
		return Term{}, fmt.Errorf("unsupported term type %T", v)
	}
}

// Quad rebuilds the quad.Value.
func (t Term) Quad() quad.Value {
	switch t.Kind {
	case KindIRI:
		return quad.IRI(t.Value)
	case KindBNode:
		return quad.BNode(t.Value)
	}
	switch {
	case t.Datatype == "":
		return quad.String(t.Value)
	case t.Datatype[0] == '@':
		return quad.LangString{Value: quad.String(t.Value), Lang: t.Datatype[1:]}
	default:
		return quad.TypedString{Value: quad.String(t.Value), Type: quad.IRI(t.Datatype)}
	}
}

// Key is a canonical string for v, usable as a map key for set arithmetic
// over terms. Different term kinds never collide.
func Key(v quad.Value) string {
	if v == nil {
		return ""
	}
	t, err := ToTerm(v)
	if err != nil {
		return fmt.Sprintf("?%v", v)
	}
	return string(t.Kind) + "|" + t.Datatype + "|" + t.Value
}

// QuadKey is the canonical string of a whole quad.
func QuadKey(q quad.Quad) string {
	return Key(q.Subject) + "\x00" + Key(q.Predicate) + "\x00" + Key(q.Object) + "\x00" + Key(q.Label)
}
