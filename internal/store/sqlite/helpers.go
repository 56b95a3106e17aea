package sqlite

import (
	"fmt"

	"github.com/cayleygraph/quad"

	"quadmap/internal/store"
)

// ============================================================================
// Term Conversion Helpers
// ============================================================================

// contextValue converts a quad label to its column value ("" = no context)
func contextValue(v quad.Value) (string, error) {
	switch c := v.(type) {
	case nil:
		return "", nil
	case quad.IRI:
		return string(c), nil
	default:
		return "", fmt.Errorf("context must be an IRI, got %T", v)
	}
}

// valueToContext converts a context column back to a quad label
func valueToContext(s string) quad.Value {
	if s == "" {
		return nil
	}
	return quad.IRI(s)
}

// ============================================================================
// Quad Row Scanner
// ============================================================================
//
// CRITICAL: Column order must match between:
// - quadColumns constant
// - scanArgs() return slice
// - quadInsertArgs() return slice

// quadRow holds all columns from a quad query for scanning
type quadRow struct {
	SubjectKind string
	Subject     string
	Predicate   string
	ObjectKind  string
	Object      string
	ObjectType  string
	Context     string
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match quadColumns order exactly:
// subject_kind, subject, predicate, object_kind, object, object_type, context
func (r *quadRow) scanArgs() []interface{} {
	return []interface{}{
		&r.SubjectKind, // 1
		&r.Subject,     // 2
		&r.Predicate,   // 3
		&r.ObjectKind,  // 4
		&r.Object,      // 5
		&r.ObjectType,  // 6
		&r.Context,     // 7
	}
}

// toQuad converts the scanned row to a quad.Quad
func (r *quadRow) toQuad() quad.Quad {
	subject := store.Term{Kind: store.Kind(r.SubjectKind), Value: r.Subject}
	object := store.Term{Kind: store.Kind(r.ObjectKind), Value: r.Object, Datatype: r.ObjectType}
	return quad.Quad{
		Subject:   subject.Quad(),
		Predicate: quad.IRI(r.Predicate),
		Object:    object.Quad(),
		Label:     valueToContext(r.Context),
	}
}

// quadColumns returns the SELECT column list for quad queries
const quadColumns = `subject_kind, subject, predicate, object_kind, object, object_type, context`

// ============================================================================
// Quad Write Helpers
// ============================================================================

// quadInsertArgs prepares arguments for quad INSERT/DELETE
// Returns: subject_kind, subject, predicate, object_kind, object, object_type, context
func quadInsertArgs(q quad.Quad) ([]interface{}, error) {
	subject, err := store.ToTerm(q.Subject)
	if err != nil {
		return nil, fmt.Errorf("subject: %w", err)
	}
	if subject.Kind == store.KindLiteral {
		return nil, fmt.Errorf("subject must be an IRI or blank node, got literal %q", subject.Value)
	}

	predicate, ok := q.Predicate.(quad.IRI)
	if !ok {
		return nil, fmt.Errorf("predicate must be an IRI, got %T", q.Predicate)
	}

	object, err := store.ToTerm(q.Object)
	if err != nil {
		return nil, fmt.Errorf("object: %w", err)
	}

	ctx, err := contextValue(q.Label)
	if err != nil {
		return nil, err
	}

	return []interface{}{
		string(subject.Kind),
		subject.Value,
		string(predicate),
		string(object.Kind),
		object.Value,
		object.Datatype,
		ctx,
	}, nil
}
