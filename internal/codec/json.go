package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cayleygraph/quad"

	"quadmap/internal/store"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// jsonQuad is one quad with every term in its flattened storage form
type jsonQuad struct {
	Subject   store.Term  `json:"subject"`
	Predicate store.Term  `json:"predicate"`
	Object    store.Term  `json:"object"`
	Context   *store.Term `json:"context,omitempty"`
}

// Parse imports quads from JSON
func (c *JSONCodec) Parse(r io.Reader) ([]quad.Quad, error) {
	var doc []jsonQuad
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	quads := make([]quad.Quad, 0, len(doc))
	for _, jq := range doc {
		q := quad.Quad{
			Subject:   jq.Subject.Quad(),
			Predicate: jq.Predicate.Quad(),
			Object:    jq.Object.Quad(),
		}
		if jq.Context != nil {
			q.Label = jq.Context.Quad()
		}
		quads = append(quads, q)
	}
	return quads, nil
}

// Export exports quads to JSON
func (c *JSONCodec) Export(quads []quad.Quad, w io.Writer) error {
	doc := make([]jsonQuad, 0, len(quads))
	for _, q := range quads {
		var jq jsonQuad
		var err error
		if jq.Subject, err = store.ToTerm(q.Subject); err != nil {
			return fmt.Errorf("subject: %w", err)
		}
		if jq.Predicate, err = store.ToTerm(q.Predicate); err != nil {
			return fmt.Errorf("predicate: %w", err)
		}
		if jq.Object, err = store.ToTerm(q.Object); err != nil {
			return fmt.Errorf("object: %w", err)
		}
		if q.Label != nil {
			ctx, err := store.ToTerm(q.Label)
			if err != nil {
				return fmt.Errorf("context: %w", err)
			}
			jq.Context = &ctx
		}
		doc = append(doc, jq)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
