package codec

import (
	"fmt"
	"io"

	"github.com/cayleygraph/quad"
	"gopkg.in/yaml.v3"
)

// YAMLCodec writes quads as a YAML list grouped by subject
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// yamlSubject represents the quads sharing one subject
type yamlSubject struct {
	Subject    string          `yaml:"subject"`
	Statements []yamlStatement `yaml:"statements"`
}

type yamlStatement struct {
	Predicate string `yaml:"predicate"`
	Object    string `yaml:"object"`
	Context   string `yaml:"context,omitempty"`
}

// Export writes quads in N-Quads term notation, one entry per subject in
// first-seen order
func (c *YAMLCodec) Export(quads []quad.Quad, w io.Writer) error {
	var doc []*yamlSubject
	bySubject := make(map[string]*yamlSubject)
	for _, q := range quads {
		subject := q.Subject.String()
		entry, ok := bySubject[subject]
		if !ok {
			entry = &yamlSubject{Subject: subject}
			bySubject[subject] = entry
			doc = append(doc, entry)
		}
		st := yamlStatement{Predicate: q.Predicate.String(), Object: q.Object.String()}
		if q.Label != nil {
			st.Context = q.Label.String()
		}
		entry.Statements = append(entry.Statements, st)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}
