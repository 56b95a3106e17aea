package codec

import (
	"fmt"
	"io"

	"github.com/cayleygraph/quad"
	"github.com/cayleygraph/quad/nquads"
)

// NQuadsCodec writes quads as N-Quads
type NQuadsCodec struct{}

// NewNQuadsCodec creates a new N-Quads codec
func NewNQuadsCodec() *NQuadsCodec {
	return &NQuadsCodec{}
}

// Format returns the codec format identifier
func (c *NQuadsCodec) Format() string {
	return "nquads"
}

// Export writes one N-Quads line per quad
func (c *NQuadsCodec) Export(quads []quad.Quad, w io.Writer) error {
	nw := nquads.NewWriter(w)
	for _, q := range quads {
		if err := nw.WriteQuad(q); err != nil {
			nw.Close()
			return fmt.Errorf("failed to write N-Quads: %w", err)
		}
	}
	if err := nw.Close(); err != nil {
		return fmt.Errorf("failed to flush N-Quads: %w", err)
	}
	return nil
}
