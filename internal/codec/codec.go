// Package codec dumps and restores the quads of a store.
package codec

import (
	"fmt"
	"io"
	"sort"

	"github.com/cayleygraph/quad"
)

// Importer interface for reading quads from various formats
type Importer interface {
	Parse(r io.Reader) ([]quad.Quad, error)
	Format() string
}

// Exporter interface for writing quads to various formats
type Exporter interface {
	Export(quads []quad.Quad, w io.Writer) error
	Format() string
}

// Exporters lists every exporter by format.
func Exporters() map[string]Exporter {
	return map[string]Exporter{
		"nquads": NewNQuadsCodec(),
		"json":   NewJSONCodec(),
		"yaml":   NewYAMLCodec(),
	}
}

// ExporterFor returns the exporter of the named format.
func ExporterFor(format string) (Exporter, error) {
	if e, ok := Exporters()[format]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("unknown export format %q (want one of %v)", format, formats())
}

func formats() []string {
	var names []string
	for name := range Exporters() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sort orders quads by context, subject, predicate and object so dumps are
// stable across runs.
func Sort(quads []quad.Quad) {
	str := func(v quad.Value) string {
		if v == nil {
			return ""
		}
		return v.String()
	}
	sort.SliceStable(quads, func(i, j int) bool {
		a, b := quads[i], quads[j]
		if x, y := str(a.Label), str(b.Label); x != y {
			return x < y
		}
		if x, y := str(a.Subject), str(b.Subject); x != y {
			return x < y
		}
		if x, y := str(a.Predicate), str(b.Predicate); x != y {
			return x < y
		}
		return str(a.Object) < str(b.Object)
	})
}
