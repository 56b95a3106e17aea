package vocab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnsigned(t *testing.T) {
	assert.True(t, Unsigned(XSDUnsignedByte))
	assert.True(t, Unsigned(XSDUnsignedLong))
	assert.False(t, Unsigned(XSDLong))
	assert.False(t, Unsigned(XSDInteger))
}

func TestStructuralIRIsAreAbsolute(t *testing.T) {
	for _, iri := range []string{string(RDFType), string(RDFFirst), string(RDFRest), string(RDFNil), string(EntryKey), string(ContextOverride)} {
		assert.Regexp(t, `^https?://`, iri)
	}
}
