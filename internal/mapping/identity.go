package mapping

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"quadmap/internal/schema"
	"quadmap/internal/store"
)

// Resolver hands out the connection owning a type or identity IRI. The
// router implements it; a nil Resolver keeps every recursive call on the
// caller's connection.
type Resolver interface {
	ForType(ctx context.Context, typeName string) (store.Connection, error)
	ForIRI(ctx context.Context, iri string) (store.Connection, error)
}

// Observer is told about every quad an engine adds or removes.
type Observer interface {
	QuadsAdded(storeID string, n int)
	QuadsRemoved(storeID string, n int)
}

// TypeNameFromIRI recovers the entity type name from an identity IRI of the
// form <namespace><TypeName>_<suffix>: everything before the final '_' of
// the local name. ok is false when the local name has no '_'.
func TypeNameFromIRI(iri string) (string, bool) {
	local := iri[strings.LastIndexAny(iri, "/#")+1:]
	i := strings.LastIndex(local, "_")
	if i <= 0 {
		return "", false
	}
	return local[:i], true
}

// mintIdentity returns a fresh identity IRI for an instance of s.
func mintIdentity(s *schema.Schema) string {
	return s.IdentityPrefix() + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
