package mapping

import (
	"errors"
	"fmt"

	"quadmap/internal/schema"
	"quadmap/internal/store"
)

// Error kinds. Test with errors.Is; none of them are retried.
var (
	ErrSchema        = schema.ErrSchema
	ErrStore         = store.ErrStore
	ErrNotFound      = errors.New("entity not found")
	ErrDataIntegrity = errors.New("data integrity error")
	ErrRouting       = errors.New("routing error")
)

func integrityErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDataIntegrity, fmt.Sprintf(format, args...))
}

func routingErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRouting, fmt.Sprintf(format, args...))
}
