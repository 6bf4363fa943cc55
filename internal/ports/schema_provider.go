package ports

import "github.com/bft-labs/groundlink/internal/domain"

// SchemaProvider supplies the ordered telemetry field layout.
// A field with a non-empty unit is numeric.
type SchemaProvider interface {
	FieldSchema() ([]domain.Field, error)
}
