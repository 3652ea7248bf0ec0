// mapper.go: enum-dispatched entity registry. Every table the store manages
// is declared here once; migration and generic queries dispatch on the
// EntityKind tag instead of casting row mappers across unrelated types.
package datastore

import (
	"fmt"
)

// EntityKind identifies one persisted entity type.
type EntityKind int

const (
	KindRoom EntityKind = iota
	KindSlot
	KindCameraBinding
)

// String returns the kind name for logs.
func (k EntityKind) String() string {
	switch k {
	case KindRoom:
		return "room"
	case KindSlot:
		return "slot"
	case KindCameraBinding:
		return "camera_binding"
	default:
		return fmt.Sprintf("entity(%d)", int(k))
	}
}

// entityMapper binds a kind to its strongly typed model.
type entityMapper struct {
	kind  EntityKind
	model func() any
}

// entityRegistry lists every managed entity. Order matters for migration:
// referenced tables first.
var entityRegistry = []entityMapper{
	{kind: KindRoom, model: func() any { return &Room{} }},
	{kind: KindSlot, model: func() any { return &Slot{} }},
	{kind: KindCameraBinding, model: func() any { return &CameraBinding{} }},
}

// registeredModels returns fresh model prototypes for AutoMigrate.
func registeredModels() []any {
	models := make([]any, 0, len(entityRegistry))
	for _, m := range entityRegistry {
		models = append(models, m.model())
	}
	return models
}

// CountEntities counts rows of one entity kind.
func (ds *DataStore) CountEntities(kind EntityKind) (int64, error) {
	for _, m := range entityRegistry {
		if m.kind == kind {
			var count int64
			if err := ds.DB.Model(m.model()).Count(&count).Error; err != nil {
				return 0, fmt.Errorf("failed to count %s rows: %w", kind, err)
			}
			return count, nil
		}
	}
	return 0, fmt.Errorf("unknown entity kind %d", int(kind))
}
