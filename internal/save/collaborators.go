package save

import (
	"context"

	"github.com/l1jgo/savemaster/internal/core/ecs"
	"github.com/l1jgo/savemaster/internal/core/event"
	"github.com/l1jgo/savemaster/internal/data"
)

// SlotStorage reads and writes whole slots. Implemented by persist.SlotFiles.
type SlotStorage interface {
	// LoadSave returns the store for slot, or nil when the slot is empty or
	// unreadable. With createIfEmpty a fresh store is created and written.
	LoadSave(ctx context.Context, slot int, createIfEmpty bool) *Store
	WriteSave(ctx context.Context, s *Store, slot int) error
	// WriteSaveAsync encodes s before returning and writes it on another
	// goroutine. The channel receives exactly one result.
	WriteSaveAsync(ctx context.Context, s *Store, slot int) <-chan error
	DeleteSave(ctx context.Context, slot int) error
	UsedSlots(ctx context.Context) []int
	IsSlotUsed(ctx context.Context, slot int) bool
}

// Prefs is the small persistent key/value config that survives slot
// switches (last used slot).
type Prefs interface {
	GetInt(key string, def int) int
	SetInt(key string, v int)
}

// Resolver finds spawnable templates.
type Resolver interface {
	Resolve(src data.Source, path string) (*data.Template, bool)
}

// Spawner creates and removes entities on behalf of an InstanceManager.
type Spawner interface {
	// Spawn instantiates tpl in scope. The returned Saveable is nil when
	// the template does not carry its own registry.
	Spawn(tpl *data.Template, scope event.Scope) (ecs.EntityID, *Saveable)
	// Scan registers the template's providers on sv and binds sv to id.
	// It returns the number of providers found.
	Scan(id ecs.EntityID, sv *Saveable) int
	Despawn(id ecs.EntityID)
}
