package event

import "github.com/l1jgo/savemaster/internal/core/ecs"

// Scope identifies one loaded instance of a scope (a level or scene).
// Handle is unique per load; Name may repeat when the same scope is loaded
// twice.
type Scope struct {
	Handle int
	Name   string
}

// Entity lifecycle.

type EntityCreated struct {
	Entity ecs.EntityID
	Scope  Scope
}

// EntityDestroying is published before the entity's components are removed.
// Explicit is false when the entity goes away because its scope unloads or
// the process quits.
type EntityDestroying struct {
	Entity   ecs.EntityID
	Scope    Scope
	Explicit bool
}

type ScopeLoaded struct {
	Scope Scope
}

type ScopeUnloaded struct {
	Scope Scope
}

// Slot manager notifications.

type SlotChangeBegin struct{ Slot int }

type SlotChangeDone struct{ Slot int }

type WriteBegin struct{ Slot int }

type WriteDone struct {
	Slot int
	Err  error
}
