package system

import (
	"time"

	"github.com/l1jgo/savemaster/internal/core/ecs"
	"github.com/l1jgo/savemaster/internal/core/event"
	coresys "github.com/l1jgo/savemaster/internal/core/system"
	"github.com/l1jgo/savemaster/internal/save"
)

// Saveables looks up the registry bound to an entity. Implemented by
// world.State.
type Saveables interface {
	Saveable(id ecs.EntityID) *save.Saveable
}

// LifecycleSystem routes entity and scope lifecycle events to the slot
// manager.
//
// Teardown events are handled the moment they are published, while the
// entity still exists. Creation events arrive through the deferred bus and
// are queued, then applied in Update: scopes first, then entities.
type LifecycleSystem struct {
	master    *save.Master
	saveables Saveables

	pendingScopes   []event.ScopeLoaded
	pendingEntities []event.EntityCreated
	// handles are never reused, so an unloaded handle stays closed
	closed map[int]struct{}
}

func NewLifecycleSystem(bus *event.Bus, master *save.Master, saveables Saveables) *LifecycleSystem {
	s := &LifecycleSystem{master: master, saveables: saveables, closed: make(map[int]struct{})}
	event.Subscribe(bus, func(ev event.ScopeLoaded) {
		s.pendingScopes = append(s.pendingScopes, ev)
	})
	event.Subscribe(bus, func(ev event.EntityCreated) {
		s.pendingEntities = append(s.pendingEntities, ev)
	})
	event.Subscribe(bus, func(ev event.EntityDestroying) {
		s.master.EntityDestroying(ev, s.saveables.Saveable(ev.Entity))
	})
	event.Subscribe(bus, func(ev event.ScopeUnloaded) {
		s.closed[ev.Scope.Handle] = struct{}{}
		s.master.ScopeUnloaded(ev.Scope)
	})
	return s
}

func (s *LifecycleSystem) Phase() coresys.Phase { return coresys.PhaseEvents }

func (s *LifecycleSystem) Update(_ time.Duration) {
	scopes := s.pendingScopes
	entities := s.pendingEntities
	s.pendingScopes = nil
	s.pendingEntities = nil

	// 先處理場景，再處理實體：實體註冊時需要已知的場景 ID
	for _, ev := range scopes {
		if _, gone := s.closed[ev.Scope.Handle]; !gone {
			s.master.ScopeLoaded(ev.Scope)
		}
	}
	for _, ev := range entities {
		// entities destroyed before their first tick have no registry left
		if sv := s.saveables.Saveable(ev.Entity); sv != nil {
			s.master.EntityCreated(ev, sv)
		}
	}
}
