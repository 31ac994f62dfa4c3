package world

import (
	"go.uber.org/zap"

	"github.com/l1jgo/savemaster/internal/component"
	"github.com/l1jgo/savemaster/internal/core/ecs"
	"github.com/l1jgo/savemaster/internal/core/event"
	"github.com/l1jgo/savemaster/internal/data"
	"github.com/l1jgo/savemaster/internal/provider"
	"github.com/l1jgo/savemaster/internal/save"
	"github.com/l1jgo/savemaster/internal/scripting"
)

// State tracks every entity and loaded scope of the running game and is the
// save.Spawner of the slot manager.
// Single-goroutine access only (game loop).
type State struct {
	World      *ecs.World
	Transforms *ecs.Store[component.Transform]
	Names      *ecs.Store[component.Name]
	Scopes     *ecs.Store[component.Scope]
	Visible    *ecs.Store[component.Visible]
	Counters   *ecs.Store[component.Counter]

	bus     *event.Bus
	scripts *scripting.Engine
	log     *zap.Logger

	saveables map[ecs.EntityID]*save.Saveable
	templates map[ecs.EntityID]*data.Template
	explicit  map[ecs.EntityID]bool

	scopes     map[int]event.Scope
	members    map[int][]ecs.EntityID // creation order per scope handle
	nextHandle int
}

// NewState creates an empty world. scripts may be nil when no template
// uses script providers.
func NewState(bus *event.Bus, scripts *scripting.Engine, log *zap.Logger) *State {
	if log == nil {
		log = zap.NewNop()
	}
	s := &State{
		World:      ecs.NewWorld(),
		Transforms: ecs.NewStore[component.Transform](),
		Names:      ecs.NewStore[component.Name](),
		Scopes:     ecs.NewStore[component.Scope](),
		Visible:    ecs.NewStore[component.Visible](),
		Counters:   ecs.NewStore[component.Counter](),
		bus:        bus,
		scripts:    scripts,
		log:        log,
		saveables:  make(map[ecs.EntityID]*save.Saveable),
		templates:  make(map[ecs.EntityID]*data.Template),
		explicit:   make(map[ecs.EntityID]bool),
		scopes:     make(map[int]event.Scope),
		members:    make(map[int][]ecs.EntityID),
	}
	s.World.Register(s.Transforms)
	s.World.Register(s.Names)
	s.World.Register(s.Scopes)
	s.World.Register(s.Visible)
	s.World.Register(s.Counters)
	s.World.OnDestroy(s.onDestroy)
	return s
}

func emit[T any](bus *event.Bus, ev T) {
	if bus != nil {
		event.Emit(bus, ev)
	}
}

// Alive implements provider.Host.
func (s *State) Alive(id ecs.EntityID) bool { return s.World.Alive(id) }

// EntityCount returns the number of live entities.
func (s *State) EntityCount() int { return s.World.Len() }

// --- scopes ---

// LoadScope opens a new instance of the named scope. Loading the same name
// twice yields two scopes with distinct handles. ScopeLoaded is delivered
// on the next tick.
func (s *State) LoadScope(name string) event.Scope {
	s.nextHandle++
	sc := event.Scope{Handle: s.nextHandle, Name: save.NormalizeScope(name)}
	s.scopes[sc.Handle] = sc
	emit(s.bus, event.ScopeLoaded{Scope: sc})
	s.log.Debug("scope loaded", zap.String("scope", sc.Name), zap.Int("handle", sc.Handle))
	return sc
}

// UnloadScope tears down every entity of the scope, newest first, as a
// non-explicit teardown and then publishes ScopeUnloaded.
func (s *State) UnloadScope(handle int) bool {
	sc, ok := s.scopes[handle]
	if !ok {
		return false
	}
	ids := append([]ecs.EntityID(nil), s.members[handle]...)
	for i := len(ids) - 1; i >= 0; i-- {
		delete(s.explicit, ids[i])
		s.World.Destroy(ids[i])
	}
	delete(s.scopes, handle)
	delete(s.members, handle)
	event.Publish(s.bus, event.ScopeUnloaded{Scope: sc})
	s.log.Debug("scope unloaded", zap.String("scope", sc.Name), zap.Int("handle", handle), zap.Int("entities", len(ids)))
	return true
}

// UnloadAll unloads every scope, oldest first.
func (s *State) UnloadAll() {
	for _, sc := range s.LoadedScopes() {
		s.UnloadScope(sc.Handle)
	}
}

// Scope returns the loaded scope with handle.
func (s *State) Scope(handle int) (event.Scope, bool) {
	sc, ok := s.scopes[handle]
	return sc, ok
}

// LoadedScopes lists loaded scopes ordered by handle.
func (s *State) LoadedScopes() []event.Scope {
	out := make([]event.Scope, 0, len(s.scopes))
	for h := 1; h <= s.nextHandle; h++ {
		if sc, ok := s.scopes[h]; ok {
			out = append(out, sc)
		}
	}
	return out
}

// Members returns the live entities of a scope in creation order.
func (s *State) Members(handle int) []ecs.EntityID {
	return append([]ecs.EntityID(nil), s.members[handle]...)
}

// --- entities ---

func (s *State) create(tpl *data.Template, sc event.Scope) ecs.EntityID {
	id := s.World.CreateEntity()
	s.Names.Set(id, &component.Name{Value: tpl.Name})
	s.Scopes.Set(id, &component.Scope{Handle: sc.Handle, Name: sc.Name})
	s.Transforms.Set(id, &component.Transform{
		Position: component.Vec3{X: tpl.Position[0], Y: tpl.Position[1], Z: tpl.Position[2]},
		Rotation: component.Quat{X: tpl.Rotation[0], Y: tpl.Rotation[1], Z: tpl.Rotation[2], W: tpl.Rotation[3]},
		Scale:    component.Vec3{X: tpl.Scale[0], Y: tpl.Scale[1], Z: tpl.Scale[2]},
	})
	s.Visible.Set(id, &component.Visible{On: !tpl.Hidden})
	s.Counters.Set(id, &component.Counter{Value: tpl.Counter})
	s.templates[id] = tpl
	s.members[sc.Handle] = append(s.members[sc.Handle], id)
	return id
}

// Place creates an author-placed entity whose saveable id is fixed, like an
// object that ships with the scope. It reaches the slot manager through an
// EntityCreated event on the next tick.
func (s *State) Place(tpl *data.Template, sc event.Scope, saveID string, manual bool) (ecs.EntityID, *save.Saveable) {
	if _, ok := s.scopes[sc.Handle]; !ok {
		s.log.Warn("place into unloaded scope", zap.String("template", tpl.Name), zap.Int("handle", sc.Handle))
		return 0, nil
	}
	id := s.create(tpl, sc)
	sv := save.NewSaveable(save.SaveableOptions{
		ID:       saveID,
		Scope:    sc.Name,
		LoadOnce: tpl.LoadOnce,
		Manual:   manual,
	}, s.log)
	s.Scan(id, sv)
	emit(s.bus, event.EntityCreated{Entity: id, Scope: sc})
	return id, sv
}

// Spawn implements save.Spawner. Templates marked saveable come with their
// registry already scanned; the instance manager assigns the id.
func (s *State) Spawn(tpl *data.Template, sc event.Scope) (ecs.EntityID, *save.Saveable) {
	id := s.create(tpl, sc)
	if !tpl.Saveable {
		return id, nil
	}
	sv := save.NewSaveable(save.SaveableOptions{Scope: sc.Name, LoadOnce: tpl.LoadOnce}, s.log)
	s.Scan(id, sv)
	return id, sv
}

// Scan implements save.Spawner: it registers the providers declared by the
// entity's template on sv and binds sv to the entity.
func (s *State) Scan(id ecs.EntityID, sv *save.Saveable) int {
	tpl, ok := s.templates[id]
	if !ok || sv == nil {
		return 0
	}
	n := 0
	for _, spec := range tpl.Providers {
		p := s.newProvider(id, spec)
		if p == nil {
			continue
		}
		subID := spec.ID
		if subID == "" {
			subID = spec.Kind
		}
		sv.RegisterProvider(subID, p, false)
		n++
	}
	s.saveables[id] = sv
	return n
}

func (s *State) newProvider(id ecs.EntityID, spec data.ProviderSpec) save.Provider {
	switch spec.Kind {
	case "position":
		return provider.NewPosition(s, s.Transforms, id)
	case "rotation":
		return provider.NewRotation(s, s.Transforms, id)
	case "scale":
		return provider.NewScale(s, s.Transforms, id)
	case "visibility":
		return provider.NewVisibility(s, s.Visible, id)
	case "counter":
		return provider.NewCounter(s, s.Counters, id)
	case "script":
		if s.scripts == nil {
			s.log.Warn("script provider without script engine", zap.String("script", spec.Script))
			return nil
		}
		p, err := s.scripts.NewProvider(spec.Script)
		if err != nil {
			s.log.Warn("script provider unavailable", zap.String("script", spec.Script), zap.Error(err))
			return nil
		}
		p.BindLiveness(func() bool { return s.World.Alive(id) })
		return p
	default:
		s.log.Warn("unknown provider kind", zap.String("kind", spec.Kind), zap.String("id", spec.ID))
		return nil
	}
}

// Despawn implements save.Spawner.
func (s *State) Despawn(id ecs.EntityID) {
	s.World.Destroy(id)
}

// Destroy queues an explicit, in-game destruction. The entity goes away in
// the cleanup phase of the current tick.
func (s *State) Destroy(id ecs.EntityID) {
	if !s.World.Alive(id) {
		return
	}
	s.explicit[id] = true
	s.World.MarkForDestruction(id)
}

// Saveable returns the registry bound to an entity.
func (s *State) Saveable(id ecs.EntityID) *save.Saveable {
	return s.saveables[id]
}

// ScopeOf returns the scope an entity lives in.
func (s *State) ScopeOf(id ecs.EntityID) (event.Scope, bool) {
	c, ok := s.Scopes.Get(id)
	if !ok {
		return event.Scope{}, false
	}
	return event.Scope{Handle: c.Handle, Name: c.Name}, true
}

// onDestroy runs before the entity's components are removed.
func (s *State) onDestroy(id ecs.EntityID) {
	sc, _ := s.ScopeOf(id)
	event.Publish(s.bus, event.EntityDestroying{Entity: id, Scope: sc, Explicit: s.explicit[id]})

	delete(s.explicit, id)
	delete(s.saveables, id)
	delete(s.templates, id)
	ids := s.members[sc.Handle]
	for i, m := range ids {
		if m == id {
			s.members[sc.Handle] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}
