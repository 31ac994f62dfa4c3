package save

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/l1jgo/savemaster/internal/core/ecs"
	"github.com/l1jgo/savemaster/internal/core/event"
	"github.com/l1jgo/savemaster/internal/data"
)

const instanceSaveablePrefix = "SaveMaster-"

type scopeState struct {
	scope event.Scope
	// id is the scope name, suffixed when another scope with the same
	// name is already loaded.
	id string
}

// NormalizeScope folds scope names to NFC so visually equal names share
// store keys.
func NormalizeScope(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ScopeLoaded tracks a newly loaded scope. A scope whose name is already
// loaded gets the id "<name>-<n>" with the lowest free n from 2 upwards.
// If the active slot holds spawned instances for the scope, its
// InstanceManager is created and respawns them.
func (m *Master) ScopeLoaded(scope event.Scope) {
	scope.Name = NormalizeScope(scope.Name)
	if _, ok := m.scopes[scope.Handle]; ok {
		return
	}
	st := &scopeState{scope: scope, id: scope.Name}
	if _, taken := m.scopeNames[scope.Name]; taken {
		st.id = m.freeScopeID(scope.Name)
		m.log.Info("duplicate scope loaded", zap.String("scope", scope.Name), zap.String("id", st.id))
	} else {
		m.scopeNames[scope.Name] = scope.Handle
	}
	m.scopes[scope.Handle] = st
	m.spawnSavedManager(st)
}

func (m *Master) freeScopeID(name string) string {
	for n := 2; ; n++ {
		id := fmt.Sprintf("%s-%d", name, n)
		if !m.scopeIDTaken(id) {
			return id
		}
	}
}

func (m *Master) scopeIDTaken(id string) bool {
	for _, st := range m.scopes {
		if st.id == id {
			return true
		}
	}
	return false
}

// ScopeUnloaded forgets a scope. Its InstanceManager saves one last time
// and is dropped.
func (m *Master) ScopeUnloaded(scope event.Scope) {
	st, ok := m.scopes[scope.Handle]
	if !ok {
		return
	}
	delete(m.scopes, scope.Handle)
	if m.scopeNames[st.scope.Name] == scope.Handle {
		delete(m.scopeNames, st.scope.Name)
	}
	if im, ok := m.managers[scope.Handle]; ok {
		m.RemoveListener(im.saveable, true)
		delete(m.managers, scope.Handle)
	}
}

// ScopeID returns the save id of a loaded scope.
func (m *Master) ScopeID(scope event.Scope) (string, bool) {
	st, ok := m.scopes[scope.Handle]
	if !ok {
		return "", false
	}
	return st.id, true
}

// DeactivatedExplicitly reports whether an entity torn down in scope is
// being destroyed on purpose rather than by a scope unload or quit.
func (m *Master) DeactivatedExplicitly(scope event.Scope) bool {
	_, loaded := m.scopes[scope.Handle]
	return loaded && !m.quitting
}

func instanceKey(scopeID string) string {
	return ComposeKey(instanceSaveablePrefix+scopeID, InstanceProviderID)
}

func (m *Master) spawnSavedManager(st *scopeState) {
	if m.active == nil {
		return
	}
	if _, ok := m.managers[st.scope.Handle]; ok {
		return
	}
	if _, ok := m.active.Get(instanceKey(st.id)); !ok {
		return
	}
	m.SpawnInstanceManager(st.scope, "")
}

// spawnSavedManagers creates managers for loaded scopes that have spawned
// instances in the newly activated slot.
func (m *Master) spawnSavedManagers() {
	for _, st := range m.scopes {
		m.spawnSavedManager(st)
	}
}

// SpawnInstanceManager returns the InstanceManager of scope, creating it if
// needed. A non-empty id replaces the automatic suffix of the scope's save
// id, which keeps duplicate scopes stable across runs.
func (m *Master) SpawnInstanceManager(scope event.Scope, id string) *InstanceManager {
	st, ok := m.scopes[scope.Handle]
	if !ok {
		m.log.Warn("instance manager requested for unknown scope", zap.String("scope", scope.Name), zap.Int("handle", scope.Handle))
		return nil
	}
	if im, ok := m.managers[scope.Handle]; ok {
		return im
	}
	if id != "" {
		st.id = st.scope.Name + "-" + id
	}

	im := newInstanceManager(m, st.scope, st.id)
	sv := NewSaveable(SaveableOptions{ID: instanceSaveablePrefix + st.id, Scope: st.scope.Name}, m.log)
	sv.RegisterProvider(InstanceProviderID, im, false)
	im.saveable = sv
	m.managers[scope.Handle] = im
	m.AddListener(sv, true)
	return im
}

// InstanceManager returns the manager of scope, if one exists.
func (m *Master) InstanceManager(scope event.Scope) (*InstanceManager, bool) {
	im, ok := m.managers[scope.Handle]
	return im, ok
}

// SpawnSavedPrefab spawns the template at path into scope and tracks it so
// it is recreated when the slot is loaded again.
func (m *Master) SpawnSavedPrefab(src data.Source, path string, scope event.Scope) (ecs.EntityID, bool) {
	if !m.requireActive("spawn saved prefab") {
		return 0, false
	}
	im := m.SpawnInstanceManager(scope, "")
	if im == nil {
		return 0, false
	}
	return im.SpawnObject(src, path, "")
}

func (m *Master) clearSavedPrefabs() {
	for _, im := range m.managers {
		im.DestroyAllObjects()
	}
}

// EntityCreated registers the Saveable of a new entity unless it is manual.
func (m *Master) EntityCreated(ev event.EntityCreated, sv *Saveable) {
	if sv == nil || sv.Manual() {
		return
	}
	m.AddListener(sv, true)
}

// EntityDestroying reacts to an entity teardown. A spawned instance that is
// destroyed explicitly has its data wiped and is not respawned. Any other
// registry saves one last time unless it is manual.
func (m *Master) EntityDestroying(ev event.EntityDestroying, sv *Saveable) {
	if im, ok := m.managers[ev.Scope.Handle]; ok && im.Tracks(ev.Entity) {
		if ev.Explicit && m.DeactivatedExplicitly(ev.Scope) {
			im.retire(ev.Entity)
			return
		}
		if sv == nil {
			sv = im.SaveableOf(ev.Entity)
		}
	}
	if sv == nil {
		return
	}
	m.RemoveListener(sv, !sv.Manual())
}
