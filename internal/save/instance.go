package save

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/l1jgo/savemaster/internal/core/ecs"
	"github.com/l1jgo/savemaster/internal/core/event"
	"github.com/l1jgo/savemaster/internal/data"
)

// InstanceProviderID is the sub-id an InstanceManager registers under.
const InstanceProviderID = "IM"

// SpawnRecord is what an InstanceManager persists per spawned entity.
type SpawnRecord struct {
	Source data.Source `json:"source"`
	Path   string      `json:"path"`
	ID     string      `json:"id"`
}

type instancePayload struct {
	Records    []json.RawMessage `json:"records"`
	SpawnCount int               `json:"spawn_count"`
}

// InstanceManager tracks entities spawned at runtime in one scope so they
// can be recreated on load. It is itself a Provider, registered on a
// Saveable with id "SaveMaster-<scope>".
type InstanceManager struct {
	master   *Master
	scope    event.Scope
	scopeID  string
	saveable *Saveable

	order     []ecs.EntityID
	instances map[ecs.EntityID]*Saveable
	records   map[ecs.EntityID]SpawnRecord
	loadedIDs map[string]struct{}

	spawnCount int
	changes    int

	log *zap.Logger
}

func newInstanceManager(m *Master, scope event.Scope, scopeID string) *InstanceManager {
	return &InstanceManager{
		master:    m,
		scope:     scope,
		scopeID:   scopeID,
		instances: make(map[ecs.EntityID]*Saveable),
		records:   make(map[ecs.EntityID]SpawnRecord),
		loadedIDs: make(map[string]struct{}),
		log:       m.log.With(zap.String("scope", scopeID)),
	}
}

// ScopeID is the disambiguated scope name used in instance ids.
func (im *InstanceManager) ScopeID() string { return im.scopeID }

func (im *InstanceManager) Scope() event.Scope { return im.scope }

// Saveable returns the registry the manager persists itself through.
func (im *InstanceManager) Saveable() *Saveable { return im.saveable }

// SpawnCount is the number of ids handed out so far.
func (im *InstanceManager) SpawnCount() int { return im.spawnCount }

// Instances returns the tracked entities in spawn order.
func (im *InstanceManager) Instances() []ecs.EntityID {
	return append([]ecs.EntityID(nil), im.order...)
}

// Tracks reports whether id was spawned by this manager and is still alive.
func (im *InstanceManager) Tracks(id ecs.EntityID) bool {
	_, ok := im.instances[id]
	return ok
}

// Record returns the spawn record of id, if it is persisted.
func (im *InstanceManager) Record(id ecs.EntityID) (SpawnRecord, bool) {
	r, ok := im.records[id]
	return r, ok
}

// SaveableOf returns the registry bound to a tracked entity.
func (im *InstanceManager) SaveableOf(id ecs.EntityID) *Saveable {
	return im.instances[id]
}

// SpawnObject instantiates the template at path. With an empty assignedID
// a new id "<scope>-<name>-<n>" is generated and the spawn is recorded so
// the entity is recreated on load. A non-empty assignedID is reused as is;
// an id that is already live is rejected.
func (im *InstanceManager) SpawnObject(src data.Source, path, assignedID string) (ecs.EntityID, bool) {
	if im.master.resolver == nil || im.master.spawner == nil {
		im.log.Warn("instance manager has no resolver or spawner")
		return 0, false
	}
	tpl, ok := im.master.resolver.Resolve(src, path)
	if !ok {
		im.log.Warn("invalid resource path", zap.String("source", string(src)), zap.String("path", path))
		return 0, false
	}
	if assignedID != "" {
		if _, dup := im.loadedIDs[assignedID]; dup {
			im.log.Warn("instance id already spawned", zap.String("id", assignedID))
			return 0, false
		}
	}

	id, sv := im.master.spawner.Spawn(tpl, im.scope)
	if sv == nil {
		im.log.Debug("template has no saveable, scanning providers", zap.String("template", tpl.Name))
		sv = NewSaveable(SaveableOptions{}, im.master.log)
		im.master.spawner.Scan(id, sv)
	}
	sv.SetScope(im.scope.Name)

	if assignedID == "" {
		assignedID = fmt.Sprintf("%s-%s-%d", im.scopeID, tpl.Name, im.spawnCount)
		im.spawnCount++
		im.records[id] = SpawnRecord{Source: src, Path: path, ID: assignedID}
		im.changes++
	}
	sv.SetID(assignedID)
	im.loadedIDs[assignedID] = struct{}{}
	im.instances[id] = sv
	im.order = append(im.order, id)

	if !sv.Manual() {
		im.master.AddListener(sv, true)
	}
	return id, true
}

// Save implements Provider. It returns an empty payload when nothing
// changed since the previous save.
func (im *InstanceManager) Save() (string, error) {
	if im.changes == 0 {
		return "", nil
	}
	out := instancePayload{SpawnCount: im.spawnCount, Records: make([]json.RawMessage, 0, len(im.records))}
	for _, id := range im.order {
		rec, ok := im.records[id]
		if !ok {
			continue
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return "", err
		}
		out.Records = append(out.Records, raw)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	im.changes = 0
	return string(b), nil
}

// Load implements Provider. Records whose id is already live are skipped.
// Parsing stops at the first unreadable record; earlier records are still
// respawned.
func (im *InstanceManager) Load(payload string) error {
	var in instancePayload
	if err := json.Unmarshal([]byte(payload), &in); err != nil {
		im.log.Warn("instance payload unreadable, nothing to respawn", zap.Error(err))
		return nil
	}

	recs := make([]SpawnRecord, 0, len(in.Records))
	for i, raw := range in.Records {
		var rec SpawnRecord
		if err := json.Unmarshal(raw, &rec); err != nil || rec.ID == "" || rec.Path == "" {
			im.log.Warn("corrupt spawn record, skipping the rest", zap.Int("index", i), zap.Int("total", len(in.Records)))
			break
		}
		recs = append(recs, rec)
	}

	for _, rec := range recs {
		if _, ok := im.loadedIDs[rec.ID]; ok {
			continue
		}
		id, ok := im.SpawnObject(rec.Source, rec.Path, rec.ID)
		if !ok {
			continue
		}
		im.records[id] = rec
	}

	count := in.SpawnCount
	if count == 0 && len(recs) > 0 {
		count = recoverSpawnCount(recs)
	}
	if count > im.spawnCount {
		im.spawnCount = count
	}
	return nil
}

// HasChanges implements Provider.
func (im *InstanceManager) HasChanges() bool {
	return im.changes > 0
}

// recoverSpawnCount derives the counter from the numeric id suffixes of
// payloads written before the counter was persisted.
func recoverSpawnCount(recs []SpawnRecord) int {
	next := 0
	for _, rec := range recs {
		i := strings.LastIndex(rec.ID, "-")
		if i < 0 {
			continue
		}
		n, err := strconv.Atoi(rec.ID[i+1:])
		if err != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return next
}

// DestroyObject stops tracking id. The entity itself is left alone.
func (im *InstanceManager) DestroyObject(id ecs.EntityID) {
	sv, ok := im.instances[id]
	if !ok {
		return
	}
	delete(im.instances, id)
	delete(im.loadedIDs, sv.ID())
	for i, o := range im.order {
		if o == id {
			im.order = append(im.order[:i], im.order[i+1:]...)
			break
		}
	}
	if _, ok := im.records[id]; ok {
		delete(im.records, id)
		im.changes++
	}
}

// Destroy erases a spawned entity for good: its data is wiped, it is no
// longer respawned on load and the entity is despawned.
func (im *InstanceManager) Destroy(id ecs.EntityID) {
	if !im.Tracks(id) {
		return
	}
	im.retire(id)
	im.master.spawner.Despawn(id)
}

// retire wipes and untracks an entity that is already being torn down.
func (im *InstanceManager) retire(id ecs.EntityID) {
	if sv := im.instances[id]; sv != nil {
		im.master.WipeSaveable(sv)
	}
	im.DestroyObject(id)
}

// DestroyAllObjects despawns every tracked entity without touching its
// saved data and resets the manager.
func (im *InstanceManager) DestroyAllObjects() {
	ids := im.order
	instances := im.instances

	im.order = nil
	im.instances = make(map[ecs.EntityID]*Saveable)
	im.records = make(map[ecs.EntityID]SpawnRecord)
	im.loadedIDs = make(map[string]struct{})
	im.spawnCount = 0

	for _, id := range ids {
		if sv := instances[id]; sv != nil {
			sv.SetManual(true)
			im.master.RemoveListener(sv, false)
		}
		im.master.spawner.Despawn(id)
	}
}
