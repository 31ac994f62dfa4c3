package save

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l1jgo/savemaster/internal/config"
	"github.com/l1jgo/savemaster/internal/core/event"
)

func TestBuilder_SingleInstance(t *testing.T) {
	var b Builder
	assert.Nil(t, b.Master())
	first := b.Build(Options{Storage: newMemStorage()})
	second := b.Build(Options{Storage: newMemStorage()})
	assert.Same(t, first, second)
	assert.Same(t, first, b.Master())
	assert.Equal(t, -1, first.ActiveSlot())
}

func TestMaster_NewSlotCreation(t *testing.T) {
	env := newTestEnv(t)
	m := env.master
	assert.False(t, m.IsSlotUsed(5))

	m.SetSlot(5, true, nil)
	assert.Equal(t, 5, m.ActiveSlot())
	require.NotNil(t, m.ActiveStore())
	assert.Equal(t, 0, m.ActiveStore().Len())
	assert.True(t, m.IsSlotUsed(5), "new slot is written immediately")
	assert.Equal(t, 5, env.prefs[LastUsedSlotKey])
}

func TestMaster_SetSlotGuards(t *testing.T) {
	env := newTestEnv(t, func(c *config.SlotConfig) { c.MaxSlots = 10 })
	m := env.master

	m.SetSlot(-1, true, nil)
	m.SetSlot(11, true, nil)
	assert.Equal(t, 2, env.warnings("illegal slot"))
	assert.Equal(t, -1, m.ActiveSlot())
	assert.Empty(t, m.UsedSlots())

	m.SetSlot(10, true, nil)
	assert.Equal(t, 10, m.ActiveSlot(), "upper bound is inclusive")

	writes := env.storage.writes
	m.SetSlot(10, true, nil)
	assert.Equal(t, 1, env.warnings("slot already active"))
	assert.Equal(t, writes, env.storage.writes)

	explicit := NewStore(9)
	m.SetSlot(10, false, explicit)
	assert.Same(t, explicit, m.ActiveStore())
}

func TestMaster_SlotIsolation(t *testing.T) {
	env := newTestEnv(t)
	m := env.master
	p := &fakeProvider{value: "A-state", changed: true}
	sv := NewSaveable(SaveableOptions{ID: "hero"}, nil)
	sv.RegisterProvider("hp", p, false)
	m.AddListener(sv, false)

	m.SetSlot(1, true, nil)
	m.SyncSave()
	m.SetInt("gold", 100)

	m.SetSlot(2, true, nil) // writes slot 1
	_, ok := m.ActiveStore().Get("hero-hp")
	assert.False(t, ok, "slot 1 data is not visible in slot 2")
	assert.Equal(t, -1, m.GetInt("gold", -1))
	assert.Equal(t, "A-state", p.value, "missing entries leave the provider alone")

	p.value = "B-state"
	m.SetInt("gold", 5)

	m.SetSlot(1, true, nil) // writes slot 2
	assert.Equal(t, "A-state", p.value)
	assert.Equal(t, 100, m.GetInt("gold", -1))

	m.SetSlot(2, true, nil)
	assert.Equal(t, "B-state", p.value)
	assert.Equal(t, 5, m.GetInt("gold", -1))
}

func TestMaster_NoAutoSaveOnSwitch(t *testing.T) {
	env := newTestEnv(t, func(c *config.SlotConfig) { c.AutoSaveOnSlotSwitch = false })
	m := env.master
	m.SetSlot(1, true, nil)
	m.SetInt("gold", 1)
	m.SetSlot(2, true, nil)
	_, ok := m.SaveablePayload(1, "IVar", "gold")
	assert.False(t, ok, "slot 1 was not written on switch")
}

func TestMaster_RequiresActiveSlot(t *testing.T) {
	env := newTestEnv(t)
	m := env.master

	m.SyncSave()
	m.SyncLoad()
	m.SetInt("x", 1)
	assert.Equal(t, 7, m.GetInt("x", 7))
	assert.Equal(t, "d", m.GetString("x", "d"))
	assert.Equal(t, 0, m.WipeSceneData("Town", true))
	require.NoError(t, m.WriteActiveSaveToDisk())
	assert.Equal(t, 6, env.warnings("no active save slot"))
}

func TestMaster_Scalars(t *testing.T) {
	env := newTestEnv(t)
	m := env.master
	m.SetSlot(0, true, nil)

	m.SetInt("gold", 42)
	m.SetFloat("speed", 1.25)
	m.SetString("name", "Kent")
	m.SetBool("tutorial", true)

	assert.Equal(t, 42, m.GetInt("gold", 0))
	assert.Equal(t, 1.25, m.GetFloat("speed", 0))
	assert.Equal(t, "Kent", m.GetString("name", ""))
	assert.True(t, m.GetBool("tutorial", false))
	assert.Equal(t, 3, m.GetInt("missing", 3))

	raw, ok := m.ActiveStore().Get("IVar-gold")
	require.True(t, ok)
	assert.Equal(t, "42", raw)
	// scalars live in the Global scope
	assert.Equal(t, 4, m.WipeSceneData(GlobalScope, false))

	m.ActiveStore().Set("IVar-bad", "forty", GlobalScope)
	assert.Equal(t, -1, m.GetInt("bad", -1))
	assert.Equal(t, 1, env.warnings("stored int unreadable"))
}

func TestMaster_AddRemoveListener(t *testing.T) {
	env := newTestEnv(t)
	m := env.master
	m.SetSlot(0, true, nil)
	m.ActiveStore().Set("npc-mood", "angry", "")

	p := &fakeProvider{value: "calm"}
	sv := NewSaveable(SaveableOptions{ID: "npc"}, nil)
	sv.RegisterProvider("mood", p, false)

	m.AddListener(sv, true)
	assert.Equal(t, "angry", p.value, "added while active loads immediately")
	m.AddListener(sv, true)
	assert.Equal(t, 1, m.Listeners(), "double add is ignored")

	p.value = "happy"
	p.changed = true
	m.RemoveListener(sv, true)
	got, _ := m.ActiveStore().Get("npc-mood")
	assert.Equal(t, "happy", got, "removal saves one last time")
	assert.Equal(t, 0, m.Listeners())

	m.AddListener(sv, false)
	p.value = "sad"
	m.RemoveListener(sv, false)
	got, _ = m.ActiveStore().Get("npc-mood")
	assert.Equal(t, "happy", got)
}

func TestMaster_ClearListeners(t *testing.T) {
	env := newTestEnv(t)
	m := env.master
	m.SetSlot(0, true, nil)

	a := NewSaveable(SaveableOptions{ID: "a"}, nil)
	pa := &fakeProvider{value: "1", changed: true}
	a.RegisterProvider("v", pa, false)
	b := NewSaveable(SaveableOptions{ID: "b"}, nil)
	b.RegisterProvider("v", &fakeProvider{value: "2", changed: true}, false)
	m.AddListener(a, false)
	m.AddListener(b, false)

	m.ClearListeners(true)
	assert.Equal(t, 0, m.Listeners())
	assert.False(t, a.Listening())
	assert.Equal(t, 2, m.ActiveStore().Len())
}

func TestMaster_WipeSaveableScenario(t *testing.T) {
	env := newTestEnv(t)
	m := env.master
	m.SetSlot(0, true, nil)

	p := &fakeProvider{value: "looted", changed: true}
	sv := NewSaveable(SaveableOptions{ID: "chest"}, nil)
	sv.RegisterProvider("items", p, false)
	m.AddListener(sv, false)
	m.SyncSave()

	m.WipeSaveable(sv)
	assert.False(t, sv.Listening())

	fresh := &fakeProvider{value: "full"}
	again := NewSaveable(SaveableOptions{ID: "chest"}, nil)
	again.RegisterProvider("items", fresh, false)
	again.RequestLoad(m.ActiveStore())
	assert.Equal(t, "full", fresh.value)
}

func TestMaster_WipeSceneData(t *testing.T) {
	env := newTestEnv(t)
	m := env.master
	m.SetSlot(0, true, nil)

	inTown := NewSaveable(SaveableOptions{ID: "well", Scope: "Town"}, nil)
	inTown.RegisterProvider("water", &fakeProvider{value: "full", changed: true}, false)
	inCave := NewSaveable(SaveableOptions{ID: "bat", Scope: "Cave"}, nil)
	inCave.RegisterProvider("hp", &fakeProvider{value: "3", changed: true}, false)
	m.AddListener(inTown, false)
	m.AddListener(inCave, false)
	m.SyncSave()
	m.ActiveStore().Set("orphan", "x", "Town")

	assert.Equal(t, 1, m.WipeSceneData("Town", true))
	assert.False(t, inTown.Listening())
	assert.True(t, inCave.Listening())
	_, ok := m.ActiveStore().Get("well-water")
	assert.False(t, ok)
	_, ok = m.ActiveStore().Get("bat-hp")
	assert.True(t, ok)
}

func TestMaster_DeleteSave(t *testing.T) {
	env := newTestEnv(t)
	m := env.master
	m.SetSlot(0, true, nil)
	m.SetSlot(3, true, nil)

	sv := NewSaveable(SaveableOptions{ID: "x"}, nil)
	sv.RegisterProvider("p", &fakeProvider{}, false)
	m.AddListener(sv, true)

	m.DeleteSave(0)
	assert.False(t, m.IsSlotUsed(0))
	assert.Equal(t, 3, m.ActiveSlot())

	m.DeleteActiveSave()
	assert.False(t, m.IsSlotUsed(3))
	assert.Equal(t, -1, m.ActiveSlot())
	assert.Nil(t, m.ActiveStore())
	assert.Equal(t, 1, m.Listeners(), "listeners stay registered")
	assert.False(t, sv.HasLoaded())
}

func TestMaster_CorruptSlotIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	env.storage.slots[4] = []byte{}
	env.storage.slots[6] = []byte("{garbage")

	assert.Equal(t, -1, env.master.SaveVersion(4))
	env.master.SetSlot(6, true, nil)
	assert.Equal(t, 6, env.master.ActiveSlot())
	assert.Equal(t, 0, env.master.ActiveStore().Len())
	assert.True(t, env.master.IsSlotUsed(6))
}

func TestMaster_LastUsedAndNewSlot(t *testing.T) {
	env := newTestEnv(t, func(c *config.SlotConfig) { c.MaxSlots = 3 })
	m := env.master
	assert.False(t, m.SetSlotToLastUsedSlot(true))

	slot, ok := m.SetSlotToNewSlot(true)
	require.True(t, ok)
	assert.Equal(t, 0, slot)
	slot, _ = m.SetSlotToNewSlot(true)
	assert.Equal(t, 1, slot)
	slot, _ = m.SetSlotToNewSlot(true)
	assert.Equal(t, 2, slot)
	assert.False(t, m.HasUnusedSlots())
	_, ok = m.SetSlotToNewSlot(true)
	assert.False(t, ok)

	env2 := env.restart(t)
	assert.True(t, env2.master.SetSlotToLastUsedSlot(true))
	assert.Equal(t, 2, env2.master.ActiveSlot())
}

func TestMaster_SetSlotAndCopyActiveSave(t *testing.T) {
	env := newTestEnv(t)
	m := env.master
	m.SetSlot(0, true, nil)
	sv := NewSaveable(SaveableOptions{ID: "hero"}, nil)
	sv.RegisterProvider("lvl", &fakeProvider{value: "12"}, false)
	m.AddListener(sv, true)

	m.SetSlotAndCopyActiveSave(8)
	assert.Equal(t, 8, m.ActiveSlot())
	got, ok := m.ActiveStore().Get("hero-lvl")
	require.True(t, ok)
	assert.Equal(t, "12", got)
	assert.Equal(t, -1, m.SaveVersion(9))
}

func TestMaster_SlotMetadataQueries(t *testing.T) {
	env := newTestEnv(t)
	m := env.master
	m.SetSlot(1, true, nil)
	m.ActiveStore().AddPlayTime(time.Hour)
	require.NoError(t, m.WriteActiveSaveToDisk())
	m.SetSlot(2, true, nil)

	assert.Equal(t, time.Hour, m.SaveTimePlayed(1))
	assert.False(t, m.SaveCreationTime(1).IsZero())
	assert.Equal(t, 1, m.SaveVersion(1))
	assert.True(t, m.SaveCreationTime(7).IsZero())
	assert.Equal(t, time.Duration(0), m.SaveTimePlayed(7))
}

type heroStats struct {
	Level int    `json:"level"`
	Class string `json:"class"`
}

func TestGetSaveableData(t *testing.T) {
	env := newTestEnv(t)
	m := env.master
	m.SetSlot(1, true, nil)
	m.ActiveStore().Set("hero-stats", `{"level":12,"class":"knight"}`, "")
	m.ActiveStore().Set("hero-broken", `{"level":`, "")
	m.SetSlot(2, true, nil)

	stats, ok := GetSaveableData[heroStats](m, 1, "hero", "stats")
	require.True(t, ok)
	assert.Equal(t, heroStats{Level: 12, Class: "knight"}, stats)
	assert.Equal(t, 2, m.ActiveSlot(), "inspection does not switch slots")

	_, ok = GetSaveableData[heroStats](m, 1, "hero", "broken")
	assert.False(t, ok)
	_, ok = GetSaveableData[heroStats](m, 1, "hero", "missing")
	assert.False(t, ok)
	_, ok = GetSaveableData[heroStats](m, 9, "hero", "stats")
	assert.False(t, ok)
}

func TestMaster_PublishesSlotEvents(t *testing.T) {
	env := newTestEnv(t)
	var got []string
	event.Subscribe(env.bus, func(e event.SlotChangeBegin) { got = append(got, "begin") })
	event.Subscribe(env.bus, func(e event.SlotChangeDone) { got = append(got, "done") })
	event.Subscribe(env.bus, func(e event.WriteBegin) { got = append(got, "write") })
	event.Subscribe(env.bus, func(e event.WriteDone) { got = append(got, "written") })

	env.master.SetSlot(0, true, nil)
	env.master.SetSlot(1, true, nil)
	assert.Equal(t, []string{"begin", "done", "write", "written", "begin", "done"}, got)
}

func TestMaster_WriteAsync(t *testing.T) {
	env := newTestEnv(t)
	m := env.master
	m.SetSlot(0, true, nil)
	m.SetInt("gold", 9)

	require.NoError(t, <-m.WriteActiveSaveToDiskAsync())
	m.ClearSlot(true, false)
	m.SetSlot(0, true, nil)
	assert.Equal(t, 9, m.GetInt("gold", 0))

	m.ClearSlot(false, false)
	assert.NoError(t, <-m.WriteActiveSaveToDiskAsync())
}

func TestMaster_PlayTimeTimer(t *testing.T) {
	env := newTestEnv(t, func(c *config.SlotConfig) {
		c.TrackTimePlayed = true
		c.PlayTimeInterval = 5 * time.Millisecond
	})
	m := env.master
	m.SetSlot(0, true, nil)
	store := m.ActiveStore()
	require.Eventually(t, func() bool { return store.PlayTime() >= 20*time.Millisecond }, time.Second, 5*time.Millisecond)

	m.ClearSlot(false, false)
	stopped := store.PlayTime()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, store.PlayTime(), "timer stops with the slot")
}

func TestMaster_StartLoadsDefaultSlot(t *testing.T) {
	env := newTestEnv(t, func(c *config.SlotConfig) {
		c.LoadDefaultSlotOnStart = true
		c.DefaultSlot = 2
	})
	env.master.Start()
	assert.Equal(t, 2, env.master.ActiveSlot())
}

func TestMaster_QuitWritesWhenConfigured(t *testing.T) {
	env := newTestEnv(t)
	env.master.SetSlot(0, true, nil)
	env.master.SetInt("x", 1)
	writes := env.storage.writes
	env.master.Pause()
	env.master.Quit()
	assert.Equal(t, writes+2, env.storage.writes)

	off := newTestEnv(t, func(c *config.SlotConfig) { c.AutoSaveOnExit = false })
	off.master.SetSlot(0, true, nil)
	writes = off.storage.writes
	off.master.Quit()
	assert.Equal(t, writes, off.storage.writes)
}

// SetSlot from inside a load callback is ignored.
type reentrantProvider struct {
	m *Master
}

func (p *reentrantProvider) Save() (string, error) { return "", nil }
func (p *reentrantProvider) HasChanges() bool      { return false }
func (p *reentrantProvider) Load(string) error {
	p.m.SetSlot(9, true, nil)
	return nil
}

func TestMaster_ReentrantSetSlotIgnored(t *testing.T) {
	env := newTestEnv(t)
	m := env.master
	m.SetSlot(0, true, nil)
	m.ActiveStore().Set("trap-p", "x", "")
	require.NoError(t, m.WriteActiveSaveToDisk())
	m.SetSlot(1, true, nil)

	sv := NewSaveable(SaveableOptions{ID: "trap"}, nil)
	sv.RegisterProvider("p", &reentrantProvider{m: m}, false)
	m.AddListener(sv, false)

	m.SetSlot(0, true, nil)
	assert.Equal(t, 0, m.ActiveSlot())
	assert.Equal(t, 1, env.warnings("slot switch already in progress"))
}

func TestMaster_DuplicateScopes(t *testing.T) {
	env := newTestEnv(t)
	m := env.master
	a := event.Scope{Handle: 1, Name: "Arena"}
	b := event.Scope{Handle: 2, Name: "Arena"}
	c := event.Scope{Handle: 3, Name: "Arena"}
	m.ScopeLoaded(a)
	m.ScopeLoaded(b)
	m.ScopeLoaded(c)

	id, _ := m.ScopeID(a)
	assert.Equal(t, "Arena", id)
	id, _ = m.ScopeID(b)
	assert.Equal(t, "Arena-2", id)
	id, _ = m.ScopeID(c)
	assert.Equal(t, "Arena-3", id)

	m.ScopeUnloaded(b)
	d := event.Scope{Handle: 4, Name: "Arena"}
	m.ScopeLoaded(d)
	id, _ = m.ScopeID(d)
	assert.Equal(t, "Arena-2", id, "freed suffix is reused")

	m.SetSlot(0, true, nil)
	im := m.SpawnInstanceManager(c, "east")
	require.NotNil(t, im)
	assert.Equal(t, "Arena-east", im.ScopeID())
	assert.Equal(t, "SaveMaster-Arena-east", im.Saveable().ID())

	assert.Nil(t, m.SpawnInstanceManager(event.Scope{Handle: 99, Name: "Nowhere"}, ""))
}

func TestMaster_ScopeUnloadSavesManager(t *testing.T) {
	env := activeEnv(t)
	m := env.master
	_, ok := m.SpawnSavedPrefab("resources", "Coin", town)
	require.True(t, ok)
	m.ScopeUnloaded(town)

	_, ok = m.InstanceManager(town)
	assert.False(t, ok)
	_, ok = m.ActiveStore().Get(instanceKey("Town"))
	assert.True(t, ok, "manager saved on unload")
	assert.False(t, m.DeactivatedExplicitly(town))
}

func TestMaster_EntityLifecycle(t *testing.T) {
	env := newTestEnv(t)
	m := env.master
	m.SetSlot(0, true, nil)
	m.ActiveStore().Set("lamp-on", "1", "")

	p := &fakeProvider{value: "0"}
	sv := NewSaveable(SaveableOptions{ID: "lamp", Scope: "Town"}, nil)
	sv.RegisterProvider("on", p, false)
	m.EntityCreated(event.EntityCreated{Scope: town}, sv)
	assert.Equal(t, "1", p.value)

	manual := NewSaveable(SaveableOptions{ID: "m", Manual: true}, nil)
	m.EntityCreated(event.EntityCreated{}, manual)
	assert.False(t, manual.Listening())

	p.value = "0"
	p.changed = true
	m.EntityDestroying(event.EntityDestroying{Scope: town}, sv)
	assert.False(t, sv.Listening())
	got, _ := m.ActiveStore().Get("lamp-on")
	assert.Equal(t, "0", got)
}
