package save

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/savemaster/internal/config"
	"github.com/l1jgo/savemaster/internal/core/event"
)

// LastUsedSlotKey is the prefs key remembering the most recent slot.
const LastUsedSlotKey = "SM-LastUsedSlot"

const defaultIOTimeout = 5 * time.Second

// Master owns the active slot and the registries listening to it.
//
// All methods must be called from the game loop goroutine. Calling SetSlot
// from inside a provider callback is not supported; such calls are ignored
// with a warning.
type Master struct {
	cfg       config.SlotConfig
	storage   SlotStorage
	prefs     Prefs
	bus       *event.Bus
	resolver  Resolver
	spawner   Spawner
	ioTimeout time.Duration
	log       *zap.Logger

	activeSlot int
	active     *Store
	saveables  []*Saveable

	scopes     map[int]*scopeState
	scopeNames map[string]int
	managers   map[int]*InstanceManager

	playTimer *playTimer
	switching bool
	quitting  bool
}

func newMaster(opts Options) *Master {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	slots := opts.Slots
	if slots.MaxSlots <= 0 {
		slots = config.Default().Slots
	}
	if slots.PlayTimeInterval <= 0 {
		slots.PlayTimeInterval = time.Second
	}
	timeout := opts.IOTimeout
	if timeout <= 0 {
		timeout = defaultIOTimeout
	}
	prefs := opts.Prefs
	if prefs == nil {
		prefs = noPrefs{}
	}
	return &Master{
		cfg:        slots,
		storage:    opts.Storage,
		prefs:      prefs,
		bus:        opts.Bus,
		resolver:   opts.Resolver,
		spawner:    opts.Spawner,
		ioTimeout:  timeout,
		log:        log,
		activeSlot: -1,
		scopes:     make(map[int]*scopeState),
		scopeNames: make(map[string]int),
		managers:   make(map[int]*InstanceManager),
	}
}

type noPrefs struct{}

func (noPrefs) GetInt(_ string, def int) int { return def }
func (noPrefs) SetInt(string, int)           {}

func (m *Master) ioContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.ioTimeout)
}

// ActiveSlot returns the active slot index, or -1 when none is active.
func (m *Master) ActiveSlot() int { return m.activeSlot }

// ActiveStore implements StoreSource.
func (m *Master) ActiveStore() *Store { return m.active }

func (m *Master) HasActiveSave() bool { return m.active != nil }

// Listeners returns the number of registered Saveables.
func (m *Master) Listeners() int { return len(m.saveables) }

func (m *Master) requireActive(action string) bool {
	if m.active == nil {
		m.log.Warn("no active save slot", zap.String("action", action))
		return false
	}
	return true
}

// Start activates the default slot when configured to.
func (m *Master) Start() {
	if m.cfg.LoadDefaultSlotOnStart {
		m.SetSlot(m.cfg.DefaultSlot, true, nil)
	}
}

// Close stops the play-time timer.
func (m *Master) Close() {
	m.playTimer.stop()
	m.playTimer = nil
}

// Quit writes the active slot when auto_save_on_exit is set. Entities torn
// down afterwards are no longer treated as explicitly destroyed.
func (m *Master) Quit() {
	m.quitting = true
	if m.cfg.AutoSaveOnExit {
		if err := m.WriteActiveSaveToDisk(); err != nil {
			m.log.Error("write on quit failed", zap.Error(err))
		}
	}
}

// Pause writes the active slot when auto_save_on_exit is set.
func (m *Master) Pause() {
	if m.cfg.AutoSaveOnExit {
		if err := m.WriteActiveSaveToDisk(); err != nil {
			m.log.Error("write on pause failed", zap.Error(err))
		}
	}
}

// SetSlot makes slot the active slot. The previous slot is written first
// when auto_save_on_slot_switch is set. With notify, every listener loads
// from the new store. An explicit store replaces whatever is on disk.
func (m *Master) SetSlot(slot int, notify bool, explicit *Store) {
	if slot < 0 || slot > m.cfg.MaxSlots {
		m.log.Warn("illegal slot", zap.Int("slot", slot), zap.Int("max", m.cfg.MaxSlots))
		return
	}
	if slot == m.activeSlot && explicit == nil {
		m.log.Warn("slot already active", zap.Int("slot", slot))
		return
	}
	if m.switching {
		m.log.Warn("slot switch already in progress", zap.Int("slot", slot))
		return
	}
	m.switching = true
	defer func() { m.switching = false }()

	if m.cfg.AutoSaveOnSlotSwitch && m.active != nil {
		if err := m.WriteActiveSaveToDisk(); err != nil {
			m.log.Error("write before slot switch failed", zap.Int("slot", m.activeSlot), zap.Error(err))
		}
	}
	if m.cfg.CleanSavedPrefabsOnSlotSwitch {
		m.clearSavedPrefabs()
	}

	event.Publish(m.bus, event.SlotChangeBegin{Slot: slot})

	store := explicit
	if store == nil {
		ctx, cancel := m.ioContext()
		store = m.storage.LoadSave(ctx, slot, true)
		cancel()
	}
	if store == nil {
		m.log.Error("could not load or create slot", zap.Int("slot", slot))
		event.Publish(m.bus, event.SlotChangeDone{Slot: slot})
		return
	}

	m.activeSlot = slot
	m.active = store
	m.restartPlayTimer()

	if notify {
		m.SyncLoad()
	}
	m.SyncReset()
	m.spawnSavedManagers()

	m.prefs.SetInt(LastUsedSlotKey, slot)
	m.log.Info("slot active", zap.Int("slot", slot), zap.Int("entries", store.Len()))
	event.Publish(m.bus, event.SlotChangeDone{Slot: slot})
}

// SetSlotToLastUsedSlot activates the slot recorded in prefs. It reports
// false when no slot was recorded.
func (m *Master) SetSlotToLastUsedSlot(notify bool) bool {
	slot := m.prefs.GetInt(LastUsedSlotKey, -1)
	if slot == -1 {
		return false
	}
	m.SetSlot(slot, notify, nil)
	return true
}

// SetSlotToNewSlot activates the first unused slot.
func (m *Master) SetSlotToNewSlot(notify bool) (int, bool) {
	slot, ok := m.AvailableSlot()
	if !ok {
		return -1, false
	}
	m.SetSlot(slot, notify, nil)
	return slot, true
}

// SetSlotAndCopyActiveSave switches to slot without writing the previous
// one and saves the current state of every listener into it.
func (m *Master) SetSlotAndCopyActiveSave(slot int) {
	if slot < 0 || slot > m.cfg.MaxSlots {
		m.log.Warn("illegal slot", zap.Int("slot", slot))
		return
	}
	event.Publish(m.bus, event.SlotChangeBegin{Slot: slot})

	ctx, cancel := m.ioContext()
	store := m.storage.LoadSave(ctx, slot, true)
	cancel()
	if store == nil {
		m.log.Error("could not load or create slot", zap.Int("slot", slot))
		event.Publish(m.bus, event.SlotChangeDone{Slot: slot})
		return
	}
	m.activeSlot = slot
	m.active = store
	m.restartPlayTimer()

	for _, im := range m.managers {
		im.changes++
	}
	m.SyncReset()
	m.SyncSave()

	m.prefs.SetInt(LastUsedSlotKey, slot)
	event.Publish(m.bus, event.SlotChangeDone{Slot: slot})
}

// ClearSlot leaves the active slot without writing it.
func (m *Master) ClearSlot(clearListeners, notifySave bool) {
	if clearListeners {
		m.ClearListeners(notifySave)
	}
	m.playTimer.stop()
	m.playTimer = nil
	m.activeSlot = -1
	m.active = nil
}

func (m *Master) restartPlayTimer() {
	m.playTimer.stop()
	m.playTimer = nil
	if m.cfg.TrackTimePlayed && m.active != nil {
		m.playTimer = startPlayTimer(m.active, m.cfg.PlayTimeInterval)
	}
}

// listenersSnapshot lets listeners register or unregister others while a
// broadcast is running.
func (m *Master) listenersSnapshot() []*Saveable {
	return append([]*Saveable(nil), m.saveables...)
}

// SyncSave asks every listener to save into the active store.
func (m *Master) SyncSave() {
	if !m.requireActive("sync save") {
		return
	}
	for _, sv := range m.listenersSnapshot() {
		if sv.listening {
			sv.RequestSave(m.active)
		}
	}
}

// SyncLoad asks every listener to load from the active store.
func (m *Master) SyncLoad() {
	if !m.requireActive("sync load") {
		return
	}
	for _, sv := range m.listenersSnapshot() {
		if sv.listening {
			sv.RequestLoad(m.active)
		}
	}
}

// SyncReset resets every listener as if it never loaded or saved.
func (m *Master) SyncReset() {
	if !m.requireActive("sync reset") {
		return
	}
	for _, sv := range m.saveables {
		sv.ResetState()
	}
}

// WriteActiveSaveToDisk saves every listener and writes the active store.
func (m *Master) WriteActiveSaveToDisk() error {
	slot := m.activeSlot
	event.Publish(m.bus, event.WriteBegin{Slot: slot})
	if m.active == nil {
		m.log.Info("no save loaded, nothing to write")
		event.Publish(m.bus, event.WriteDone{Slot: slot})
		return nil
	}
	m.SyncSave()

	ctx, cancel := m.ioContext()
	defer cancel()
	err := m.storage.WriteSave(ctx, m.active, slot)
	if err != nil {
		m.log.Error("write save failed", zap.Int("slot", slot), zap.Error(err))
	}
	event.Publish(m.bus, event.WriteDone{Slot: slot, Err: err})
	return err
}

// WriteActiveSaveToDiskAsync saves every listener, encodes the store on the
// caller's goroutine and writes it in the background. Writes to the same
// slot are serialized by the storage layer.
func (m *Master) WriteActiveSaveToDiskAsync() <-chan error {
	out := make(chan error, 1)
	if m.active == nil {
		m.log.Info("no save loaded, nothing to write")
		out <- nil
		close(out)
		return out
	}
	m.SyncSave()

	slot := m.activeSlot
	ctx, cancel := m.ioContext()
	res := m.storage.WriteSaveAsync(ctx, m.active, slot)
	log := m.log
	go func() {
		defer cancel()
		defer close(out)
		err := <-res
		if err != nil {
			log.Error("async write failed", zap.Int("slot", slot), zap.Error(err))
		}
		out <- err
	}()
	return out
}

// DeleteSave removes the slot from storage. Deleting the active slot
// leaves no slot active; listeners stay registered but forget their
// loaded state.
func (m *Master) DeleteSave(slot int) {
	ctx, cancel := m.ioContext()
	err := m.storage.DeleteSave(ctx, slot)
	cancel()
	if err != nil {
		m.log.Error("delete save failed", zap.Int("slot", slot), zap.Error(err))
	}
	if slot != m.activeSlot {
		return
	}
	m.playTimer.stop()
	m.playTimer = nil
	m.activeSlot = -1
	m.active = nil
	for _, sv := range m.saveables {
		sv.ResetState()
	}
}

// DeleteActiveSave deletes the active slot.
func (m *Master) DeleteActiveSave() {
	if !m.requireActive("delete active save") {
		return
	}
	m.DeleteSave(m.activeSlot)
}

// WipeSaveable erases the stored data of sv and unregisters it without a
// final save.
func (m *Master) WipeSaveable(sv *Saveable) {
	if sv == nil || !m.requireActive("wipe saveable") {
		return
	}
	sv.WipeData(m.active)
	m.RemoveListener(sv, false)
}

// WipeSceneData removes every entry tagged with scope. With
// clearSaveables, listeners in that scope are wiped too so they do not
// write their data back on teardown. It returns the number of entries
// removed from the store by the scope sweep.
func (m *Master) WipeSceneData(scope string, clearSaveables bool) int {
	if !m.requireActive("wipe scene data") {
		return 0
	}
	scope = NormalizeScope(scope)
	if clearSaveables {
		for i := len(m.saveables) - 1; i >= 0; i-- {
			if i >= len(m.saveables) {
				continue
			}
			if sv := m.saveables[i]; sv.Scope() == scope {
				m.WipeSaveable(sv)
			}
		}
	}
	return m.active.WipeScope(scope)
}

// AddListener registers sv. With load set and a slot active, sv loads
// immediately.
func (m *Master) AddListener(sv *Saveable, load bool) {
	if sv == nil {
		return
	}
	if sv.listening {
		m.log.Debug("saveable already listening", zap.String("id", sv.ID()))
		return
	}
	sv.source = m
	sv.listening = true
	m.saveables = append(m.saveables, sv)
	if load && m.active != nil {
		sv.RequestLoad(m.active)
	}
}

// RemoveListener unregisters sv. With save set and a slot active, sv saves
// one last time.
func (m *Master) RemoveListener(sv *Saveable, save bool) {
	if sv == nil {
		return
	}
	for i, s := range m.saveables {
		if s != sv {
			continue
		}
		m.saveables = append(m.saveables[:i], m.saveables[i+1:]...)
		sv.listening = false
		if save && m.active != nil {
			sv.RequestSave(m.active)
		}
		return
	}
}

// ClearListeners unregisters everything, saving each listener first when
// notifySave is set.
func (m *Master) ClearListeners(notifySave bool) {
	if notifySave && m.active != nil {
		for i := len(m.saveables) - 1; i >= 0; i-- {
			m.saveables[i].RequestSave(m.active)
		}
	}
	for _, sv := range m.saveables {
		sv.listening = false
	}
	m.saveables = nil
}

// ReloadListener loads sv again, for registries that gained providers.
func (m *Master) ReloadListener(sv *Saveable) {
	if sv == nil || !m.requireActive("reload listener") {
		return
	}
	sv.RequestLoad(m.active)
}

// UsedSlots lists the slots that have data in storage.
func (m *Master) UsedSlots() []int {
	ctx, cancel := m.ioContext()
	defer cancel()
	return m.storage.UsedSlots(ctx)
}

func (m *Master) IsSlotUsed(slot int) bool {
	ctx, cancel := m.ioContext()
	defer cancel()
	return m.storage.IsSlotUsed(ctx, slot)
}

// AvailableSlot returns the lowest slot below max_slots with no data.
func (m *Master) AvailableSlot() (int, bool) {
	used := make(map[int]bool)
	for _, s := range m.UsedSlots() {
		used[s] = true
	}
	for i := 0; i < m.cfg.MaxSlots; i++ {
		if !used[i] {
			return i, true
		}
	}
	return -1, false
}

func (m *Master) HasUnusedSlots() bool {
	_, ok := m.AvailableSlot()
	return ok
}
