package save

import (
	"go.uber.org/zap"
)

// KeySeparator joins a Saveable id and a provider sub-id.
const KeySeparator = "-"

// ComposeKey returns the store key for a provider of the Saveable id.
func ComposeKey(id, subID string) string {
	return id + KeySeparator + subID
}

// RegistryState is the lifecycle position of a Saveable.
type RegistryState int

const (
	StateUnregistered RegistryState = iota
	StateRegistered
	StateLoaded
	StateLoadedPermanently
)

func (s RegistryState) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateLoaded:
		return "loaded"
	case StateLoadedPermanently:
		return "loaded-permanently"
	default:
		return "unregistered"
	}
}

// StoreSource hands out the currently active store.
type StoreSource interface {
	ActiveStore() *Store
}

type providerSlot struct {
	subID string
	key   string
	p     Provider
	dead  bool
}

// SaveableOptions configures a new Saveable.
type SaveableOptions struct {
	ID    string
	Scope string
	// LoadOnce keeps the first loaded state for the rest of the run.
	LoadOnce bool
	// Manual registries are not registered with the Master automatically
	// and are not saved on teardown.
	Manual bool
}

// Saveable owns an identifier and fans save and load requests out to its
// providers under composed keys. Not safe for concurrent use.
type Saveable struct {
	id       string
	scope    string
	loadOnce bool
	manual   bool

	providers []providerSlot

	hasLoaded  bool
	stateReset bool
	listening  bool
	lastStore  *Store
	source     StoreSource

	log *zap.Logger
}

func NewSaveable(opts SaveableOptions, log *zap.Logger) *Saveable {
	if log == nil {
		log = zap.NewNop()
	}
	return &Saveable{
		id:       opts.ID,
		scope:    opts.Scope,
		loadOnce: opts.LoadOnce,
		manual:   opts.Manual,
		log:      log,
	}
}

func (s *Saveable) ID() string        { return s.id }
func (s *Saveable) Scope() string     { return s.scope }
func (s *Saveable) Manual() bool      { return s.manual }
func (s *Saveable) LoadOnce() bool    { return s.loadOnce }
func (s *Saveable) HasLoaded() bool   { return s.hasLoaded }
func (s *Saveable) Listening() bool   { return s.listening }
func (s *Saveable) Len() int          { return len(s.providers) }
func (s *Saveable) SetScope(v string) { s.scope = v }
func (s *Saveable) SetManual(v bool)  { s.manual = v }

// SetID changes the identifier and recomposes every provider key.
func (s *Saveable) SetID(id string) {
	s.id = id
	for i := range s.providers {
		s.providers[i].key = ComposeKey(id, s.providers[i].subID)
	}
}

// Keys returns the composed store keys of all live providers.
func (s *Saveable) Keys() []string {
	keys := make([]string, 0, len(s.providers))
	for _, ps := range s.providers {
		if !ps.dead {
			keys = append(keys, ps.key)
		}
	}
	return keys
}

// State reports where the Saveable is in its lifecycle. Manual Saveables
// are driven by their owner and count as registered.
func (s *Saveable) State() RegistryState {
	switch {
	case !s.listening && !s.manual:
		return StateUnregistered
	case s.hasLoaded && s.loadOnce:
		return StateLoadedPermanently
	case s.hasLoaded:
		return StateLoaded
	default:
		return StateRegistered
	}
}

// RegisterProvider appends p under subID. With reload set, p is loaded from
// the active store right away.
func (s *Saveable) RegisterProvider(subID string, p Provider, reload bool) {
	if p == nil {
		s.log.Warn("nil provider ignored", zap.String("id", s.id), zap.String("sub_id", subID))
		return
	}
	for _, ps := range s.providers {
		if ps.subID == subID && !ps.dead {
			s.log.Warn("duplicate provider sub id", zap.String("id", s.id), zap.String("sub_id", subID))
			break
		}
	}
	s.providers = append(s.providers, providerSlot{subID: subID, key: ComposeKey(s.id, subID), p: p})
	if !reload {
		return
	}
	if s.source == nil {
		return
	}
	store := s.source.ActiveStore()
	if store == nil || s.id == "" {
		return
	}
	s.loadProvider(&s.providers[len(s.providers)-1], store)
}

// RequestSave writes every provider with changes into store and returns the
// number of payloads written. After a ResetState all providers are written.
func (s *Saveable) RequestSave(store *Store) int {
	if s.id == "" {
		s.log.Warn("saveable has no id, save skipped")
		return 0
	}
	if store == nil {
		s.log.Warn("no store to save into", zap.String("id", s.id))
		return 0
	}
	s.lastStore = store

	written := 0
	pruned := false
	for i := range s.providers {
		ps := &s.providers[i]
		if !alive(ps.p) {
			ps.dead = true
			pruned = true
			continue
		}
		if !s.stateReset && !ps.p.HasChanges() {
			continue
		}
		payload, err := ps.p.Save()
		if err != nil {
			s.log.Warn("provider save failed", zap.String("key", ps.key), zap.Error(err))
			continue
		}
		if payload == "" {
			continue
		}
		store.Set(ps.key, payload, s.scope)
		written++
	}
	s.stateReset = false
	if pruned {
		s.compact()
	}
	return written
}

// RequestLoad feeds stored payloads to the providers. Providers without a
// stored payload keep their current state.
func (s *Saveable) RequestLoad(store *Store) {
	if s.id == "" {
		s.log.Warn("saveable has no id, load skipped")
		return
	}
	if store == nil {
		s.log.Warn("no store to load from", zap.String("id", s.id))
		return
	}
	if store != s.lastStore {
		if s.lastStore != nil {
			s.hasLoaded = false
		}
		s.lastStore = store
	}
	if s.loadOnce && s.hasLoaded {
		return
	}

	pruned := false
	for i := range s.providers {
		ps := &s.providers[i]
		if !alive(ps.p) {
			ps.dead = true
			pruned = true
			continue
		}
		s.loadProvider(ps, store)
	}
	s.hasLoaded = true
	if pruned {
		s.compact()
	}
}

func (s *Saveable) loadProvider(ps *providerSlot, store *Store) {
	payload, ok := store.Get(ps.key)
	if !ok {
		return
	}
	if err := ps.p.Load(payload); err != nil {
		s.log.Warn("provider load failed", zap.String("key", ps.key), zap.Error(err))
	}
}

// ResetState forgets the previous load and forces the next save to write
// every provider.
func (s *Saveable) ResetState() {
	s.hasLoaded = false
	s.stateReset = true
}

// WipeData removes this Saveable's entries from store and switches it to
// manual mode so teardown does not write them back.
func (s *Saveable) WipeData(store *Store) {
	if store == nil {
		return
	}
	for _, ps := range s.providers {
		if !store.Remove(ps.key) {
			s.log.Debug("wipe of unknown key", zap.String("key", ps.key))
		}
	}
	s.manual = true
}

func (s *Saveable) compact() {
	live := s.providers[:0]
	for _, ps := range s.providers {
		if ps.dead {
			s.log.Debug("provider pruned", zap.String("key", ps.key))
			continue
		}
		live = append(live, ps)
	}
	for i := len(live); i < len(s.providers); i++ {
		s.providers[i] = providerSlot{}
	}
	s.providers = live
}
