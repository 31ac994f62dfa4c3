package save

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/l1jgo/savemaster/internal/config"
	"github.com/l1jgo/savemaster/internal/core/ecs"
	"github.com/l1jgo/savemaster/internal/core/event"
	"github.com/l1jgo/savemaster/internal/data"
)

// memStorage keeps encoded slots in memory so tests go through the real
// codec, the same way a process restart would.
type memStorage struct {
	mu     sync.Mutex
	slots  map[int][]byte
	writes int
}

func newMemStorage() *memStorage {
	return &memStorage{slots: make(map[int][]byte)}
}

func (s *memStorage) LoadSave(ctx context.Context, slot int, create bool) *Store {
	s.mu.Lock()
	raw, ok := s.slots[slot]
	s.mu.Unlock()
	if ok {
		if st, err := Decode(raw); err == nil {
			return st
		}
		s.mu.Lock()
		delete(s.slots, slot)
		s.mu.Unlock()
	}
	if !create {
		return nil
	}
	st := NewStore(1)
	if err := s.WriteSave(ctx, st, slot); err != nil {
		return nil
	}
	return st
}

func (s *memStorage) WriteSave(_ context.Context, st *Store, slot int) error {
	st.PrepareForWrite(time.Now())
	b, err := Encode(st, false)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot] = b
	s.writes++
	return nil
}

func (s *memStorage) WriteSaveAsync(_ context.Context, st *Store, slot int) <-chan error {
	out := make(chan error, 1)
	st.PrepareForWrite(time.Now())
	b, err := Encode(st, false)
	if err != nil {
		out <- err
		close(out)
		return out
	}
	go func() {
		defer close(out)
		s.mu.Lock()
		s.slots[slot] = b
		s.writes++
		s.mu.Unlock()
		out <- nil
	}()
	return out
}

func (s *memStorage) DeleteSave(_ context.Context, slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, slot)
	return nil
}

func (s *memStorage) UsedSlots(context.Context) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.slots))
	for k := range s.slots {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func (s *memStorage) IsSlotUsed(_ context.Context, slot int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.slots[slot]
	return ok
}

type memPrefs map[string]int

func (p memPrefs) GetInt(key string, def int) int {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

func (p memPrefs) SetInt(key string, v int) { p[key] = v }

// fakeProvider records calls and holds a single string value.
type fakeProvider struct {
	value   string
	changed bool
	dead    bool
	saves   int
	loads   int
	saveErr error
}

func (p *fakeProvider) Save() (string, error) {
	p.saves++
	if p.saveErr != nil {
		return "", p.saveErr
	}
	return p.value, nil
}

func (p *fakeProvider) Load(payload string) error {
	p.loads++
	p.value = payload
	return nil
}

func (p *fakeProvider) HasChanges() bool { return p.changed }
func (p *fakeProvider) Alive() bool      { return !p.dead }

// fakeSpawner hands out entity ids and attaches one fakeProvider per
// scanned entity.
type fakeSpawner struct {
	next      uint32
	live      map[ecs.EntityID]*Saveable
	state     map[ecs.EntityID]*fakeProvider
	despawned []ecs.EntityID
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{
		live:  make(map[ecs.EntityID]*Saveable),
		state: make(map[ecs.EntityID]*fakeProvider),
	}
}

func (s *fakeSpawner) Spawn(tpl *data.Template, _ event.Scope) (ecs.EntityID, *Saveable) {
	s.next++
	id := ecs.NewEntityID(s.next, 1)
	s.live[id] = nil
	if !tpl.Saveable {
		return id, nil
	}
	sv := NewSaveable(SaveableOptions{}, nil)
	p := &fakeProvider{value: "default"}
	sv.RegisterProvider("state", p, false)
	s.live[id] = sv
	s.state[id] = p
	return id, sv
}

func (s *fakeSpawner) Scan(id ecs.EntityID, sv *Saveable) int {
	p := &fakeProvider{value: "default"}
	sv.RegisterProvider("Dyn-state-0", p, false)
	s.live[id] = sv
	s.state[id] = p
	return 1
}

func (s *fakeSpawner) Despawn(id ecs.EntityID) {
	delete(s.live, id)
	s.despawned = append(s.despawned, id)
}

func testTemplates(t *testing.T) *data.TemplateTable {
	t.Helper()
	tbl := data.NewTemplateTable()
	require.NoError(t, tbl.Add(data.Template{Name: "Coin", Providers: []data.ProviderSpec{{ID: "pos", Kind: "position"}}}))
	require.NoError(t, tbl.Add(data.Template{Name: "Crate", Path: "Props/Crate", Saveable: true}))
	return tbl
}

type testEnv struct {
	master  *Master
	storage *memStorage
	prefs   memPrefs
	spawner *fakeSpawner
	bus     *event.Bus
	logs    *observer.ObservedLogs
	slots   config.SlotConfig
}

func newTestEnv(t *testing.T, mutate ...func(*config.SlotConfig)) *testEnv {
	t.Helper()
	slots := config.Default().Slots
	slots.TrackTimePlayed = false
	slots.LoadDefaultSlotOnStart = false
	for _, fn := range mutate {
		fn(&slots)
	}
	return buildEnv(t, slots, newMemStorage(), memPrefs{})
}

func buildEnv(t *testing.T, slots config.SlotConfig, storage *memStorage, prefs memPrefs) *testEnv {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	env := &testEnv{
		storage: storage,
		prefs:   prefs,
		spawner: newFakeSpawner(),
		bus:     event.NewBus(),
		logs:    logs,
		slots:   slots,
	}
	env.master = (&Builder{}).Build(Options{
		Slots:    slots,
		Storage:  storage,
		Prefs:    prefs,
		Bus:      env.bus,
		Resolver: testTemplates(t),
		Spawner:  env.spawner,
		Log:      zap.New(core),
	})
	t.Cleanup(env.master.Close)
	return env
}

// restart simulates a new process over the same storage and prefs.
func (e *testEnv) restart(t *testing.T) *testEnv {
	t.Helper()
	return buildEnv(t, e.slots, e.storage, e.prefs)
}

func (e *testEnv) warnings(msg string) int {
	return e.logs.FilterMessage(msg).FilterLevelExact(zapcore.WarnLevel).Len()
}
