package persist

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/l1jgo/savemaster/internal/save"
)

type SlotFilesOptions struct {
	Backend  Backend
	Version  int  // version stamped on newly created stores
	Pretty   bool // indented JSON
	Compress bool // zstd frame around the encoded store
	MaxSlots int
	Log      *zap.Logger
}

// SlotFiles turns a Backend into save.SlotStorage: it encodes and decodes
// stores, keeps a cached index of used slots and serializes writes per slot.
type SlotFiles struct {
	backend  Backend
	version  int
	pretty   bool
	compress bool
	maxSlots int
	log      *zap.Logger

	mu    sync.Mutex
	index map[int]struct{} // nil until the first List
	locks map[int]*sync.Mutex
}

func NewSlotFiles(opts SlotFilesOptions) *SlotFiles {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &SlotFiles{
		backend:  opts.Backend,
		version:  opts.Version,
		pretty:   opts.Pretty,
		compress: opts.Compress,
		maxSlots: opts.MaxSlots,
		log:      opts.Log,
		locks:    make(map[int]*sync.Mutex),
	}
}

func (f *SlotFiles) Backend() Backend { return f.backend }

func (f *SlotFiles) Close() error { return f.backend.Close() }

func (f *SlotFiles) slotLock(slot int) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[slot]
	if !ok {
		l = &sync.Mutex{}
		f.locks[slot] = l
	}
	return l
}

// usedIndex returns the cached slot index, listing the backend on first
// use. Callers must hold f.mu.
func (f *SlotFiles) usedIndex(ctx context.Context) map[int]struct{} {
	if f.index != nil {
		return f.index
	}
	slots, err := f.backend.List(ctx)
	if err != nil {
		f.log.Warn("list slots failed", zap.Error(err))
		return map[int]struct{}{}
	}
	f.index = make(map[int]struct{}, len(slots))
	for _, s := range slots {
		f.log.Debug("slot found", zap.Int("slot", s))
		f.index[s] = struct{}{}
	}
	return f.index
}

func (f *SlotFiles) markUsed(ctx context.Context, slot int, used bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.usedIndex(ctx)
	if f.index == nil {
		return
	}
	if used {
		idx[slot] = struct{}{}
	} else {
		delete(idx, slot)
	}
}

// Refresh drops the cached index so the next query lists the backend.
func (f *SlotFiles) Refresh() {
	f.mu.Lock()
	f.index = nil
	f.mu.Unlock()
}

func (f *SlotFiles) UsedSlots(ctx context.Context) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.usedIndex(ctx)
	out := make([]int, 0, len(idx))
	for s := range idx {
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

func (f *SlotFiles) IsSlotUsed(ctx context.Context, slot int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.usedIndex(ctx)[slot]
	return ok
}

// AvailableSlot returns the lowest unused slot below MaxSlots.
func (f *SlotFiles) AvailableSlot(ctx context.Context) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.usedIndex(ctx)
	for i := 0; i < f.maxSlots; i++ {
		if _, ok := idx[i]; !ok {
			return i, true
		}
	}
	return -1, false
}

// LoadSave reads and decodes slot. Empty or corrupt data is deleted and the
// slot is treated as empty; with createIfEmpty a fresh store is written in
// its place. A backend read failure returns nil without touching the slot.
func (f *SlotFiles) LoadSave(ctx context.Context, slot int, createIfEmpty bool) *save.Store {
	if slot < 0 {
		f.log.Warn("illegal slot", zap.Int("slot", slot))
		return nil
	}
	lock := f.slotLock(slot)
	lock.Lock()
	defer lock.Unlock()

	raw, err := f.backend.Read(ctx, slot)
	switch {
	case err == nil:
		st, derr := f.decode(raw)
		if derr == nil {
			f.markUsed(ctx, slot, true)
			return st
		}
		f.log.Warn("slot data unreadable, deleting", zap.Int("slot", slot), zap.Error(derr))
		if err := f.backend.Delete(ctx, slot); err != nil {
			f.log.Error("delete unreadable slot failed", zap.Int("slot", slot), zap.Error(err))
		}
		f.markUsed(ctx, slot, false)
	case errors.Is(err, ErrSlotNotFound):
		f.markUsed(ctx, slot, false)
	default:
		f.log.Error("read slot failed", zap.Int("slot", slot), zap.Error(err))
		return nil
	}

	if !createIfEmpty {
		return nil
	}
	st := save.NewStore(f.version)
	if err := f.writeLocked(ctx, st, slot); err != nil {
		f.log.Error("create slot failed", zap.Int("slot", slot), zap.Error(err))
		return nil
	}
	f.log.Debug("slot created", zap.Int("slot", slot))
	return st
}

func (f *SlotFiles) decode(raw []byte) (*save.Store, error) {
	data, err := decompress(raw)
	if err != nil {
		return nil, eris.Wrap(save.ErrCorruptSave, err.Error())
	}
	return save.Decode(data)
}

func (f *SlotFiles) encode(st *save.Store) ([]byte, error) {
	st.PrepareForWrite(time.Now())
	data, err := save.Encode(st, f.pretty)
	if err != nil {
		return nil, err
	}
	if f.compress {
		return compress(data)
	}
	return data, nil
}

func (f *SlotFiles) WriteSave(ctx context.Context, st *save.Store, slot int) error {
	if st == nil {
		return eris.New("nil store")
	}
	if slot < 0 {
		return eris.Errorf("illegal slot %d", slot)
	}
	lock := f.slotLock(slot)
	lock.Lock()
	defer lock.Unlock()
	return f.writeLocked(ctx, st, slot)
}

func (f *SlotFiles) writeLocked(ctx context.Context, st *save.Store, slot int) error {
	data, err := f.encode(st)
	if err != nil {
		return err
	}
	return f.put(ctx, slot, data)
}

func (f *SlotFiles) put(ctx context.Context, slot int, data []byte) error {
	if err := f.backend.Write(ctx, slot, data); err != nil {
		return err
	}
	f.markUsed(ctx, slot, true)
	return nil
}

// WriteSaveAsync encodes st on the caller's goroutine, so later mutations
// of st do not leak into the write, and hands the bytes to a goroutine.
// The slot lock is taken before returning: writes and deletes issued after
// this call land after it.
func (f *SlotFiles) WriteSaveAsync(ctx context.Context, st *save.Store, slot int) <-chan error {
	out := make(chan error, 1)
	fail := func(err error) <-chan error {
		out <- err
		close(out)
		return out
	}
	if st == nil {
		return fail(eris.New("nil store"))
	}
	if slot < 0 {
		return fail(eris.Errorf("illegal slot %d", slot))
	}
	data, err := f.encode(st)
	if err != nil {
		return fail(err)
	}
	// 在呼叫端先取得 slot 鎖，之後的 WriteSave / DeleteSave 必定排在這次寫入之後
	lock := f.slotLock(slot)
	lock.Lock()
	go func() {
		defer close(out)
		defer lock.Unlock()
		out <- f.put(ctx, slot, data)
	}()
	return out
}

func (f *SlotFiles) DeleteSave(ctx context.Context, slot int) error {
	lock := f.slotLock(slot)
	lock.Lock()
	defer lock.Unlock()
	if err := f.backend.Delete(ctx, slot); err != nil {
		return err
	}
	f.markUsed(ctx, slot, false)
	return nil
}
