package save

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/savemaster/internal/config"
	"github.com/l1jgo/savemaster/internal/core/event"
)

// Options wires a Master to its collaborators. Storage is required; the
// rest may be nil.
type Options struct {
	Slots     config.SlotConfig
	Storage   SlotStorage
	Prefs     Prefs
	Bus       *event.Bus
	Resolver  Resolver
	Spawner   Spawner
	IOTimeout time.Duration
	Log       *zap.Logger
}

// Builder guards the single Master of a process.
type Builder struct {
	mu    sync.Mutex
	built *Master
}

// Build creates the Master on the first call. Later calls log a warning
// and return the existing instance unchanged.
func (b *Builder) Build(opts Options) *Master {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built != nil {
		b.built.log.Warn("save master already built, returning existing instance")
		return b.built
	}
	b.built = newMaster(opts)
	return b.built
}

// Master returns the built instance or nil.
func (b *Builder) Master() *Master {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.built
}
