package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/savemaster/internal/core/ecs"
	coresys "github.com/l1jgo/savemaster/internal/core/system"
)

// CleanupSystem flushes the deferred entity destruction queue at tick end,
// which is where explicit in-game destructions reach the slot manager.
type CleanupSystem struct {
	world *ecs.World
	log   *zap.Logger
}

func NewCleanupSystem(world *ecs.World, log *zap.Logger) *CleanupSystem {
	if log == nil {
		log = zap.NewNop()
	}
	return &CleanupSystem{world: world, log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	// 明確銷毀在此才真正移除實體，EntityDestroying 會帶 Explicit 旗標
	if n := s.world.FlushDestroyQueue(); n > 0 {
		s.log.Debug("entities destroyed", zap.Int("count", n))
	}
}
