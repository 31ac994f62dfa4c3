package system

import (
	"time"

	"go.uber.org/zap"

	coresys "github.com/l1jgo/savemaster/internal/core/system"
	"github.com/l1jgo/savemaster/internal/save"
)

// AutoSaveSystem periodically collects every listener into the active save
// and writes it to storage in the background.
type AutoSaveSystem struct {
	master    *save.Master
	log       *zap.Logger
	tickCount int
	interval  int // auto-save every N ticks; 0 disables
	inFlight  <-chan error
}

func NewAutoSaveSystem(master *save.Master, log *zap.Logger, intervalTicks int) *AutoSaveSystem {
	if log == nil {
		log = zap.NewNop()
	}
	return &AutoSaveSystem{master: master, log: log, interval: intervalTicks}
}

func (s *AutoSaveSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *AutoSaveSystem) Update(_ time.Duration) {
	if s.interval <= 0 {
		return
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.saveActive()
}

func (s *AutoSaveSystem) saveActive() {
	if !s.master.HasActiveSave() {
		return
	}
	// 上一次背景寫入尚未完成時跳過本輪，不堆疊寫入
	if s.inFlight != nil {
		select {
		case <-s.inFlight:
		default:
			s.log.Debug("previous auto-save still writing, skipping", zap.Int("slot", s.master.ActiveSlot()))
			return
		}
	}
	s.inFlight = s.master.WriteActiveSaveToDiskAsync()
	s.log.Debug("auto-save started", zap.Int("slot", s.master.ActiveSlot()))
}

// Flush waits for an in-flight write. Called on shutdown before the final
// synchronous write.
func (s *AutoSaveSystem) Flush() {
	if s.inFlight != nil {
		<-s.inFlight
		s.inFlight = nil
	}
}
