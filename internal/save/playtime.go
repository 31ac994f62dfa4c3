package save

import (
	"context"
	"time"
)

// playTimer adds interval to a store's play time on a fixed period until
// stopped.
type playTimer struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startPlayTimer(store *Store, interval time.Duration) *playTimer {
	ctx, cancel := context.WithCancel(context.Background())
	t := &playTimer{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				store.AddPlayTime(interval)
			}
		}
	}()
	return t
}

func (t *playTimer) stop() {
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}
