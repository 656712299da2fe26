package ratelimit

import (
	"context"
	"sync"
	"time"
)

const DefaultCleanupInterval = 5 * time.Minute

// janitor runs sweep on a ticker until stop is called.
type janitor struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func startJanitor(interval time.Duration, sweep func()) *janitor {
	j := &janitor{}
	if interval <= 0 {
		return j
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweep()
			}
		}
	}()

	return j
}

// stop cancels the sweep loop and waits for it to exit. Safe to call more
// than once.
func (j *janitor) stop() {
	j.once.Do(func() {
		if j.cancel != nil {
			j.cancel()
		}
	})
	j.wg.Wait()
}
