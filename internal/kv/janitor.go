package kv

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Janitor periodically sweeps expired entries from backends that don't
// expire keys on their own.
type Janitor struct {
	target  Expirer
	stop    chan struct{}
	stopped chan struct{}
}

// NewJanitor creates a janitor for target.
func NewJanitor(target Expirer) *Janitor {
	return &Janitor{target: target}
}

// Start starts a background goroutine that cleans up expired entries every interval.
func (j *Janitor) Start(ctx context.Context, interval time.Duration) {
	j.stop = make(chan struct{})
	j.stopped = make(chan struct{})

	go func() {
		defer close(j.stopped)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-j.stop:
				return
			case <-ticker.C:
				j.Sweep(ctx)
			}
		}
	}()

	log.Debug().Dur("interval", interval).Msg("Started KV cleanup goroutine")
}

// Stop stops the background goroutine and waits for it to exit.
func (j *Janitor) Stop() {
	if j.stop != nil {
		close(j.stop)
		<-j.stopped
		j.stop = nil
		log.Debug().Msg("Stopped KV cleanup goroutine")
	}
}

// Sweep runs one cleanup pass.
func (j *Janitor) Sweep(ctx context.Context) int64 {
	count, err := j.target.CleanupExpired(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to cleanup expired KV entries")
		return 0
	}
	if count > 0 {
		log.Debug().Int64("count", count).Msg("Cleaned up expired KV entries")
	}
	return count
}
