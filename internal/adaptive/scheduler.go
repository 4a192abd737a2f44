package adaptive

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/muid-io/tracehub/internal/key"
	"github.com/muid-io/tracehub/internal/logger"
)

// Scheduler drives the store's cooldown tick at a fixed interval. The
// interval must be shorter than the smallest TTL so demotions land within
// one tick of their deadline.
type Scheduler struct {
	store    *Store
	clock    clock.Clock
	interval time.Duration
}

func NewScheduler(store *Store) *Scheduler {
	return &Scheduler{
		store:    store,
		clock:    store.clock,
		interval: store.params.Tick,
	}
}

// Run ticks until ctx is cancelled. Transitions only happen at tick
// boundaries, never mid-sweep.
func (s *Scheduler) Run(ctx context.Context) {
	logger.Info(ctx, "start cooldown scheduler", key.Tick.Field(s.interval))

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "stop cooldown scheduler")
			return
		case <-ticker.C:
			s.store.Tick()
		}
	}
}
