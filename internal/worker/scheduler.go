package worker

import (
	"context"
	"log"
	"time"

	"github.com/jonboulle/clockwork"
)

// Scheduler drives repeated cycles at a fixed interval. Cycles run
// sequentially on the scheduler goroutine, so a slow pass simply delays
// the next tick instead of overlapping it. An in-flight cycle finishes
// before shutdown completes.
type Scheduler struct {
	cycle    *Cycle
	clock    clockwork.Clock
	interval time.Duration
}

func NewScheduler(cycle *Cycle, clock clockwork.Clock, interval time.Duration) *Scheduler {
	return &Scheduler{cycle: cycle, clock: clock, interval: interval}
}

// Run executes one cycle immediately, then one per tick until the context
// is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.runCycle(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("worker: scheduler shutting down")
			return
		case <-ticker.Chan():
			s.runCycle(ctx)
		}
	}
}

// RunOnce executes a single cycle and returns.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.cycle.Run(ctx)
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if err := s.cycle.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("worker: cycle: %v", err)
	}
}
