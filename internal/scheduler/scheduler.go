// Package scheduler wires up the cron job that keeps the queue healthy:
// items orphaned in processing by a crashed dispatcher are returned to
// pending on every tick.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"jobscout/pipeline-service/internal/store"
)

// Scheduler wraps robfig/cron and manages the maintenance loop.
type Scheduler struct {
	cron       *cron.Cron
	store      store.Store
	staleAfter time.Duration
	spec       string // cron spec, e.g. "@every 60s"
}

// New creates a Scheduler that fires every interval and requeues items
// stuck in processing for longer than staleAfter.
func New(st store.Store, interval, staleAfter time.Duration) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithLogger(cron.DefaultLogger)),
		store:      st,
		staleAfter: staleAfter,
		spec:       fmt.Sprintf("@every %ds", int(interval.Seconds())),
	}
}

// Start registers the job and starts the scheduler. Also runs one sweep
// immediately so items orphaned by a previous crash are recovered
// without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	log.Printf("[scheduler] Cron started — spec: %s", s.spec)

	// Run immediately on startup (non-blocking)
	go s.sweep(ctx)

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[scheduler] Cron stopped")
}

// sweep requeues stale processing claims and logs queue depth.
func (s *Scheduler) sweep(ctx context.Context) {
	n, err := s.store.RequeueStale(ctx, s.staleAfter)
	if err != nil {
		log.Printf("[scheduler] RequeueStale error: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[scheduler] Requeued %d stale processing item(s)", n)
	}

	depth, err := s.store.PendingCount(ctx)
	if err != nil {
		log.Printf("[scheduler] PendingCount error: %v", err)
		return
	}
	log.Printf("[scheduler] Queue depth: %d pending item(s)", depth)
}
