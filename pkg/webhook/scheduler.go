package webhook

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pitabwire/frame/workerpool"
)

const defaultSchedulerBatch = 100

// RetryScheduler re-fires retry-scheduled chains once their nextRetryAt passes.
type RetryScheduler struct {
	store     Store
	deliverer *Deliverer
	pool      workerpool.WorkerPool
	interval  time.Duration
	batch     int
}

// NewRetryScheduler creates a scheduler polling the store every interval.
func NewRetryScheduler(store Store, deliverer *Deliverer, pool workerpool.WorkerPool, interval time.Duration) *RetryScheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &RetryScheduler{
		store:     store,
		deliverer: deliverer,
		pool:      pool,
		interval:  interval,
		batch:     defaultSchedulerBatch,
	}
}

// Start runs the polling loop until ctx is cancelled.
func (s *RetryScheduler) Start(ctx context.Context) {
	loop := func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}
	if s.pool != nil {
		if err := s.pool.Submit(ctx, loop); err == nil {
			return
		}
	}
	go loop()
}

// RunOnce redelivers every chain that is due and returns how many were fired.
func (s *RetryScheduler) RunOnce(ctx context.Context) int {
	due, err := s.store.ListDue(ctx, s.deliverer.now(), s.batch)
	if err != nil {
		slog.ErrorContext(ctx, "list due webhook retries failed", slog.String("error", err.Error()))
		return 0
	}

	fired := 0
	for i := range due {
		a := &due[i]
		err := s.deliverer.redeliver(ctx, a)
		if errors.Is(err, ErrNotRetryable) {
			// Claimed by an operator retry since the listing.
			continue
		}
		if err != nil {
			slog.WarnContext(ctx, "scheduled webhook retry skipped",
				slog.String("attempt_id", a.ID),
				slog.String("team_id", a.TeamID),
				slog.String("error", err.Error()))
			continue
		}
		fired++
	}
	if fired > 0 {
		slog.InfoContext(ctx, "scheduled webhook retries fired", slog.Int("count", fired))
	}
	return fired
}
