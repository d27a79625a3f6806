// Package scheduler runs queue drains on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/HumansWindow/lastproject-sub008/internal/minting/queue"
)

// Scheduler triggers scheduled drain cycles. Manual drains share the same
// queue entry point and simply skip when a scheduled cycle is running.
type Scheduler struct {
	queue    *queue.Service
	interval time.Duration
	log      *slog.Logger
}

// New creates a Scheduler.
func New(q *queue.Service, interval time.Duration, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{queue: q, interval: interval, log: log}
}

// Start runs the drain loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Initial drain, picks up anything left over from a previous run.
	s.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drain(ctx)
		}
	}
}

func (s *Scheduler) drain(ctx context.Context) {
	_, err := s.queue.Drain(ctx, false)
	if err != nil {
		if errors.Is(err, queue.ErrDrainInProgress) {
			s.log.Debug("Skipping scheduled drain, previous cycle still running")
			return
		}
		s.log.Error("Scheduled drain failed", "error", err)
	}
}
