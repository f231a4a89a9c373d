package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
)

// SourceLister exposes the configured source keys.
type SourceLister interface {
	Keys() []string
}

// Scheduler wires the cron-like driver with the job queue: every tick enqueues one job per source.
type Scheduler struct {
	driver  ports.Scheduler
	queue   ports.JobQueue
	sources SourceLister
	logger  *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring enqueues.
func NewScheduler(driver ports.Scheduler, queue ports.JobQueue, sources SourceLister, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{driver: driver, queue: queue, sources: sources, logger: logger}
}

// Enqueue submits one job per key; with no keys every configured source is enqueued.
// Unknown keys are rejected before anything is enqueued.
func (s *Scheduler) Enqueue(ctx context.Context, keys ...string) ([]domain.IngestionJob, error) {
	known := s.sources.Keys()
	if len(keys) == 0 {
		keys = known
	}

	index := make(map[string]struct{}, len(known))
	for _, k := range known {
		index[k] = struct{}{}
	}
	for _, k := range keys {
		if _, ok := index[k]; !ok {
			return nil, fmt.Errorf("source %s: %w", k, domain.ErrUnknownSource)
		}
	}

	jobs := make([]domain.IngestionJob, 0, len(keys))
	for _, k := range keys {
		job := domain.IngestionJob{ID: uuid.NewString(), SourceKey: k, EnqueuedAt: time.Now().UTC()}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			return jobs, fmt.Errorf("enqueue %s: %w", k, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Start registers the enqueue tick with the driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	tick := func(trigger time.Time) {
		jobs, err := s.Enqueue(ctx)
		if err != nil {
			s.logger.Error("scheduled enqueue failed", "trigger", trigger, "enqueued", len(jobs), "error", err)
			return
		}
		s.logger.Info("scheduled enqueue", "trigger", trigger, "enqueued", len(jobs))
	}

	return s.driver.Start(ctx, tick)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
