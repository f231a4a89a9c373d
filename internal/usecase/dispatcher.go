package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
)

// JobRunner executes one ingestion job.
type JobRunner interface {
	RunJob(ctx context.Context, job domain.IngestionJob) (domain.ProcessingResult, error)
}

// DispatcherConfig bounds how jobs are pulled from the queue.
type DispatcherConfig struct {
	Concurrency   int
	RatePerSecond float64
	Burst         int
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	PollInterval  time.Duration
}

// DefaultDispatcherConfig mirrors the documented queue defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Concurrency:   3,
		RatePerSecond: 10,
		Burst:         1,
		MaxAttempts:   5,
		BackoffBase:   30 * time.Second,
		BackoffMax:    15 * time.Minute,
		PollInterval:  time.Second,
	}
}

// Dispatcher is a fixed pool of workers draining the job queue. Job starts across all workers
// share one rate limiter; failed jobs are retried with exponential backoff until MaxAttempts,
// then dead-lettered.
type Dispatcher struct {
	cfg      DispatcherConfig
	queue    ports.JobQueue
	runner   JobRunner
	reporter ports.Reporter
	limiter  *rate.Limiter
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher fills unset config fields with defaults. reporter may be nil.
func NewDispatcher(cfg DispatcherConfig, queue ports.JobQueue, runner JobRunner, reporter ports.Reporter, logger *slog.Logger) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	return &Dispatcher{
		cfg:      cfg,
		queue:    queue,
		runner:   runner,
		reporter: reporter,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		logger:   logger,
	}
}

// Backoff is the delay before the next attempt: base·2^(attempt-1), capped at ceiling.
func Backoff(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling || delay <= 0 {
			return ceiling
		}
	}
	return min(delay, ceiling)
}

// Start launches the workers. It returns immediately.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.queue == nil || d.runner == nil {
		return errors.New("dispatcher requires a queue and a runner")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return nil
	}

	ctx, d.cancel = context.WithCancel(ctx)
	d.logger.Info("dispatcher started",
		"concurrency", d.cfg.Concurrency,
		"rate_per_second", d.cfg.RatePerSecond,
		"max_attempts", d.cfg.MaxAttempts,
	)
	for i := 0; i < d.cfg.Concurrency; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	return nil
}

// Stop cancels the workers and waits for running jobs, bounded by ctx.
// An interrupted job is released back to the queue.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// drain without waiting while jobs are visible.
		for d.next(ctx, id) {
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// next handles one delivery and reports whether one was received.
func (d *Dispatcher) next(ctx context.Context, workerID int) bool {
	if ctx.Err() != nil {
		return false
	}

	delivery, err := d.queue.Receive(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrQueueEmpty) && ctx.Err() == nil {
			d.logger.Warn("receive job", "worker_id", workerID, "error", err)
		}
		return false
	}

	if err := d.limiter.Wait(ctx); err != nil {
		d.release(delivery)
		return false
	}

	d.execute(ctx, delivery)
	return true
}

func (d *Dispatcher) execute(ctx context.Context, delivery *domain.JobDelivery) {
	job := delivery.Job
	start := time.Now()
	result, err := d.runner.RunJob(ctx, job)
	elapsed := time.Since(start)

	if err == nil {
		if ackErr := d.queue.Ack(context.WithoutCancel(ctx), delivery); ackErr != nil {
			d.logger.Warn("ack job", "job_id", job.ID, "error", ackErr)
		}
		d.completed(ctx, job, delivery.Attempt, result, elapsed)
		return
	}

	if ctx.Err() != nil {
		// shutdown interrupted the job; make it visible again right away.
		d.release(delivery)
		d.logger.Warn("job interrupted", "source", job.SourceKey, "job_id", job.ID, "attempt", delivery.Attempt)
		return
	}

	willRetry := retryable(err) && delivery.Attempt < d.cfg.MaxAttempts
	bg := context.WithoutCancel(ctx)
	if willRetry {
		delay := Backoff(delivery.Attempt, d.cfg.BackoffBase, d.cfg.BackoffMax)
		if qErr := d.queue.Retry(bg, delivery, delay); qErr != nil {
			d.logger.Warn("schedule retry", "job_id", job.ID, "error", qErr)
		}
	} else if qErr := d.queue.DeadLetter(bg, delivery, err.Error()); qErr != nil {
		d.logger.Warn("dead letter job", "job_id", job.ID, "error", qErr)
	}

	d.failed(ctx, job, delivery.Attempt, err, willRetry, elapsed)
}

// RunNow executes job synchronously, outside the queue, with the same logging and reporting.
func (d *Dispatcher) RunNow(ctx context.Context, job domain.IngestionJob) (domain.ProcessingResult, error) {
	start := time.Now()
	result, err := d.runner.RunJob(ctx, job)
	if err != nil {
		d.failed(ctx, job, 1, err, false, time.Since(start))
		return result, err
	}
	d.completed(ctx, job, 1, result, time.Since(start))
	return result, nil
}

func (d *Dispatcher) completed(ctx context.Context, job domain.IngestionJob, attempt int, result domain.ProcessingResult, elapsed time.Duration) {
	d.logger.Info("job completed",
		"source", job.SourceKey,
		"job_id", job.ID,
		"attempt", attempt,
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"duration", elapsed,
	)
	if d.reporter != nil {
		d.reporter.JobCompleted(context.WithoutCancel(ctx), job, result, elapsed)
	}
}

func (d *Dispatcher) failed(ctx context.Context, job domain.IngestionJob, attempt int, err error, willRetry bool, elapsed time.Duration) {
	d.logger.Error("job failed",
		"source", job.SourceKey,
		"job_id", job.ID,
		"attempt", attempt,
		"will_retry", willRetry,
		"duration", elapsed,
		"error", err,
	)
	if d.reporter != nil {
		d.reporter.JobFailed(context.WithoutCancel(ctx), job, err, willRetry)
	}
}

func (d *Dispatcher) release(delivery *domain.JobDelivery) {
	if err := d.queue.Retry(context.Background(), delivery, 0); err != nil {
		d.logger.Warn("release job", "job_id", delivery.Job.ID, "error", err)
	}
}

// retryable is false for configuration errors that no later attempt can fix.
func retryable(err error) bool {
	return !errors.Is(err, domain.ErrUnknownSource) && !errors.Is(err, domain.ErrUnknownFetcher)
}
