package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"DealScanner/internal/ports"
)

// DefaultSpec polls every source every fifteen minutes.
const DefaultSpec = "*/15 * * * *"

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronScheduler triggers a job on a standard five-field cron expression.
type CronScheduler struct {
	spec       string
	location   *time.Location
	runOnStart bool
	logger     *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// Option configures a CronScheduler.
type Option func(*CronScheduler)

// WithLocation evaluates the expression in loc instead of UTC.
func WithLocation(loc *time.Location) Option {
	return func(c *CronScheduler) {
		if loc != nil {
			c.location = loc
		}
	}
}

// WithRunOnStart fires the job once immediately when the scheduler starts.
func WithRunOnStart() Option {
	return func(c *CronScheduler) { c.runOnStart = true }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *CronScheduler) { c.logger = logger }
}

// NewCronScheduler validates spec; an empty spec uses DefaultSpec.
func NewCronScheduler(spec string, opts ...Option) (*CronScheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	if _, err := specParser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}

	c := &CronScheduler{spec: spec, location: time.UTC}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start registers job and begins ticking until Stop or ctx is done.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return errors.New("scheduler job is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	cr := cron.New(cron.WithLocation(c.location), cron.WithParser(specParser))
	if _, err := cr.AddFunc(c.spec, func() { job(time.Now().In(c.location)) }); err != nil {
		return fmt.Errorf("schedule %q: %w", c.spec, err)
	}
	cr.Start()
	c.cron = cr

	if c.logger != nil {
		c.logger.Info("scheduler started", "spec", c.spec, "location", c.location.String())
	}
	if c.runOnStart {
		go job(time.Now().In(c.location))
	}

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()
	return nil
}

// Stop halts the cron loop and waits for a running trigger to return, bounded by ctx.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	cr := c.cron
	c.cron = nil
	c.mu.Unlock()

	if cr == nil {
		return nil
	}

	done := cr.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if c.logger != nil {
		c.logger.Info("scheduler stopped")
	}
	return nil
}
