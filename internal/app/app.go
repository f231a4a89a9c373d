package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"DealScanner/internal/config"
	"DealScanner/internal/dedup"
	"DealScanner/internal/domain"
	"DealScanner/internal/fetcher"
	"DealScanner/internal/infrastructure/httpclient"
	"DealScanner/internal/infrastructure/parser"
	"DealScanner/internal/infrastructure/queue"
	"DealScanner/internal/infrastructure/scheduler"
	"DealScanner/internal/infrastructure/storage"
	"DealScanner/internal/infrastructure/telegram"
	"DealScanner/internal/logging"
	"DealScanner/internal/normalize"
	"DealScanner/internal/ports"
	"DealScanner/internal/usecase"
)

const queueName = "ingestion"

// Application wires configs to use cases and lifecycle orchestration. The deal store and the
// job queue are opened on first use so that commands needing neither stay cheap.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	catalog  *parser.SourceCatalog
	reporter ports.Reporter

	mu      sync.Mutex
	store   ports.DealStore
	queue   *queue.BadgerQueue
	closers []func() error
}

// New builds the source catalog and fetch strategies.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	client := httpclient.New(httpclient.Config{
		Timeout:       cfg.HTTP.Timeout,
		MaxRetries:    cfg.HTTP.MaxRetries,
		RatePerSecond: cfg.HTTP.RatePerSecond,
		UserAgent:     cfg.HTTP.UserAgent,
		Headers:       cfg.HTTP.Headers,
	})

	apis := fetcher.NewRegistry()
	apis.Register(parser.NewJSONFetcher(client))
	apis.Register(parser.NewHTMLFetcher(client))

	registry := fetcher.NewRegistry()
	registry.Register(parser.NewRSSFetcher(client, logging.Component(baseLogger, "fetcher.rss")))
	registry.Register(parser.NewAPIFetcher(apis, logging.Component(baseLogger, "fetcher.api")))

	catalog, err := parser.NewSourceCatalog(registry, cfg.Descriptors(), logging.Component(baseLogger, "catalog"))
	if err != nil {
		return nil, fmt.Errorf("build source catalog: %w", err)
	}

	a := &Application{cfg: cfg, logger: baseLogger, catalog: catalog}
	if tg := cfg.Notifications.Telegram; tg.Enabled() {
		a.reporter = telegram.NewNotifier(tg.BotToken, tg.ChatID, logging.Component(baseLogger, "telegram"))
	}
	return a, nil
}

// Sources lists the configured sources ordered by key.
func (a *Application) Sources() []domain.SourceDescriptor {
	keys := a.catalog.Keys()
	out := make([]domain.SourceDescriptor, 0, len(keys))
	for _, k := range keys {
		d, _ := a.catalog.Descriptor(k)
		out = append(out, d)
	}
	return out
}

// Ingest runs one job for key synchronously, outside the queue.
func (a *Application) Ingest(ctx context.Context, key string) (domain.ProcessingResult, error) {
	if _, ok := a.catalog.Descriptor(key); !ok {
		return domain.ProcessingResult{}, fmt.Errorf("source %s: %w", key, domain.ErrUnknownSource)
	}

	store, err := a.dealStore(ctx)
	if err != nil {
		return domain.ProcessingResult{}, err
	}

	dispatcher := usecase.NewDispatcher(a.dispatcherConfig(), nil, a.pipeline(store), a.reporter, logging.Component(a.logger, "dispatcher"))
	return dispatcher.RunNow(ctx, domain.IngestionJob{ID: uuid.NewString(), SourceKey: key, EnqueuedAt: time.Now().UTC()})
}

// Enqueue submits jobs for keys, or for every source when keys is empty.
func (a *Application) Enqueue(ctx context.Context, keys ...string) ([]domain.IngestionJob, queue.Stats, error) {
	q, err := a.jobQueue()
	if err != nil {
		return nil, queue.Stats{}, err
	}

	jobs, err := usecase.NewScheduler(nil, q, a.catalog, logging.Component(a.logger, "scheduler")).Enqueue(ctx, keys...)
	if err != nil {
		return jobs, queue.Stats{}, err
	}
	stats, err := q.Stats(ctx)
	return jobs, stats, err
}

// Run starts the dispatcher and the cron scheduler and blocks until ctx is done.
func (a *Application) Run(ctx context.Context) error {
	store, err := a.dealStore(ctx)
	if err != nil {
		return err
	}
	q, err := a.jobQueue()
	if err != nil {
		return err
	}

	opts := []scheduler.Option{
		scheduler.WithLocation(a.cfg.Scheduler.Location()),
		scheduler.WithLogger(logging.Component(a.logger, "cron")),
	}
	if a.cfg.Scheduler.RunOnStart {
		opts = append(opts, scheduler.WithRunOnStart())
	}
	driver, err := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, opts...)
	if err != nil {
		return err
	}

	dispatcher := usecase.NewDispatcher(a.dispatcherConfig(), q, a.pipeline(store), a.reporter, logging.Component(a.logger, "dispatcher"))
	sched := usecase.NewScheduler(driver, q, a.catalog, logging.Component(a.logger, "scheduler"))

	if err := dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		_ = dispatcher.Stop(context.Background())
		return fmt.Errorf("start scheduler: %w", err)
	}

	a.logger.Info("deal scanner running", "sources", len(a.catalog.Keys()), "cron", a.cfg.Scheduler.CronExpression)
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return errors.Join(sched.Stop(stopCtx), dispatcher.Stop(stopCtx))
}

// Close releases the store and the queue.
func (a *Application) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *Application) pipeline(store ports.DealStore) *usecase.Pipeline {
	scorer := dedup.NewScorer(a.cfg.Quality.Weights, a.cfg.Quality.MinDescriptionLength)
	return usecase.NewPipeline(usecase.PipelineDeps{
		Source:     a.catalog,
		Store:      store,
		Normalizer: normalize.New(),
		Merger:     dedup.NewEngine(store, scorer, logging.Component(a.logger, "dedup")),
		Logger:     logging.Component(a.logger, "pipeline"),
	})
}

func (a *Application) dispatcherConfig() usecase.DispatcherConfig {
	q := a.cfg.Queue
	return usecase.DispatcherConfig{
		Concurrency:   q.Concurrency,
		RatePerSecond: q.RatePerSecond,
		Burst:         q.Burst,
		MaxAttempts:   q.MaxAttempts,
		BackoffBase:   q.BackoffBase,
		BackoffMax:    q.BackoffMax,
		PollInterval:  q.PollInterval,
	}
}

func (a *Application) dealStore(ctx context.Context) (ports.DealStore, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store != nil {
		return a.store, nil
	}

	if a.cfg.Database.Driver == "memory" {
		a.store = storage.NewMemoryRepository()
		return a.store, nil
	}

	db, err := storage.Open(ctx, a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if a.cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(a.cfg.Database.MaxOpenConns)
	}

	repo := storage.NewPostgresRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	a.store = repo
	a.closers = append(a.closers, db.Close)
	return a.store, nil
}

func (a *Application) jobQueue() (*queue.BadgerQueue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.queue != nil {
		return a.queue, nil
	}

	db, err := queue.Open(a.cfg.Queue.Path, a.cfg.Queue.InMemory)
	if err != nil {
		return nil, err
	}
	q, err := queue.NewBadgerQueue(db, queueName, a.cfg.Queue.VisibilityTimeout)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a.queue = q
	a.closers = append(a.closers, db.Close)
	return q, nil
}
