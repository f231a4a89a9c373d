package ports

import (
	"context"
	"time"

	"DealScanner/internal/domain"
	"DealScanner/internal/feed"
)

// SourceFetcher retrieves the raw items of the source a job points at.
type SourceFetcher interface {
	FetchSource(ctx context.Context, job domain.IngestionJob) ([]*feed.Node, error)
}

// DealStore is the persistence boundary. Each call is atomic and the store enforces
// uniqueness of the dedup key.
type DealStore interface {
	// FindByDedupKey returns nil, nil when no record exists.
	FindByDedupKey(ctx context.Context, key string) (*domain.DealRecord, error)
	// Create inserts a pending record; domain.ErrDuplicateKey when the key is taken.
	Create(ctx context.Context, key string, deal domain.NormalizedDeal, qualityScore float64) (domain.DealRecord, error)
	// Update writes the changed material fields and leaves status untouched.
	Update(ctx context.Context, id int64, update domain.DealUpdate) (domain.DealRecord, error)
	Ping(ctx context.Context) error
}

// JobQueue is a persistent, at-least-once queue of ingestion jobs.
type JobQueue interface {
	Enqueue(ctx context.Context, job domain.IngestionJob) error
	// Receive returns the next visible job, or an error wrapping domain.ErrQueueEmpty.
	Receive(ctx context.Context) (*domain.JobDelivery, error)
	Ack(ctx context.Context, d *domain.JobDelivery) error
	Retry(ctx context.Context, d *domain.JobDelivery, delay time.Duration) error
	DeadLetter(ctx context.Context, d *domain.JobDelivery, reason string) error
}

// Reporter receives the per-job completion and failure hooks.
type Reporter interface {
	JobCompleted(ctx context.Context, job domain.IngestionJob, result domain.ProcessingResult, elapsed time.Duration)
	JobFailed(ctx context.Context, job domain.IngestionJob, err error, willRetry bool)
}

// Scheduler controls when sources are enqueued.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
