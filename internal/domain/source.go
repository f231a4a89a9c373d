package domain

import "time"

// SourceType selects the fetch strategy for a source.
type SourceType string

const (
	SourceRSS SourceType = "rss"
	SourceAPI SourceType = "api"
)

// SourceConfig is the strategy-specific configuration of a source.
type SourceConfig struct {
	FeedURL    string            `json:"feed_url,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	FetcherRef string            `json:"fetcher_ref,omitempty"`
	Options    map[string]string `json:"options,omitempty"`
}

// IsZero reports whether no field of the config is set.
func (c SourceConfig) IsZero() bool {
	return c.FeedURL == "" && c.FetcherRef == "" && len(c.Headers) == 0 && len(c.Options) == 0
}

// SourceDescriptor identifies one configured feed or API.
type SourceDescriptor struct {
	Key    string
	Type   SourceType
	Config SourceConfig
}

// JobStatus enumerates the queue lifecycle of an ingestion job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// IngestionJob is one pipeline execution for a single source.
type IngestionJob struct {
	ID         string       `json:"id"`
	SourceKey  string       `json:"source_key"`
	Config     SourceConfig `json:"config"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}

// JobDelivery is a job handed to a worker by the queue.
type JobDelivery struct {
	MessageID string
	Job       IngestionJob
	Attempt   int
}
