package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DealScanner/internal/config"
	"DealScanner/internal/domain"
	"DealScanner/internal/infrastructure/storage"
)

const feedBody = `<rss><channel>
	<item><title>50% Off Headphones</title><link>https://x.com/d1</link><guid>abc123</guid>
		<description>Amazon has headphones w/ code SAVE50</description></item>
	<item><title>Socks $4.99</title><link>https://x.com/d2</link></item>
</channel></rss>`

func testConfig(t *testing.T) config.Config {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, feedBody)
	}))
	t.Cleanup(srv.Close)

	return config.Config{
		Database: config.DatabaseConfig{Driver: "memory"},
		Queue: config.QueueConfig{
			InMemory:          true,
			Concurrency:       1,
			Burst:             1,
			MaxAttempts:       2,
			BackoffBase:       time.Millisecond,
			BackoffMax:        time.Millisecond,
			PollInterval:      5 * time.Millisecond,
			VisibilityTimeout: time.Minute,
		},
		Scheduler: config.SchedulerConfig{CronExpression: "0 0 1 1 *"},
		HTTP:      config.HTTPConfig{Timeout: 5 * time.Second},
		Sources: []config.SourceConfig{
			{Key: "sd", Type: "rss", FeedURL: srv.URL},
			{Key: "partner", Type: "api", FetcherRef: "json", FeedURL: srv.URL + "/api"},
		},
	}
}

func newTestApp(t *testing.T) *Application {
	t.Helper()
	a, err := New(testConfig(t), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestSources(t *testing.T) {
	a := newTestApp(t)

	sources := a.Sources()
	require.Len(t, sources, 2)
	assert.Equal(t, "partner", sources[0].Key)
	assert.Equal(t, domain.SourceAPI, sources[0].Type)
	assert.Equal(t, "sd", sources[1].Key)
}

func TestIngest(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	result, err := a.Ingest(ctx, "sd")
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessingResult{Created: 2}, result)

	result, err = a.Ingest(ctx, "sd")
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessingResult{Skipped: 2}, result)

	_, err = a.Ingest(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrUnknownSource)
}

func TestEnqueueAndRun(t *testing.T) {
	a := newTestApp(t)

	jobs, stats, err := a.Enqueue(context.Background(), "sd")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, stats.Queued)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		a.mu.Lock()
		store, _ := a.store.(*storage.MemoryRepository)
		a.mu.Unlock()
		return store != nil && len(store.All()) == 2
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
