package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"DealScanner/internal/domain"
)

type chat struct {
	mu       sync.Mutex
	messages []string
	status   int
}

func (c *chat) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("chat_id") != "42" {
			t.Errorf("unexpected chat id %q", r.PostForm.Get("chat_id"))
		}
		c.mu.Lock()
		c.messages = append(c.messages, r.PostForm.Get("text"))
		status := c.status
		c.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNotifierReportsChangesAndFailures(t *testing.T) {
	t.Parallel()

	c := &chat{}
	n := NewNotifier("TOKEN", "42", nil, WithAPIBase(c.server(t).URL))
	ctx := context.Background()
	job := domain.IngestionJob{SourceKey: "slickdeals"}

	n.JobCompleted(ctx, job, domain.ProcessingResult{Skipped: 10}, time.Second)
	n.JobCompleted(ctx, job, domain.ProcessingResult{Created: 2, Skipped: 8, Errors: 1}, 1500*time.Millisecond)
	n.JobFailed(ctx, job, errors.New("fetch source slickdeals: timeout"), true)

	c.mu.Lock()
	defer c.mu.Unlock()
	want := []string{
		"slickdeals: 2 new, 0 updated, 8 unchanged, 1 rejected (1.5s)",
		"slickdeals: job failed, will retry: fetch source slickdeals: timeout",
	}
	if len(c.messages) != len(want) {
		t.Fatalf("expected %d messages, got %v", len(want), c.messages)
	}
	for i := range want {
		if c.messages[i] != want[i] {
			t.Fatalf("message %d = %q, want %q", i, c.messages[i], want[i])
		}
	}
}

func TestSendErrors(t *testing.T) {
	t.Parallel()

	if err := NewNotifier("", "", nil).Send(context.Background(), "x"); err == nil {
		t.Fatalf("expected misconfiguration error")
	}

	c := &chat{status: http.StatusForbidden}
	n := NewNotifier("TOKEN", "42", nil, WithAPIBase(c.server(t).URL))
	if err := n.Send(context.Background(), "x"); err == nil {
		t.Fatalf("expected error for 403")
	}
	// reporting never panics or fails the caller.
	n.JobFailed(context.Background(), domain.IngestionJob{SourceKey: "sd"}, errors.New("boom"), false)
}
