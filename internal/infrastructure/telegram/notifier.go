package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier posts job summaries and failures to a Telegram chat via bot API.
// Jobs that neither created nor updated a deal are not reported.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
	logger   *slog.Logger
}

var _ ports.Reporter = (*Notifier)(nil)

// Option configures a Notifier.
type Option func(*Notifier)

// WithAPIBase points the notifier at another Bot API host.
func WithAPIBase(base string) Option {
	return func(n *Notifier) { n.apiBase = strings.TrimRight(base, "/") }
}

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string, logger *slog.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// JobCompleted reports a job that changed the deal set.
func (n *Notifier) JobCompleted(ctx context.Context, job domain.IngestionJob, result domain.ProcessingResult, elapsed time.Duration) {
	if result.Created == 0 && result.Updated == 0 {
		return
	}
	text := fmt.Sprintf("%s: %d new, %d updated, %d unchanged, %d rejected (%s)",
		job.SourceKey, result.Created, result.Updated, result.Skipped, result.Errors, elapsed.Round(time.Millisecond))
	n.post(ctx, text)
}

// JobFailed reports a failed job attempt.
func (n *Notifier) JobFailed(ctx context.Context, job domain.IngestionJob, err error, willRetry bool) {
	next := "giving up"
	if willRetry {
		next = "will retry"
	}
	n.post(ctx, fmt.Sprintf("%s: job failed, %s: %v", job.SourceKey, next, err))
}

func (n *Notifier) post(ctx context.Context, text string) {
	if err := n.Send(ctx, text); err != nil && n.logger != nil {
		n.logger.Warn("telegram report failed", "error", err)
	}
}

// Send posts a plain-text message to the chat.
func (n *Notifier) Send(ctx context.Context, text string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}
