package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 20 * time.Second
	defaultUserAgent = "DealScanner/1.0 (+feed ingestion)"
	defaultBackoff   = 100 * time.Millisecond
	maxBodyBytes     = 16 << 20
)

// Config configures the client behaviour.
type Config struct {
	// Timeout bounds a single attempt (default 20s).
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt; negative disables retries.
	MaxRetries int
	// RatePerSecond limits outgoing requests; zero means unlimited.
	RatePerSecond float64
	Burst         int
	UserAgent     string
	// Headers are sent with every request; per-request headers override them.
	Headers map[string]string
	// BackoffBase is the first retry delay, doubled on each retry (default 100ms).
	BackoffBase time.Duration
	// Transport allows injecting a custom round tripper.
	Transport http.RoundTripper
}

// Client is a rate-limited, retry-capable GET client for feeds and deal APIs.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// New builds a client, filling unset fields with defaults.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoff
	}

	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return c
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ErrEmptyBody is returned when a successful response carries no bytes.
var ErrEmptyBody = errors.New("empty response body")

// Get fetches url and returns the body. Network errors, 429 and 5xx are retried with exponential backoff.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		body, err := c.getOnce(ctx, url, headers)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if attempt >= c.cfg.MaxRetries || !retryable(ctx, err) {
			break
		}

		backoff := c.cfg.BackoffBase << uint(attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if c.cfg.MaxRetries > 0 && retryable(ctx, lastErr) {
		return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
	}
	return nil, lastErr
}

func (c *Client) getOnce(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.cfg.UserAgent)
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("GET %s: %w", url, ErrEmptyBody)
	}
	return body, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.retryable()
	}
	return !errors.Is(err, ErrEmptyBody)
}
