package parser

import (
	"context"
	"errors"
	"log/slog"

	"DealScanner/internal/domain"
	"DealScanner/internal/feed"
	"DealScanner/internal/fetcher"
)

// Getter retrieves a document body; httpclient.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// RSSFetcher downloads an RSS, Atom or RDF document and returns its item elements.
type RSSFetcher struct {
	client Getter
	logger *slog.Logger
}

var _ fetcher.Fetcher = (*RSSFetcher)(nil)

// NewRSSFetcher wires the HTTP getter.
func NewRSSFetcher(client Getter, logger *slog.Logger) *RSSFetcher {
	return &RSSFetcher{client: client, logger: logger}
}

// Name identifies the strategy inside the registry.
func (f *RSSFetcher) Name() string {
	return string(domain.SourceRSS)
}

// Fetch returns the raw items of the feed. An empty feed is not an error.
func (f *RSSFetcher) Fetch(ctx context.Context, req fetcher.Request) ([]*feed.Node, error) {
	if req.Config.FeedURL == "" {
		return nil, &domain.FetchError{Source: req.SourceKey, Err: errors.New("feed url is not configured")}
	}

	body, err := f.client.Get(ctx, req.Config.FeedURL, req.Config.Headers)
	if err != nil {
		return nil, &domain.FetchError{Source: req.SourceKey, Err: err}
	}

	root, err := feed.Parse(feed.Sanitize(body))
	if err != nil {
		return nil, &domain.FetchError{Source: req.SourceKey, Err: err}
	}

	items := feed.ExtractItems(root)
	f.debug("feed parsed", "source", req.SourceKey, "root", root.Name, "items", len(items), "bytes", len(body))
	return items, nil
}

func (f *RSSFetcher) debug(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}
