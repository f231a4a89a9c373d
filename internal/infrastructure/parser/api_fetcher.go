package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"DealScanner/internal/domain"
	"DealScanner/internal/feed"
	"DealScanner/internal/fetcher"
)

// APIFetcher delegates to a deal API fetcher selected by the source's fetcher reference.
// The set of references is fixed at startup.
type APIFetcher struct {
	apis   *fetcher.Registry
	logger *slog.Logger
}

var _ fetcher.Fetcher = (*APIFetcher)(nil)

// NewAPIFetcher wires the registry of API-specific fetchers.
func NewAPIFetcher(apis *fetcher.Registry, logger *slog.Logger) *APIFetcher {
	if apis == nil {
		apis = fetcher.NewRegistry()
	}
	return &APIFetcher{apis: apis, logger: logger}
}

// Name identifies the strategy inside the registry.
func (f *APIFetcher) Name() string {
	return string(domain.SourceAPI)
}

// Fetch resolves the fetcher reference and runs it.
func (f *APIFetcher) Fetch(ctx context.Context, req fetcher.Request) ([]*feed.Node, error) {
	api, err := f.apis.Resolve(req.Config.FetcherRef)
	if err != nil {
		return nil, &domain.FetchError{Source: req.SourceKey, Err: err}
	}

	items, err := api.Fetch(ctx, req)
	if err != nil {
		var fetchErr *domain.FetchError
		if errors.As(err, &fetchErr) {
			return nil, err
		}
		return nil, &domain.FetchError{Source: req.SourceKey, Err: err}
	}

	if f.logger != nil {
		f.logger.Debug("api fetched", "source", req.SourceKey, "fetcher", req.Config.FetcherRef, "items", len(items))
	}
	return items, nil
}

// itemKeys are the envelope members searched, in order, for the list of deals.
var itemKeys = []string{"items", "deals", "data", "results"}

// JSONFetcher reads a JSON deal API. The payload is either an array of deal objects or an
// object holding that array under one of itemKeys, or under options["itemsKey"].
type JSONFetcher struct {
	client Getter
}

var _ fetcher.Fetcher = (*JSONFetcher)(nil)

// NewJSONFetcher wires the HTTP getter.
func NewJSONFetcher(client Getter) *JSONFetcher {
	return &JSONFetcher{client: client}
}

// Name is the fetcher reference API sources use to select it.
func (f *JSONFetcher) Name() string {
	return "json"
}

// Fetch converts every deal object into a feed node named "item".
func (f *JSONFetcher) Fetch(ctx context.Context, req fetcher.Request) ([]*feed.Node, error) {
	endpoint := req.Config.FeedURL
	if endpoint == "" {
		endpoint = req.Config.Options["endpoint"]
	}
	if endpoint == "" {
		return nil, &domain.FetchError{Source: req.SourceKey, Err: errors.New("api endpoint is not configured")}
	}

	body, err := f.client.Get(ctx, endpoint, req.Config.Headers)
	if err != nil {
		return nil, &domain.FetchError{Source: req.SourceKey, Err: err}
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &domain.FetchError{Source: req.SourceKey, Err: fmt.Errorf("decode json: %w", err)}
	}

	list, err := itemList(payload, req.Config.Options["itemsKey"])
	if err != nil {
		return nil, &domain.FetchError{Source: req.SourceKey, Err: err}
	}

	items := make([]*feed.Node, 0, len(list))
	for _, el := range list {
		if _, ok := el.(map[string]any); !ok {
			continue
		}
		items = append(items, feed.FromJSON("item", el))
	}
	return items, nil
}

func itemList(payload any, key string) ([]any, error) {
	switch v := payload.(type) {
	case []any:
		return v, nil
	case map[string]any:
		keys := itemKeys
		if key != "" {
			keys = []string{key}
		}
		for _, k := range keys {
			if list, ok := v[k].([]any); ok {
				return list, nil
			}
		}
		return nil, errors.New("json payload has no item list")
	default:
		return nil, errors.New("json payload is neither an object nor an array")
	}
}
