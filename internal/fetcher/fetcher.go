package fetcher

import (
	"context"
	"fmt"
	"sort"

	"DealScanner/internal/domain"
	"DealScanner/internal/feed"
)

// Request carries everything a strategy needs to retrieve one source.
type Request struct {
	SourceKey string
	Config    domain.SourceConfig
}

// Fetcher captures a single retrieval strategy (rss, api).
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, req Request) ([]*feed.Node, error)
}

// Registry keeps a mapping from strategy names to their implementations.
type Registry struct {
	fetchers map[string]Fetcher
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{fetchers: map[string]Fetcher{}}
}

// Register adds or replaces a fetcher implementation.
func (r *Registry) Register(f Fetcher) {
	if r.fetchers == nil {
		r.fetchers = map[string]Fetcher{}
	}
	r.fetchers[f.Name()] = f
}

// Resolve returns a fetcher by name or an error wrapping domain.ErrUnknownFetcher.
func (r *Registry) Resolve(name string) (Fetcher, error) {
	if f, ok := r.fetchers[name]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("fetcher %s: %w", name, domain.ErrUnknownFetcher)
}

// Names lists registered strategies in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.fetchers))
	for name := range r.fetchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
