package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"DealScanner/internal/domain"
	"DealScanner/internal/feed"
	"DealScanner/internal/fetcher"
	"DealScanner/internal/ports"
)

// SourceCatalog implements SourceFetcher over the configured sources and registered strategies.
// It is immutable after construction.
type SourceCatalog struct {
	registry *fetcher.Registry
	sources  map[string]domain.SourceDescriptor
	keys     []string
	logger   *slog.Logger
}

var _ ports.SourceFetcher = (*SourceCatalog)(nil)

// NewSourceCatalog wires the strategy registry with config-defined sources.
func NewSourceCatalog(reg *fetcher.Registry, descriptors []domain.SourceDescriptor, log *slog.Logger) (*SourceCatalog, error) {
	if reg == nil {
		return nil, errors.New("fetcher registry is not configured")
	}

	c := &SourceCatalog{
		registry: reg,
		sources:  make(map[string]domain.SourceDescriptor, len(descriptors)),
		logger:   log,
	}
	for _, d := range descriptors {
		if _, dup := c.sources[d.Key]; dup {
			return nil, fmt.Errorf("source %s is declared twice", d.Key)
		}
		if _, err := reg.Resolve(string(d.Type)); err != nil {
			return nil, fmt.Errorf("source %s: %w", d.Key, err)
		}
		c.sources[d.Key] = d
		c.keys = append(c.keys, d.Key)
	}
	sort.Strings(c.keys)
	return c, nil
}

// Keys lists the configured source keys in sorted order.
func (c *SourceCatalog) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Descriptor returns the configured source.
func (c *SourceCatalog) Descriptor(key string) (domain.SourceDescriptor, bool) {
	d, ok := c.sources[key]
	return d, ok
}

// FetchSource runs the strategy of the job's source. A job that carries its own config
// uses it instead of the catalog's.
func (c *SourceCatalog) FetchSource(ctx context.Context, job domain.IngestionJob) ([]*feed.Node, error) {
	desc, ok := c.sources[job.SourceKey]
	if !ok {
		return nil, fmt.Errorf("source %s: %w", job.SourceKey, domain.ErrUnknownSource)
	}

	strategy, err := c.registry.Resolve(string(desc.Type))
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", job.SourceKey, err)
	}

	cfg := job.Config
	if cfg.IsZero() {
		cfg = desc.Config
	}

	c.debug("fetch source", "source", desc.Key, "type", desc.Type, "fetcher", strategy.Name())
	items, err := strategy.Fetch(ctx, fetcher.Request{SourceKey: desc.Key, Config: cfg})
	if err != nil {
		var fetchErr *domain.FetchError
		if !errors.As(err, &fetchErr) {
			err = &domain.FetchError{Source: desc.Key, Err: err}
		}
		return nil, err
	}

	c.debug("source produced items", "source", desc.Key, "count", len(items))
	return items, nil
}

func (c *SourceCatalog) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
