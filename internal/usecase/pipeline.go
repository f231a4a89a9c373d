package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"DealScanner/internal/domain"
	"DealScanner/internal/feed"
	"DealScanner/internal/ports"
)

// Normalizer turns one raw item into a validated deal.
type Normalizer interface {
	Normalize(item *feed.Node, sourceKey string) (domain.NormalizedDeal, error)
}

// Merger classifies one deal against the store.
type Merger interface {
	Process(ctx context.Context, deal domain.NormalizedDeal, sourceKey string) domain.Outcome
}

// PipelineDeps wires all driven adapters into the ingestion pipeline.
type PipelineDeps struct {
	Source     ports.SourceFetcher
	Store      ports.DealStore
	Normalizer Normalizer
	Merger     Merger
	Logger     *slog.Logger
}

// Pipeline runs one ingestion job: fetch, normalize, merge.
type Pipeline struct {
	source     ports.SourceFetcher
	store      ports.DealStore
	normalizer Normalizer
	merger     Merger
	logger     *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		source:     deps.Source,
		store:      deps.Store,
		normalizer: deps.Normalizer,
		merger:     deps.Merger,
		logger:     logger,
	}
}

// RunJob processes every item of the job's source in feed order. A returned error fails the
// whole job; item failures are only counted, so Created+Updated+Skipped+Errors equals the item count.
// A store that becomes unreachable mid-job fails the job with the items seen so far.
func (p *Pipeline) RunJob(ctx context.Context, job domain.IngestionJob) (domain.ProcessingResult, error) {
	var result domain.ProcessingResult
	if p.source == nil || p.store == nil || p.normalizer == nil || p.merger == nil {
		return result, errors.New("pipeline is not fully configured")
	}

	items, err := p.source.FetchSource(ctx, job)
	if err != nil {
		return result, err
	}

	if err := p.store.Ping(ctx); err != nil {
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		return result, err
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		deal, err := p.normalizer.Normalize(item, job.SourceKey)
		if err != nil {
			result.Record(domain.ActionError)
			p.logger.Warn("item rejected",
				"source", job.SourceKey,
				"title", item.ChildText("title"),
				"error", err,
			)
			continue
		}

		out := p.merger.Process(ctx, deal, job.SourceKey)
		result.Record(out.Action)
		if errors.Is(out.Err, domain.ErrStoreUnavailable) {
			// store lost mid-job.
			return result, fmt.Errorf("source %s: %w", job.SourceKey, out.Err)
		}
		if out.Err != nil {
			p.logger.Warn("item failed",
				"source", job.SourceKey,
				"url", deal.URL,
				"title", deal.Title,
				"error", out.Err,
			)
		}
	}

	return result, nil
}
