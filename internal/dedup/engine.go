package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
)

const priceEpsilon = 0.005

// Engine decides whether a normalized deal creates, updates or leaves a stored record.
type Engine struct {
	store  ports.DealStore
	scorer *Scorer
	logger *slog.Logger
}

// NewEngine wires the store and scorer; a nil scorer uses default weights.
func NewEngine(store ports.DealStore, scorer *Scorer, logger *slog.Logger) *Engine {
	if scorer == nil {
		scorer = NewScorer(DefaultWeights(), DefaultMinDescriptionLength)
	}
	return &Engine{store: store, scorer: scorer, logger: logger}
}

// Process classifies one deal. It never panics and never returns a job-level error:
// every failure becomes an ActionError outcome.
func (e *Engine) Process(ctx context.Context, deal domain.NormalizedDeal, sourceKey string) (out domain.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = domain.Outcome{Action: domain.ActionError, Err: fmt.Errorf("process %s: panic: %v", deal.URL, r)}
		}
	}()

	deal.Source = sourceKey
	key := Key(deal)

	existing, err := e.store.FindByDedupKey(ctx, key)
	if err != nil {
		return failed(&domain.PersistenceError{Op: "find", Key: key, Err: err})
	}

	if existing == nil {
		record, err := e.store.Create(ctx, key, deal, e.scorer.Score(deal))
		if err == nil {
			e.debug("deal created", "key", key, "id", record.ID, "quality_score", record.QualityScore)
			return domain.Outcome{Action: domain.ActionCreated, ID: record.ID}
		}
		if !errors.Is(err, domain.ErrDuplicateKey) {
			return failed(&domain.PersistenceError{Op: "create", Key: key, Err: err})
		}

		// lost a create race against another job; the winner's record is now the one to merge into.
		existing, err = e.store.FindByDedupKey(ctx, key)
		if err != nil {
			return failed(&domain.PersistenceError{Op: "find", Key: key, Err: err})
		}
		if existing == nil {
			return failed(&domain.PersistenceError{Op: "find", Key: key, Err: domain.ErrNotFound})
		}
	}

	update := Diff(existing.Deal, deal)
	if update.Empty() {
		return domain.Outcome{Action: domain.ActionSkipped, ID: existing.ID}
	}

	record, err := e.store.Update(ctx, existing.ID, update)
	if err != nil {
		return failed(&domain.PersistenceError{Op: "update", Key: key, Err: err})
	}
	e.debug("deal updated", "key", key, "id", record.ID, "fields", update.Fields())
	return domain.Outcome{Action: domain.ActionUpdated, ID: record.ID}
}

// Diff returns the material fields of incoming that differ from stored.
// Empty incoming values never erase stored ones.
func Diff(stored, incoming domain.NormalizedDeal) domain.DealUpdate {
	var u domain.DealUpdate

	if incoming.Title != "" && incoming.Title != stored.Title {
		title := incoming.Title
		u.Title = &title
	}
	if incoming.Price != nil && (stored.Price == nil || math.Abs(*incoming.Price-*stored.Price) > priceEpsilon) {
		price := *incoming.Price
		u.Price = &price
	}
	if incoming.CouponCode != "" && incoming.CouponCode != stored.CouponCode {
		code := incoming.CouponCode
		u.CouponCode = &code
	}
	if incoming.ExpiresAt != nil && (stored.ExpiresAt == nil || !incoming.ExpiresAt.Equal(*stored.ExpiresAt)) {
		exp := *incoming.ExpiresAt
		u.ExpiresAt = &exp
	}

	return u
}

func failed(err error) domain.Outcome {
	return domain.Outcome{Action: domain.ActionError, Err: err}
}

func (e *Engine) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}
