package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
)

// MemoryRepository is a process-local DealStore with the same uniqueness rule as the Postgres table.
type MemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	byKey  map[string]*domain.DealRecord
	byID   map[int64]*domain.DealRecord
}

var _ ports.DealStore = (*MemoryRepository)(nil)

// NewMemoryRepository builds an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byKey: map[string]*domain.DealRecord{},
		byID:  map[int64]*domain.DealRecord{},
	}
}

// FindByDedupKey returns a copy of the record or nil.
func (r *MemoryRepository) FindByDedupKey(ctx context.Context, key string) (*domain.DealRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byKey[key]
	if !ok {
		return nil, nil
	}
	out := cloneRecord(*rec)
	return &out, nil
}

// Create inserts a pending record.
func (r *MemoryRepository) Create(ctx context.Context, key string, deal domain.NormalizedDeal, qualityScore float64) (domain.DealRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[key]; exists {
		return domain.DealRecord{}, domain.ErrDuplicateKey
	}

	r.nextID++
	now := time.Now().UTC()
	rec := cloneRecord(domain.DealRecord{
		ID:           r.nextID,
		DedupKey:     key,
		Deal:         deal,
		Status:       domain.StatusPending,
		QualityScore: qualityScore,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	r.byKey[key] = &rec
	r.byID[rec.ID] = &rec

	return cloneRecord(rec), nil
}

// Update applies the changed fields in place.
func (r *MemoryRepository) Update(ctx context.Context, id int64, update domain.DealUpdate) (domain.DealRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return domain.DealRecord{}, domain.ErrNotFound
	}
	rec.Deal = update.Apply(rec.Deal)
	rec.UpdatedAt = time.Now().UTC()

	return cloneRecord(*rec), nil
}

// Ping always succeeds.
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// All returns every record ordered by id.
func (r *MemoryRepository) All() []domain.DealRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.DealRecord, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, cloneRecord(*rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetStatus mimics the external moderation workflow; used to check status is preserved.
func (r *MemoryRepository) SetStatus(id int64, status domain.DealStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Status = status
	return nil
}

func cloneRecord(rec domain.DealRecord) domain.DealRecord {
	d := rec.Deal
	if d.Price != nil {
		p := *d.Price
		d.Price = &p
	}
	if d.PublishedAt != nil {
		t := *d.PublishedAt
		d.PublishedAt = &t
	}
	if d.ExpiresAt != nil {
		t := *d.ExpiresAt
		d.ExpiresAt = &t
	}
	rec.Deal = d
	return rec
}
