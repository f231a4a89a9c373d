package dedup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DealScanner/internal/domain"
	"DealScanner/internal/infrastructure/storage"
)

func headphones() domain.NormalizedDeal {
	return domain.NormalizedDeal{
		Title:       "50% Off Headphones",
		URL:         "https://x.com/d1",
		Description: "Amazon has headphones w/ code SAVE50",
		Merchant:    "Amazon",
		ExternalID:  "abc123",
		CouponCode:  "SAVE50",
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	d := headphones()
	d.Source = "sd"
	assert.Equal(t, "ext:sd:abc123", Key(d))

	d.ExternalID = d.URL
	assert.Equal(t, "url:https://x.com/d1", Key(d))

	d.ExternalID = ""
	d.URL = "HTTPS://X.com:443/d1/?utm_source=rss&b=2&a=1#frag"
	assert.Equal(t, "url:https://x.com/d1?a=1&b=2", Key(d))
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://Shop.Example/":                "https://shop.example",
		"http://shop.example:80/p?gclid=1&x=y": "http://shop.example/p?x=y",
		"https://shop.example:8443/p":          "https://shop.example:8443/p",
		"not a url":                            "not a url",
		"https://shop.example/p?b=2&a=3&a=1":   "https://shop.example/p?a=1&a=3&b=2",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeURL(in), in)
	}
}

func TestScorer(t *testing.T) {
	t.Parallel()

	price := 10.0
	full := domain.NormalizedDeal{
		Price:       &price,
		Merchant:    "Amazon",
		Category:    "Audio",
		CouponCode:  "SAVE",
		ImageURL:    "https://img.example/a.jpg",
		Description: "A description that is certainly long enough to count.",
	}

	s := NewScorer(DefaultWeights(), 0)
	assert.InDelta(t, 1.0, s.Score(full), 1e-9)
	assert.InDelta(t, 0.0, s.Score(domain.NormalizedDeal{}), 1e-9)

	half := domain.NormalizedDeal{Merchant: "A", Category: "B", CouponCode: "C"}
	assert.InDelta(t, 0.5, s.Score(half), 1e-9)

	weighted := NewScorer(Weights{Merchant: 3, Image: 1}, 0)
	assert.InDelta(t, 0.75, weighted.Score(half), 1e-9)

	fallback := NewScorer(Weights{}, 0)
	assert.InDelta(t, 0.5, fallback.Score(half), 1e-9)
}

func TestEngineCreateThenSkip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryRepository()
	engine := NewEngine(store, nil, nil)

	first := engine.Process(ctx, headphones(), "sd")
	require.NoError(t, first.Err)
	assert.Equal(t, domain.ActionCreated, first.Action)

	second := engine.Process(ctx, headphones(), "sd")
	require.NoError(t, second.Err)
	assert.Equal(t, domain.ActionSkipped, second.Action)
	assert.Equal(t, first.ID, second.ID)

	records := store.All()
	require.Len(t, records, 1)
	assert.Equal(t, domain.StatusPending, records[0].Status)
	assert.Equal(t, "sd", records[0].Deal.Source)
	assert.Greater(t, records[0].QualityScore, 0.0)
	assert.LessOrEqual(t, records[0].QualityScore, 1.0)
}

func TestEngineUpdatePreservesStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryRepository()
	engine := NewEngine(store, nil, nil)

	created := engine.Process(ctx, headphones(), "sd")
	require.Equal(t, domain.ActionCreated, created.Action)
	require.NoError(t, store.SetStatus(created.ID, domain.StatusApproved))

	changed := headphones()
	changed.CouponCode = "SAVE60"
	price := 49.99
	changed.Price = &price
	exp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	changed.ExpiresAt = &exp

	out := engine.Process(ctx, changed, "sd")
	require.NoError(t, out.Err)
	assert.Equal(t, domain.ActionUpdated, out.Action)

	records := store.All()
	require.Len(t, records, 1)
	assert.Equal(t, domain.StatusApproved, records[0].Status)
	assert.Equal(t, "SAVE60", records[0].Deal.CouponCode)
	require.NotNil(t, records[0].Deal.Price)
	assert.InDelta(t, 49.99, *records[0].Deal.Price, 1e-9)

	// a later observation without a coupon does not erase the stored one.
	bare := headphones()
	bare.CouponCode = ""
	bare.Price = &price
	bare.ExpiresAt = &exp
	again := engine.Process(ctx, bare, "sd")
	assert.Equal(t, domain.ActionSkipped, again.Action)
}

func TestDiffIgnoresNonMaterialFields(t *testing.T) {
	t.Parallel()

	stored := headphones()
	incoming := headphones()
	incoming.Description = "different words"
	incoming.ImageURL = "https://img.example/new.jpg"

	assert.True(t, Diff(stored, incoming).Empty())

	incoming.Title = "60% Off Headphones"
	assert.Equal(t, []string{"title"}, Diff(stored, incoming).Fields())
}

// racingStore reports no record on the first lookup, then rejects the create as a duplicate,
// as happens when another job commits the same key in between.
type racingStore struct {
	*storage.MemoryRepository
	hide bool
}

func (s *racingStore) FindByDedupKey(ctx context.Context, key string) (*domain.DealRecord, error) {
	if s.hide {
		s.hide = false
		return nil, nil
	}
	return s.MemoryRepository.FindByDedupKey(ctx, key)
}

func TestEngineCreateRaceFallsBackToUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := storage.NewMemoryRepository()
	winner := NewEngine(mem, nil, nil)
	require.Equal(t, domain.ActionCreated, winner.Process(ctx, headphones(), "sd").Action)

	store := &racingStore{MemoryRepository: mem, hide: true}
	loser := NewEngine(store, nil, nil)

	same := loser.Process(ctx, headphones(), "sd")
	require.NoError(t, same.Err)
	assert.Equal(t, domain.ActionSkipped, same.Action)

	store.hide = true
	changed := headphones()
	changed.Title = "55% Off Headphones"
	upd := loser.Process(ctx, changed, "sd")
	require.NoError(t, upd.Err)
	assert.Equal(t, domain.ActionUpdated, upd.Action)

	assert.Len(t, mem.All(), 1)
}

func TestEngineConcurrentCreatesYieldOneRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryRepository()

	deal := headphones()
	deal.ExternalID = ""

	var wg sync.WaitGroup
	outcomes := make([]domain.Outcome, 16)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			source := "a"
			if i%2 == 1 {
				source = "b"
			}
			outcomes[i] = NewEngine(store, nil, nil).Process(ctx, deal, source)
		}(i)
	}
	wg.Wait()

	created := 0
	for _, o := range outcomes {
		require.NoError(t, o.Err)
		if o.Action == domain.ActionCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)
	assert.Len(t, store.All(), 1)
}

type brokenStore struct {
	storage.MemoryRepository
	findErr error
	panics  bool
}

func (s *brokenStore) FindByDedupKey(ctx context.Context, key string) (*domain.DealRecord, error) {
	if s.panics {
		panic("corrupt row")
	}
	return nil, s.findErr
}

func TestEngineReportsStoreFailuresAsItemErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	failing := NewEngine(&brokenStore{findErr: errors.New("connection reset")}, nil, nil)
	out := failing.Process(ctx, headphones(), "sd")
	assert.Equal(t, domain.ActionError, out.Action)
	var perr *domain.PersistenceError
	assert.True(t, errors.As(out.Err, &perr))
	assert.Equal(t, "find", perr.Op)

	panicking := NewEngine(&brokenStore{panics: true}, nil, nil)
	out = panicking.Process(ctx, headphones(), "sd")
	assert.Equal(t, domain.ActionError, out.Action)
	assert.ErrorContains(t, out.Err, "panic")
}
