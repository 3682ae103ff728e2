package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"exam-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CategoryLoader fetches categories from a backing store (e.g., document DB).
type CategoryLoader interface {
	LoadCategory(ctx context.Context, categoryID string) (domain.Category, error)
	LoadCategories(ctx context.Context) ([]domain.CategorySummary, error)
}

// CategoryRepository caches categories with TTL to avoid repeated DB hits.
// The category list is not cached; it is small and should reflect new banks.
type CategoryRepository struct {
	loader CategoryLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedCategory
}

type cachedCategory struct {
	category  domain.Category
	expiresAt time.Time
}

func NewCategoryRepository(loader CategoryLoader, ttl time.Duration) *CategoryRepository {
	return &CategoryRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedCategory),
	}
}

func (r *CategoryRepository) ListCategories(ctx context.Context) ([]domain.CategorySummary, error) {
	return r.loader.LoadCategories(ctx)
}

func (r *CategoryRepository) GetCategory(ctx context.Context, categoryID string) (domain.Category, error) {
	if category, ok := r.cached(categoryID); ok {
		return category, nil
	}

	result, err, _ := r.sf.Do(categoryID, func() (interface{}, error) {
		if category, ok := r.cached(categoryID); ok {
			return category, nil
		}

		category, err := r.loader.LoadCategory(ctx, categoryID)
		if err != nil {
			return domain.Category{}, err
		}

		r.mu.Lock()
		r.cache[categoryID] = cachedCategory{
			category:  category,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return category, nil
	})
	if err != nil {
		return domain.Category{}, err
	}
	return result.(domain.Category), nil
}

// Invalidate drops a cached category, e.g. after reseeding.
func (r *CategoryRepository) Invalidate(categoryID string) {
	r.mu.Lock()
	delete(r.cache, categoryID)
	r.mu.Unlock()
}

func (r *CategoryRepository) cached(categoryID string) (domain.Category, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[categoryID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Category{}, false
	}
	return entry.category, true
}

func (r *CategoryRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
