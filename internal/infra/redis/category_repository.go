package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"exam-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CategoryLoader fetches categories from a backing store (e.g., document DB).
type CategoryLoader interface {
	LoadCategory(ctx context.Context, categoryID string) (domain.Category, error)
	LoadCategories(ctx context.Context) ([]domain.CategorySummary, error)
}

// CategoryRepository caches category JSON in Redis and falls back to a loader on cache miss.
// Categories are stored as: SET exam:category:{categoryID} {json} EX ttl
type CategoryRepository struct {
	client *redis.Client
	loader CategoryLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewCategoryRepository(client *redis.Client, loader CategoryLoader, ttl time.Duration) *CategoryRepository {
	return &CategoryRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CategoryRepository) ListCategories(ctx context.Context) ([]domain.CategorySummary, error) {
	return r.loader.LoadCategories(ctx)
}

func (r *CategoryRepository) GetCategory(ctx context.Context, categoryID string) (domain.Category, error) {
	key := r.key(categoryID)
	if category, ok := r.cached(ctx, key, categoryID); ok {
		return category, nil
	}

	result, err, _ := r.sf.Do(categoryID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if category, ok := r.cached(ctx, key, categoryID); ok {
			return category, nil
		}

		category, err := r.loader.LoadCategory(ctx, categoryID)
		if err != nil {
			return domain.Category{}, err
		}

		if data, err := json.Marshal(category); err == nil {
			// best-effort: a failed cache write only costs a reload
			_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		}
		return category, nil
	})
	if err != nil {
		return domain.Category{}, err
	}
	return result.(domain.Category), nil
}

// Invalidate drops a cached category, e.g. after reseeding.
func (r *CategoryRepository) Invalidate(ctx context.Context, categoryID string) error {
	return r.client.Del(ctx, r.key(categoryID)).Err()
}

func (r *CategoryRepository) cached(ctx context.Context, key, categoryID string) (domain.Category, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.Category{}, false
	}
	var category domain.Category
	if err := json.Unmarshal(raw, &category); err != nil {
		return domain.Category{}, false
	}
	category.ID = categoryID
	return category, true
}

func (r *CategoryRepository) key(categoryID string) string {
	return "exam:category:" + categoryID
}

func (r *CategoryRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
