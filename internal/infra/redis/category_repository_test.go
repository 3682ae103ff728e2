package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"exam-quiz-service/internal/domain"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestCategoryRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		CategoryLoader: newStaticLoader(map[string]domain.Category{
			"math": sampleCategory(),
		}),
	}
	repo := NewCategoryRepository(client, loader, time.Minute)

	category, err := repo.GetCategory(context.Background(), "math")
	if err != nil {
		t.Fatalf("get category: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("exam:category:math") {
		t.Fatalf("expected category cached in redis")
	}
	if ttl := mr.TTL("exam:category:math"); ttl < time.Minute {
		t.Fatalf("expected ttl of at least a minute, got %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	cached, err := repo.GetCategory(context.Background(), "math")
	if err != nil {
		t.Fatalf("get cached category: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if cached.ID != "math" || len(cached.Tests) != len(category.Tests) || cached.Tests[1].CorrectAnswer != "9" {
		t.Fatalf("cached category differs: %+v", cached)
	}

	if err := repo.Invalidate(context.Background(), "math"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = repo.GetCategory(context.Background(), "math")
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls)
	}
}

func TestCategoryRepositoryMissDoesNotCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewCategoryRepository(newClient(mr), newStaticLoader(nil), time.Minute)
	if _, err := repo.GetCategory(context.Background(), "nope"); !errors.Is(err, domain.ErrCategoryNotFound) {
		t.Fatalf("expected category not found, got %v", err)
	}
	if mr.Exists("exam:category:nope") {
		t.Fatalf("missing category must not be cached")
	}
}

type countingLoader struct {
	CategoryLoader
	calls int
}

func (l *countingLoader) LoadCategory(ctx context.Context, categoryID string) (domain.Category, error) {
	l.calls++
	return l.CategoryLoader.LoadCategory(ctx, categoryID)
}

func sampleCategory() domain.Category {
	return domain.Category{
		Name:         "Mathematics",
		MaxQuestions: 200,
		Tests: []domain.Question{
			{Prompt: "What is 2 + 2?", Options: []string{"3", "4"}, CorrectAnswer: "4"},
			{Prompt: "What is 3 * 3?", Options: []string{"6", "9"}, CorrectAnswer: "9"},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}

type staticLoader struct {
	categories map[string]domain.Category
}

func newStaticLoader(categories map[string]domain.Category) *staticLoader {
	return &staticLoader{categories: categories}
}

func (l *staticLoader) LoadCategory(_ context.Context, categoryID string) (domain.Category, error) {
	if category, ok := l.categories[categoryID]; ok {
		category.ID = categoryID
		return category, nil
	}
	return domain.Category{}, domain.ErrCategoryNotFound
}

func (l *staticLoader) LoadCategories(_ context.Context) ([]domain.CategorySummary, error) {
	return nil, nil
}
