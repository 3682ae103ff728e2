package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"exam-quiz-service/internal/app"
	"exam-quiz-service/internal/config"
	"exam-quiz-service/internal/infra/memory"
	mongostore "exam-quiz-service/internal/infra/mongo"
	pgstore "exam-quiz-service/internal/infra/postgres"
	redisstore "exam-quiz-service/internal/infra/redis"
	"exam-quiz-service/internal/infra/sqlite"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
)

// backend bundles the document store with the clients it was built from.
type backend struct {
	docs    app.DocumentStore
	redis   *redis.Client
	closers []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackend connects the document store selected by cfg.Store.Driver.
// A Redis client is created whenever an address is configured so that
// caching and attempt liveness can use it regardless of the driver.
func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	b := &backend{}
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = b.redis.Close() })
	}

	switch cfg.Store.Driver {
	case "memory":
		b.docs = memory.NewDocumentStore()
	case "redis":
		if b.redis == nil {
			return nil, fmt.Errorf("redis store selected but redis addr not configured")
		}
		b.docs = redisstore.NewDocumentStore(b.redis)
	case "postgres":
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			b.Close()
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		b.docs = pgstore.NewDocumentStore(pool)
	case "mongo":
		if cfg.Mongo.URI == "" {
			b.Close()
			return nil, fmt.Errorf("mongo store selected but mongo uri not configured")
		}
		client, err := mongostore.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		})
		b.docs = mongostore.NewDocumentStore(client.Database(cfg.Mongo.Database))
	case "sqlite":
		path := cfg.SQLite.Path
		if path == "" {
			path = "exam.db"
		}
		store, err := sqlite.Open(path)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = store.Close() })
		b.docs = store
	default:
		b.Close()
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	log.Printf("using %s document store", cfg.Store.Driver)
	return b, nil
}

func (b *backend) categoryRepository(ttl time.Duration) app.CategoryRepository {
	loader := app.NewDocumentCategoryLoader(b.docs)
	if b.redis != nil {
		return redisstore.NewCategoryRepository(b.redis, loader, ttl)
	}
	return memory.NewCategoryRepository(loader, ttl)
}

func (b *backend) attemptStore(grace time.Duration) app.AttemptRepository {
	if b.redis != nil {
		return redisstore.NewAttemptStore(b.redis, grace)
	}
	return memory.NewAttemptStore()
}
