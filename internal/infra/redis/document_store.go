package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"exam-quiz-service/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const maxUpdateRetries = 3

// DocumentStore keeps each document as a JSON string and indexes ids per collection:
//
//	SET  doc:{collection}:{id} {json}
//	SADD docs:{collection}     {id}
type DocumentStore struct {
	client *redis.Client
}

func NewDocumentStore(client *redis.Client) *DocumentStore {
	return &DocumentStore{client: client}
}

func (s *DocumentStore) List(ctx context.Context, collection string) ([]domain.Document, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	if len(ids) == 0 {
		return []domain.Document{}, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(collection, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}

	docs := make([]domain.Document, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// stale index entry
			continue
		}
		docs = append(docs, domain.Document{ID: ids[i], Data: []byte(raw)})
	}
	return docs, nil
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (domain.Document, error) {
	raw, err := s.client.Get(ctx, s.docKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return domain.Document{ID: id, Data: raw}, nil
}

func (s *DocumentStore) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (s *DocumentStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	data, err := domain.MergeFields(nil, fields)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.docKey(collection, id), []byte(data), 0)
		pipe.SAdd(ctx, s.indexKey(collection), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update merges fields under WATCH so concurrent writers cannot lose updates.
func (s *DocumentStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	key := s.docKey(collection, id)
	txf := func(tx *redis.Tx) error {
		existing, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrDocumentNotFound
		}
		if err != nil {
			return err
		}
		merged, err := domain.MergeFields(existing, fields)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, []byte(merged), 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
			return fmt.Errorf("update %s/%s: %w", collection, id, err)
		}
		return err
	}
	return fmt.Errorf("update %s/%s: too much contention", collection, id)
}

func (s *DocumentStore) docKey(collection, id string) string {
	return "doc:" + collection + ":" + id
}

func (s *DocumentStore) indexKey(collection string) string {
	return "docs:" + collection
}
