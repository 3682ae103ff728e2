package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"exam-quiz-service/internal/domain"
	"github.com/google/uuid"
)

// DocumentStore is an in-memory implementation of app.DocumentStore.
type DocumentStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]json.RawMessage
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{collections: make(map[string]map[string]json.RawMessage)}
}

func (s *DocumentStore) List(_ context.Context, collection string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]domain.Document, 0, len(s.collections[collection]))
	for id, data := range s.collections[collection] {
		docs = append(docs, domain.Document{ID: id, Data: clone(data)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *DocumentStore) Get(_ context.Context, collection, id string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.collections[collection][id]
	if !ok {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	return domain.Document{ID: id, Data: clone(data)}, nil
}

func (s *DocumentStore) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (s *DocumentStore) Set(_ context.Context, collection, id string, fields map[string]any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]json.RawMessage)
		s.collections[collection] = docs
	}
	docs[id] = data
	return nil
}

func (s *DocumentStore) Update(_ context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.collections[collection][id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	merged, err := domain.MergeFields(existing, fields)
	if err != nil {
		return err
	}
	s.collections[collection][id] = merged
	return nil
}

func clone(data json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(data))
	copy(out, data)
	return out
}
