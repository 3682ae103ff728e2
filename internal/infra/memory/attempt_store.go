package memory

import (
	"sync"

	"exam-quiz-service/internal/app"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]*app.Attempt
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[string]*app.Attempt),
	}
}

func (s *AttemptStore) Put(attempt *app.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[attempt.UserID()] = attempt
}

func (s *AttemptStore) Get(userID string) (*app.Attempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[userID]
	return attempt, ok
}

func (s *AttemptStore) DeleteIfFinished(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[userID]
	if !ok {
		return
	}
	if attempt.Finished() {
		delete(s.attempts, userID)
	}
}
