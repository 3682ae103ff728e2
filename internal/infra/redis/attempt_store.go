package redis

import (
	"context"
	"sync"
	"time"

	"exam-quiz-service/internal/app"
	"github.com/redis/go-redis/v9"
)

const minLivenessTTL = time.Second

// AttemptStore is a Redis-aware implementation of app.AttemptRepository.
// Notes:
//   - Attempts stay in a local map; their countdown and subscribers are in-process.
//   - Redis holds a liveness marker per attempt that expires with its deadline,
//     so operators can see which users are mid-test across instances.
type AttemptStore struct {
	client *redis.Client
	grace  time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	attempts map[string]*app.Attempt
}

func NewAttemptStore(client *redis.Client, grace time.Duration) *AttemptStore {
	return &AttemptStore{
		client:   client,
		grace:    grace,
		now:      time.Now,
		attempts: make(map[string]*app.Attempt),
	}
}

func (s *AttemptStore) Put(attempt *app.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[attempt.UserID()] = attempt

	// a zero expiration would make the marker permanent
	ttl := attempt.Deadline().Sub(s.now()) + s.grace
	if ttl < minLivenessTTL {
		ttl = minLivenessTTL
	}
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(attempt.UserID()), attempt.Deadline().Unix(), ttl).Err()
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
		_ = s.client.Del(context.Background(), s.key(userID)).Err()
	}
}

func (s *AttemptStore) key(userID string) string {
	return "exam:attempt:" + userID
}
