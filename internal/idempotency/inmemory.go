package idempotency

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// InMemoryStore keeps processed event ids in a process-local expiring cache.
type InMemoryStore struct {
	cache *cache.Cache
}

func NewInMemoryStore(retention time.Duration) *InMemoryStore {
	return &InMemoryStore{
		cache: cache.New(retention, retention/4),
	}
}

// Claim relies on cache.Add failing for an existing, unexpired key, which makes the
// check-and-set atomic.
func (s *InMemoryStore) Claim(_ context.Context, eventID string) (bool, error) {
	if err := s.cache.Add(key(eventID), time.Now().UTC(), cache.DefaultExpiration); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *InMemoryStore) Release(_ context.Context, eventID string) error {
	s.cache.Delete(key(eventID))
	return nil
}
