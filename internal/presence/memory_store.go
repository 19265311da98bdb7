package presence

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps last-seen in process. Used when MongoDB is disabled.
type MemoryStore struct {
	mu   sync.RWMutex
	seen map[uint64]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[uint64]time.Time)}
}

func (s *MemoryStore) SaveLastSeen(_ context.Context, userID uint64, at time.Time) error {
	s.mu.Lock()
	s.seen[userID] = at
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LastSeen(_ context.Context, userIDs []uint64) (map[uint64]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint64]time.Time, len(userIDs))
	for _, id := range userIDs {
		if at, ok := s.seen[id]; ok {
			out[id] = at
		}
	}
	return out, nil
}
