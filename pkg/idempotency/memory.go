package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-instance
// development setups.
type MemoryStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	records map[string]*Record
}

// NewMemoryStore creates a store with the given TTL. A non-positive ttl
// defaults to 24 hours.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &MemoryStore{ttl: ttl, records: make(map[string]*Record)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[key]
	if !ok {
		return nil, nil
	}

	if time.Since(record.StoredAt) > s.ttl {
		return nil, nil
	}

	return record, nil
}

func (s *MemoryStore) Put(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.StoredAt.IsZero() {
		record.StoredAt = time.Now().UTC()
	}

	s.records[record.Key] = record

	return nil
}
