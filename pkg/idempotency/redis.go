package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "agridesk:idempotency:"

// RedisStore keeps records in Redis with a TTL, so replays work across
// service instances and restarts.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store on the given client. A non-positive ttl
// defaults to 24 hours.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read idempotency record: %w", err)
	}

	var record Record

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal idempotency record: %w", err)
	}

	return &record, nil
}

func (s *RedisStore) Put(ctx context.Context, record *Record) error {
	if record.StoredAt.IsZero() {
		record.StoredAt = time.Now().UTC()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	err = s.client.Set(ctx, keyPrefix+record.Key, data, s.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to store idempotency record: %w", err)
	}

	return nil
}
