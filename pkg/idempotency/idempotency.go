// Package idempotency stores request results keyed by client-supplied
// idempotency keys so retried requests replay the original outcome instead
// of re-running side effects.
package idempotency

import (
	"context"
	"time"
)

// Record is the stored outcome of a completed request.
type Record struct {
	Key        string    `json:"key"`
	StatusCode int       `json:"status_code"`
	Body       []byte    `json:"body"`
	StoredAt   time.Time `json:"stored_at"`
}

// Store persists request outcomes for replay.
//
// Get returns (nil, nil) when the key is unknown or expired.
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Put(ctx context.Context, record *Record) error
}
