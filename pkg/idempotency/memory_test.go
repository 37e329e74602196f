package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGet(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Record{
		Key:        "req-1",
		StatusCode: 201,
		Body:       []byte(`{"tenant_id":"tenant-1"}`),
	}))

	record, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 201, record.StatusCode)
	assert.False(t, record.StoredAt.IsZero())
}

func TestMemoryStore_UnknownKey(t *testing.T) {
	store := NewMemoryStore(time.Minute)

	record, err := store.Get(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Record{
		Key:        "req-old",
		StatusCode: 201,
		StoredAt:   time.Now().UTC().Add(-2 * time.Minute),
	}))

	record, err := store.Get(ctx, "req-old")
	require.NoError(t, err)
	assert.Nil(t, record)
}
