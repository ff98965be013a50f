package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/Rrens/collab-hub/internal/config"
	"github.com/Rrens/collab-hub/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)

	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)

	client, err := NewClient(context.Background(), config.RedisConfig{Host: s.Host(), Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, s
}

func TestNewClient_Unreachable(t *testing.T) {
	s := miniredis.RunT(t)
	port, _ := strconv.Atoi(s.Port())
	s.Close()

	_, err := NewClient(context.Background(), config.RedisConfig{Host: "127.0.0.1", Port: port})
	assert.Error(t, err)
}

func TestConnectionRecordStore_CreateTouchDelete(t *testing.T) {
	client, s := setupTestRedis(t)
	store := NewConnectionRecordStore(client, time.Minute)
	ctx := context.Background()

	now := time.Now().UTC()
	rec := &domain.ConnectionRecord{
		ConnectionID: uuid.New(),
		SessionID:    uuid.New(),
		UserID:       uuid.New(),
		TeamID:       uuid.New(),
		ConnectedAt:  now,
		LastActiveAt: now,
	}
	require.NoError(t, store.Create(ctx, rec))
	assert.Equal(t, time.Minute, s.TTL(recordKey(rec.ConnectionID)))

	s.FastForward(40 * time.Second)
	later := now.Add(40 * time.Second)
	require.NoError(t, store.Touch(ctx, rec.ConnectionID, later))
	assert.Equal(t, time.Minute, s.TTL(recordKey(rec.ConnectionID)))

	got, err := store.Get(ctx, rec.ConnectionID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.LastActiveAt.Equal(later))
	assert.Equal(t, rec.TeamID, got.TeamID)

	require.NoError(t, store.Delete(ctx, rec.ConnectionID))
	assert.False(t, s.Exists(recordKey(rec.ConnectionID)))

	// Deleting twice is harmless
	assert.NoError(t, store.Delete(ctx, rec.ConnectionID))
}

func TestConnectionRecordStore_Expiry(t *testing.T) {
	client, s := setupTestRedis(t)
	store := NewConnectionRecordStore(client, time.Minute)
	ctx := context.Background()

	rec := &domain.ConnectionRecord{ConnectionID: uuid.New(), TeamID: uuid.New(), ConnectedAt: time.Now()}
	require.NoError(t, store.Create(ctx, rec))

	s.FastForward(2 * time.Minute)

	got, err := store.Get(ctx, rec.ConnectionID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Touching an expired record does not resurrect it
	require.NoError(t, store.Touch(ctx, rec.ConnectionID, time.Now()))
	assert.False(t, s.Exists(recordKey(rec.ConnectionID)))
}

func TestRateLimiter_Allow(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewRateLimiter(client, 2, 1)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	limiter.now = func() time.Time { return fixed }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, remaining, reset, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 2-i, remaining)
		assert.Equal(t, time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC), reset)
	}

	allowed, remaining, _, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Zero(t, remaining)

	// Other keys have their own window
	allowed, _, _, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, limiter.Reset(ctx, "10.0.0.1"))
	allowed, _, _, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)

	// Next minute starts a fresh window
	limiter.now = func() time.Time { return fixed.Add(time.Minute) }
	allowed, remaining, _, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 2, remaining)
}
