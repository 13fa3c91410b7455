package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestAcquire_SecondCallRejected(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute)

	key := "test-" + uuid.NewString()
	defer client.Del(ctx, idempotencyKeyPrefix+key)

	token, ok, err := adapter.Acquire(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok, "first acquire should win")
	assert.NotEmpty(t, token)

	_, ok, err = adapter.Acquire(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire should be rejected")

	ttl, err := client.TTL(ctx, idempotencyKeyPrefix+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRelease_AllowsRetry(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute)

	key := "test-" + uuid.NewString()
	defer client.Del(ctx, idempotencyKeyPrefix+key)

	token, ok, err := adapter.Acquire(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, adapter.Release(ctx, key, token))

	_, ok, err = adapter.Acquire(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok, "released key should be claimable again")
}

func TestRelease_LeavesLaterClaim(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute)

	key := "test-" + uuid.NewString()
	defer client.Del(ctx, idempotencyKeyPrefix+key)

	stale, ok, err := adapter.Acquire(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	// The first claim lapses and the same adapter claims the key again.
	require.NoError(t, client.Del(ctx, idempotencyKeyPrefix+key).Err())
	current, ok, err := adapter.Acquire(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, stale, current)

	require.NoError(t, adapter.Release(ctx, key, stale))

	held, err := client.Get(ctx, idempotencyKeyPrefix+key).Result()
	require.NoError(t, err)
	assert.Equal(t, current, held)
}

func TestAcquire_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute)

	key := "concurrent-" + uuid.NewString()
	defer client.Del(ctx, idempotencyKeyPrefix+key)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	concurrency := 100

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := adapter.Acquire(ctx, key)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), successCount.Load(), "only one acquire should succeed")
}
