package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix  = "checkout:idem:"
	defaultIdempotencyTTL = 24 * time.Hour
)

// releaseScript deletes the key only while it still carries the token of
// the claim being released, so a key that expired and was claimed again,
// even by this process, is left alone.
var releaseScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]

if redis.call('GET', key) == token then
	return redis.call('DEL', key)
end

return 0
`)

// RedisAdapter implements port.IdempotencyGuard.
type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client, ttl time.Duration) *RedisAdapter {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &RedisAdapter{client: client, ttl: ttl}
}

func (r *RedisAdapter) Acquire(ctx context.Context, key string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, token, r.ttl).Result()
	if err != nil {
		return "", false, errors.Wrap(err, "redis setnx")
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *RedisAdapter) Release(ctx context.Context, key, token string) error {
	err := releaseScript.Run(ctx, r.client, []string{idempotencyKeyPrefix + key}, token).Err()
	return errors.Wrap(err, "redis release")
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
