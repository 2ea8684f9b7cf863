package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces room-code reservations in a shared Redis.
const redisKeyPrefix = "speakup:roomcode:"

// RedisCodeReserver claims room codes in Redis so multiple server instances
// sharing one Redis never hand out the same code while it is live or in
// download cooldown.
type RedisCodeReserver struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCodeReserver reserves codes for ttl, which should cover the room's
// full lifetime including the download cooldown.
func NewRedisCodeReserver(rdb *redis.Client, ttl time.Duration) *RedisCodeReserver {
	return &RedisCodeReserver{rdb: rdb, ttl: ttl}
}

// Reserve atomically claims code. Returns false when another instance holds
// it.
func (r *RedisCodeReserver) Reserve(ctx context.Context, code string) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, redisKeyPrefix+code, "1", r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve room code %s: %w", code, err)
	}
	return ok, nil
}

// Release frees code early, e.g. when room creation fails after reservation.
func (r *RedisCodeReserver) Release(ctx context.Context, code string) error {
	if err := r.rdb.Del(ctx, redisKeyPrefix+code).Err(); err != nil {
		return fmt.Errorf("release room code %s: %w", code, err)
	}
	return nil
}
