package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a Redis implementation of the ports.Locker using SET NX PX.
type Locker struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ ports.Locker = (*Locker)(nil)

// NewLocker namespaces every key under prefix.
func NewLocker(rdb redis.UniversalClient, prefix string) *Locker {
	return &Locker{rdb: rdb, prefix: prefix}
}

// Acquire implements ports.Locker.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	fullKey := l.prefix + key
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SETNX failed: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrLockNotAcquired, key)
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.rdb, []string{fullKey}, token).Err(); err != nil {
			return fmt.Errorf("redis lock release failed: %w", err)
		}
		return nil
	}
	return release, nil
}

// Close gracefully closes the Redis connection.
func (l *Locker) Close() error {
	return l.rdb.Close()
}
