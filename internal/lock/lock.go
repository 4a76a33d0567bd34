package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "keygate:lock:"

// Locker is a networked exclusion primitive keyed by resource name. Acquire is
// a single non-blocking attempt; the TTL is the backstop against held-forever
// locks from crashed callers, so every acquisition carries one.
type Locker interface {
	// Acquire attempts to take the lock once. It returns the release token and
	// ok=true on success, ok=false on contention. It never blocks or retries.
	Acquire(ctx context.Context, resource string, ttl time.Duration) (token string, ok bool, err error)

	// Release frees the lock only if it still holds the given token. A false
	// return means the lock expired or was taken over in the meantime.
	Release(ctx context.Context, resource, token string) (bool, error)
}

// releaseScript deletes the lock only when the stored token matches, so a
// caller whose lock already expired cannot free a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock implements Locker on a Redis SET NX PX plus a Lua compare-and-delete.
type RedisLock struct {
	client *redis.Client
}

// NewRedisLock wraps an established client in the Locker interface.
func NewRedisLock(client *redis.Client) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("lock: client is required")
	}
	return &RedisLock{client: client}, nil
}

func (l *RedisLock) Acquire(ctx context.Context, resource string, ttl time.Duration) (string, bool, error) {
	if resource == "" {
		return "", false, errors.New("lock: resource is required")
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKey(resource), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("lock: acquire %q: %w", resource, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *RedisLock) Release(ctx context.Context, resource, token string) (bool, error) {
	if resource == "" || token == "" {
		return false, nil
	}

	deleted, err := releaseScript.Run(ctx, l.client, []string{lockKey(resource)}, token).Int()
	if err != nil {
		return false, fmt.Errorf("lock: release %q: %w", resource, err)
	}
	return deleted == 1, nil
}

func lockKey(resource string) string {
	return lockKeyPrefix + resource
}
