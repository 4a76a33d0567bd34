package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const rateKeyPrefix = "keygate:ratelimit:"

// Decision is the outcome of one rate check.
type Decision struct {
	// Allowed is false when the caller was over the ceiling before this request.
	Allowed bool
	// Count is the number of requests already inside the window, before this one.
	Count int64
	// Limit echoes the configured ceiling.
	Limit int
	// Window echoes the configured window length.
	Window time.Duration
}

// Remaining reports how much allowance is left after this request.
func (d Decision) Remaining() int {
	remaining := d.Limit - int(d.Count) - 1
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Limiter is a per-identity exact sliding window. Every check prunes entries
// older than the window, counts the rest, and records the current request.
// Rejected requests are recorded too, so abusive traffic stays observable.
type Limiter interface {
	Allow(ctx context.Context, identity string) (Decision, error)
}

// Config tunes the sliding window.
type Config struct {
	Limit  int
	Window time.Duration
}

// RedisLimiter implements Limiter on a Redis sorted set per identity, trading
// O(window-size) memory per identity for exact (unbucketed) counting.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
	now    func() time.Time
}

// Option customises the limiter.
type Option func(*RedisLimiter)

// WithNow overrides the clock, primarily for tests.
func WithNow(now func() time.Time) Option {
	return func(l *RedisLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// NewRedisLimiter builds the limiter once a client and ceiling are supplied.
func NewRedisLimiter(client *redis.Client, cfg Config, opts ...Option) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("ratelimit: client is required")
	}
	if cfg.Limit <= 0 {
		return nil, errors.New("ratelimit: limit must be positive")
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	limiter := &RedisLimiter{client: client, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(limiter)
	}
	return limiter, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, identity string) (Decision, error) {
	if identity == "" {
		return Decision{}, errors.New("ratelimit: identity is required")
	}

	key := rateKeyPrefix + identity
	now := l.now()
	windowStart := now.Add(-l.cfg.Window)

	var countCmd *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
		countCmd = pipe.ZCard(ctx, key)
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(now.UnixNano()),
			Member: strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString(),
		})
		pipe.PExpire(ctx, key, l.cfg.Window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: check %q: %w", identity, err)
	}

	count := countCmd.Val()
	return Decision{
		Allowed: count < int64(l.cfg.Limit),
		Count:   count,
		Limit:   l.cfg.Limit,
		Window:  l.cfg.Window,
	}, nil
}
