package cache

import (
	"context"
	"time"
)

// Store represents the shared ephemeral key-value interface used across the
// application. Entries are advisory and reconstructible from the record store;
// losing them degrades latency, never correctness.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}
