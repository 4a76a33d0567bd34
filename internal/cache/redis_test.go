package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisStore(client)
	require.NoError(t, err)
	return mr, store
}

func TestRedisStoreRoundTrip(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "round:trip", []byte("value"), time.Minute))

	data, found, err := store.Get(ctx, "round:trip")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("value"), data)

	_, found, err = store.Get(ctx, "round:other")
	require.NoError(t, err)
	require.False(t, found)
}

func TestRedisStoreTTLExpiry(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "ttl:key", []byte("value"), time.Minute))

	mr.FastForward(2 * time.Minute)

	_, found, err := store.Get(ctx, "ttl:key")
	require.NoError(t, err)
	require.False(t, found)
}

func TestRedisStoreDelete(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "del:key", []byte("value"), time.Minute))
	require.NoError(t, store.Delete(ctx, "del:key"))
	require.NoError(t, store.Delete(ctx)) // no keys is a no-op

	_, found, err := store.Get(ctx, "del:key")
	require.NoError(t, err)
	require.False(t, found)
}

func TestRedisStorePrefixesKeys(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "plain", []byte("v"), time.Minute))
	require.True(t, mr.Exists("keygate:plain"))
}

func TestNewRedisClientValidation(t *testing.T) {
	_, err := NewRedisClient(RedisConfig{})
	require.Error(t, err)

	_, err = NewRedisStore(nil)
	require.Error(t, err)
}

func TestNewRedisClientConnects(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewRedisClient(RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, client.Close())
}
