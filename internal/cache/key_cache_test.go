package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keygate-io/keygate/internal/models"
)

func newTestKeyCache(t *testing.T) *KeyCache {
	t.Helper()

	_, store := newTestStore(t)
	kc, err := NewKeyCache(store, time.Minute)
	require.NoError(t, err)
	return kc
}

func testRecord(t *testing.T) *models.AccessKey {
	t.Helper()

	record := &models.AccessKey{
		BaseModel:   models.BaseModel{ID: "rec-1"},
		Fingerprint: "aabbccddeeff0011",
		Verifier:    "$argon2id$test",
		ItemKey:     "app://users/u1",
		PublishedAt: time.Now().UTC().Truncate(time.Second),
		ExpiresAt:   time.Now().UTC().Add(time.Hour).Truncate(time.Second),
		UsedCount:   1,
		MaxUses:     3,
	}
	require.NoError(t, record.SetPermissions([]string{"read", "write"}))
	return record
}

func TestKeyCacheRoundTrip(t *testing.T) {
	kc := newTestKeyCache(t)
	ctx := context.Background()

	entry, err := NewEntry(testRecord(t))
	require.NoError(t, err)

	require.NoError(t, kc.Set(ctx, "the-secret", entry))

	got, err := kc.Get(ctx, "the-secret")
	require.NoError(t, err)
	require.Equal(t, entry.RecordID, got.RecordID)
	require.Equal(t, entry.Verifier, got.Verifier)
	require.Equal(t, entry.Permissions, got.Permissions)
	require.EqualValues(t, 1, got.UsedCount)
}

func TestKeyCacheMiss(t *testing.T) {
	kc := newTestKeyCache(t)

	_, err := kc.Get(context.Background(), "unknown-secret")
	require.ErrorIs(t, err, ErrCacheMiss)

	_, err = kc.Get(context.Background(), "   ")
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestKeyCacheDelete(t *testing.T) {
	kc := newTestKeyCache(t)
	ctx := context.Background()

	entry, err := NewEntry(testRecord(t))
	require.NoError(t, err)

	require.NoError(t, kc.Set(ctx, "gone-secret", entry))
	require.NoError(t, kc.Delete(ctx, "gone-secret"))

	_, err = kc.Get(ctx, "gone-secret")
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestEntryChecks(t *testing.T) {
	now := time.Now().UTC()
	entry := &Entry{ExpiresAt: now.Add(time.Minute), UsedCount: 2, MaxUses: 2}

	require.False(t, entry.Expired(now))
	require.True(t, entry.Expired(now.Add(2*time.Minute)))
	require.True(t, entry.Expired(entry.ExpiresAt), "boundary instant counts as expired")
	require.True(t, entry.Exhausted())

	entry.UsedCount = 1
	require.False(t, entry.Exhausted())
}

func TestNewEntryValidation(t *testing.T) {
	_, err := NewEntry(nil)
	require.Error(t, err)
}
