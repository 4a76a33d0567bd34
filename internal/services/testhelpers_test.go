package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/keygate-io/keygate/internal/cache"
	"github.com/keygate-io/keygate/internal/database/testutil"
	"github.com/keygate-io/keygate/internal/lock"
	"github.com/keygate-io/keygate/internal/models"
	"github.com/keygate-io/keygate/internal/ratelimit"
	"github.com/keygate-io/keygate/internal/store"
	"github.com/keygate-io/keygate/pkg/crypto"
)

// fastArgon keeps the KDF cheap so the suite stays quick.
func fastArgon() crypto.Argon2Parameters {
	return crypto.Argon2Parameters{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLength: 32, SaltLength: 16}
}

// spySink records pipeline observations for assertions.
type spySink struct {
	mu          sync.Mutex
	publishes   map[string]int
	validations map[string]int
	cacheEvents map[string]int
	rateDrops   int
}

func newSpySink() *spySink {
	return &spySink{
		publishes:   make(map[string]int),
		validations: make(map[string]int),
		cacheEvents: make(map[string]int),
	}
}

func (s *spySink) PublishResult(result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishes[result]++
}

func (s *spySink) ValidationResult(result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validations[result]++
}

func (s *spySink) CacheEvent(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheEvents[event]++
}

func (s *spySink) RateLimitDrop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateDrops++
}

func (s *spySink) cacheEvent(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cacheEvents[event]
}

type testEnv struct {
	mr        *miniredis.Miniredis
	client    *redis.Client
	records   *store.GormStore
	keyCache  *cache.KeyCache
	locker    *lock.RedisLock
	publisher *PublisherService
	validator *ValidatorService
	sink      *spySink
}

// newTestEnv wires the full pipeline against in-memory sqlite and miniredis.
func newTestEnv(t *testing.T, rateLimit int) *testEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t)

	// sqlite tolerates concurrent writers poorly; one connection serialises
	// access so the concurrency tests exercise our locking, not sqlite's.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	records, err := store.NewGormStore(db)
	require.NoError(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	redisStore, err := cache.NewRedisStore(client)
	require.NoError(t, err)

	keyCache, err := cache.NewKeyCache(redisStore, 15*time.Minute)
	require.NoError(t, err)

	locker, err := lock.NewRedisLock(client)
	require.NoError(t, err)

	limiter, err := ratelimit.NewRedisLimiter(client, ratelimit.Config{Limit: rateLimit, Window: time.Minute})
	require.NoError(t, err)

	sink := newSpySink()

	publisher, err := NewPublisherService(records, fastArgon(), sink)
	require.NoError(t, err)

	validator, err := NewValidatorService(records, keyCache, locker, limiter, sink)
	require.NoError(t, err)

	return &testEnv{
		mr:        mr,
		client:    client,
		records:   records,
		keyCache:  keyCache,
		locker:    locker,
		publisher: publisher,
		validator: validator,
		sink:      sink,
	}
}

// mustPublish issues a fresh key and returns its plaintext secret.
func (env *testEnv) mustPublish(t *testing.T, maxUses int64, ttl time.Duration) string {
	t.Helper()

	result, err := env.publisher.Publish(context.Background(), PublishInput{
		ItemKey:     "app://users/u1",
		Permissions: []string{"read"},
		ExpiresAt:   time.Now().Add(ttl),
		MaxUses:     maxUses,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Secret)
	return result.Secret
}

// mustSeedKey persists a record for a chosen secret directly, bypassing the
// publisher, so tests can shape expiry and usage state precisely.
func (env *testEnv) mustSeedKey(t *testing.T, secret string, maxUses, used int64, expiresAt time.Time) *models.AccessKey {
	t.Helper()

	verifier, err := crypto.DeriveVerifier(secret, fastArgon())
	require.NoError(t, err)

	record := &models.AccessKey{
		Fingerprint: crypto.Fingerprint(secret),
		Verifier:    verifier,
		ItemKey:     "app://users/u1",
		PublishedAt: time.Now().UTC().Add(-time.Minute),
		ExpiresAt:   expiresAt,
		UsedCount:   used,
		MaxUses:     maxUses,
	}
	require.NoError(t, record.SetPermissions([]string{"read"}))
	require.NoError(t, env.records.Create(context.Background(), record))
	return record
}

// mustSeedMismatched persists a record whose fingerprint matches the secret
// but whose verifier was derived from a different secret, to exercise the
// candidate-iteration and unauthorized paths.
func (env *testEnv) mustSeedMismatched(t *testing.T, secret string) *models.AccessKey {
	t.Helper()

	verifier, err := deriveOtherVerifier()
	require.NoError(t, err)

	record := &models.AccessKey{
		Fingerprint: crypto.Fingerprint(secret),
		Verifier:    verifier,
		ItemKey:     "app://users/u1",
		PublishedAt: time.Now().UTC().Add(-time.Minute),
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
		UsedCount:   0,
		MaxUses:     1,
	}
	require.NoError(t, record.SetPermissions([]string{"read"}))
	require.NoError(t, env.records.Create(context.Background(), record))
	return record
}

func fingerprintOf(secret string) string {
	return crypto.Fingerprint(secret)
}

// deriveOtherVerifier returns a verifier bound to an unrelated secret. Each
// call salts anew, so repeated calls never violate the unique verifier index.
func deriveOtherVerifier() (string, error) {
	return crypto.DeriveVerifier("an-entirely-different-secret", fastArgon())
}
