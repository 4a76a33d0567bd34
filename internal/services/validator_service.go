package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/keygate-io/keygate/internal/cache"
	"github.com/keygate-io/keygate/internal/lock"
	"github.com/keygate-io/keygate/internal/models"
	"github.com/keygate-io/keygate/internal/ratelimit"
	"github.com/keygate-io/keygate/internal/store"
	"github.com/keygate-io/keygate/pkg/crypto"
	apperrors "github.com/keygate-io/keygate/pkg/errors"
	"github.com/keygate-io/keygate/pkg/logger"
	"github.com/keygate-io/keygate/pkg/metrics"
)

const (
	lockResourcePrefix = "validate:"
	defaultLockTTL     = 10 * time.Second
)

// ValidatorService verifies presented keys: rate check, per-secret lock,
// cache-aside lookup with store fallback, slow verification, expiry and usage
// enforcement, usage increment, cache refresh. The lock is released on every
// exit path; the store stays the authority for usage counts throughout.
type ValidatorService struct {
	records store.RecordStore
	cache   *cache.KeyCache
	locker  lock.Locker
	limiter ratelimit.Limiter
	sink    metrics.Sink
	log     *zap.Logger
	lockTTL time.Duration
	now     func() time.Time
}

// ValidatorOption customises the service.
type ValidatorOption func(*ValidatorService)

// WithLockTTL bounds worst-case lock hold time should a validator crash.
func WithLockTTL(ttl time.Duration) ValidatorOption {
	return func(s *ValidatorService) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithValidatorNow overrides the clock, primarily for tests.
func WithValidatorNow(now func() time.Time) ValidatorOption {
	return func(s *ValidatorService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewValidatorService constructs the validation pipeline.
func NewValidatorService(records store.RecordStore, keyCache *cache.KeyCache, locker lock.Locker, limiter ratelimit.Limiter, sink metrics.Sink, opts ...ValidatorOption) (*ValidatorService, error) {
	if records == nil {
		return nil, errors.New("validator service: record store is required")
	}
	if keyCache == nil {
		return nil, errors.New("validator service: key cache is required")
	}
	if locker == nil {
		return nil, errors.New("validator service: locker is required")
	}
	if limiter == nil {
		return nil, errors.New("validator service: rate limiter is required")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}

	svc := &ValidatorService{
		records: records,
		cache:   keyCache,
		locker:  locker,
		limiter: limiter,
		sink:    sink,
		log:     logger.WithModule("validator"),
		lockTTL: defaultLockTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ValidationResult reports a successful validation with the post-increment count.
type ValidationResult struct {
	ItemKey     string    `json:"item_key"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expires_at"`
	UsedCount   int64     `json:"used_count"`
	MaxUses     int64     `json:"max_uses"`
}

// Validate runs the full pipeline for one presented secret. callerIdentity is
// the rate-limiting identity (typically the source address).
func (s *ValidatorService) Validate(ctx context.Context, secret, callerIdentity string) (*ValidationResult, error) {
	result, err := s.validate(ctx, secret, callerIdentity)
	if err != nil {
		s.sink.ValidationResult(metrics.ResultFailure)
		return nil, err
	}
	s.sink.ValidationResult(metrics.ResultSuccess)
	return result, nil
}

func (s *ValidatorService) validate(ctx context.Context, secret, callerIdentity string) (*ValidationResult, error) {
	if secret == "" {
		return nil, apperrors.NewValidation("secret", "is required")
	}
	if callerIdentity == "" {
		return nil, apperrors.NewValidation("caller", "identity is required")
	}

	// Rate check happens before any lock or store work so abusive traffic
	// cannot load the lock service or the database.
	decision, err := s.limiter.Allow(ctx, callerIdentity)
	if err != nil {
		return nil, apperrors.Wrap(err, "rate limiter check")
	}
	if !decision.Allowed {
		s.sink.RateLimitDrop()
		s.log.Warn("rate limited",
			zap.String("caller", callerIdentity),
			zap.Int64("window_count", decision.Count),
			zap.Int("limit", decision.Limit),
		)
		return nil, apperrors.ErrRateLimit
	}

	// At most one concurrent validation per secret value. A single attempt,
	// fail closed on contention or lock-service failure; the caller retries.
	resource := lockResourcePrefix + secret
	token, acquired, err := s.locker.Acquire(ctx, resource, s.lockTTL)
	if err != nil {
		return nil, apperrors.Wrap(err, "acquire validation lock")
	}
	if !acquired {
		return nil, apperrors.ErrLockAcquisition
	}
	defer func() {
		released, releaseErr := s.locker.Release(ctx, resource, token)
		if releaseErr != nil {
			s.log.Error("lock release failed", zap.String("fingerprint", crypto.Fingerprint(secret)), zap.Error(releaseErr))
			return
		}
		if !released {
			// TTL expiry already freed it; harmless, the TTL is the backstop.
			s.log.Warn("lock expired before release", zap.String("fingerprint", crypto.Fingerprint(secret)))
		}
	}()

	entry, err := s.cache.Get(ctx, secret)
	switch {
	case err == nil:
		if crypto.VerifySecret(entry.Verifier, secret) {
			s.sink.CacheEvent(metrics.CacheHit)
			return s.finishFromCache(ctx, secret, entry)
		}
		// A cached verifier that no longer matches the secret means the entry
		// is corrupt or poisoned. Drop it and fall back to the store.
		s.log.Warn("cache entry failed verification, discarding",
			zap.String("fingerprint", crypto.Fingerprint(secret)))
		if deleteErr := s.cache.Delete(ctx, secret); deleteErr != nil {
			s.log.Warn("cache delete failed", zap.Error(deleteErr))
		}
	case errors.Is(err, cache.ErrCacheMiss):
		// fall through to the store path
	default:
		return nil, apperrors.Wrap(err, "cache lookup")
	}

	s.sink.CacheEvent(metrics.CacheMiss)
	return s.finishFromStore(ctx, secret)
}

// finishFromCache completes validation for a verified cache hit.
func (s *ValidatorService) finishFromCache(ctx context.Context, secret string, entry *cache.Entry) (*ValidationResult, error) {
	if err := s.enforceLimits(entry.Expired(s.now().UTC()), entry.Exhausted()); err != nil {
		return nil, err
	}

	count, err := s.incrementUsage(ctx, secret, entry.RecordID)
	if err != nil {
		return nil, err
	}

	entry.UsedCount = count
	s.refreshCache(ctx, secret, entry)

	return &ValidationResult{
		ItemKey:     entry.ItemKey,
		Permissions: entry.Permissions,
		ExpiresAt:   entry.ExpiresAt,
		UsedCount:   count,
		MaxUses:     entry.MaxUses,
	}, nil
}

// finishFromStore completes validation after a cache miss: fingerprint lookup,
// slow verification across the candidate set, then the shared limit checks.
func (s *ValidatorService) finishFromStore(ctx context.Context, secret string) (*ValidationResult, error) {
	fingerprint := crypto.Fingerprint(secret)

	candidates, err := s.records.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, apperrors.Wrap(err, "fingerprint lookup")
	}
	if len(candidates) == 0 {
		return nil, apperrors.ErrKeyNotFound
	}

	var record *models.AccessKey
	for i := range candidates {
		if crypto.VerifySecret(candidates[i].Verifier, secret) {
			record = &candidates[i]
			break
		}
	}
	if record == nil {
		s.log.Warn("fingerprint matched but verification failed",
			zap.String("fingerprint", fingerprint),
			zap.Int("candidates", len(candidates)),
		)
		return nil, apperrors.ErrKeyUnauthorized
	}

	if err := s.enforceLimits(record.Expired(s.now().UTC()), record.Exhausted()); err != nil {
		return nil, err
	}

	count, err := s.incrementUsage(ctx, secret, record.ID)
	if err != nil {
		return nil, err
	}

	record.UsedCount = count
	entry, err := cache.NewEntry(record)
	if err != nil {
		return nil, apperrors.Wrap(err, "project cache entry")
	}
	s.refreshCache(ctx, secret, entry)

	return &ValidationResult{
		ItemKey:     entry.ItemKey,
		Permissions: entry.Permissions,
		ExpiresAt:   entry.ExpiresAt,
		UsedCount:   count,
		MaxUses:     entry.MaxUses,
	}, nil
}

// enforceLimits applies the shared checks in the mandated order: expiry takes
// priority over usage exhaustion as the outward-facing reason. Neither error
// increments usage.
func (s *ValidatorService) enforceLimits(expired, exhausted bool) error {
	if expired {
		return apperrors.ErrKeyExpired
	}
	if exhausted {
		return apperrors.ErrUsageLimit
	}
	return nil
}

// incrementUsage bumps the durable counter and maps store-level guard
// failures back onto the error taxonomy.
func (s *ValidatorService) incrementUsage(ctx context.Context, secret, recordID string) (int64, error) {
	count, err := s.records.IncrementUsage(ctx, recordID)
	switch {
	case err == nil:
		return count, nil
	case errors.Is(err, store.ErrUsageExhausted):
		return 0, apperrors.ErrUsageLimit
	case errors.Is(err, store.ErrRecordNotFound):
		// The record vanished between lookup and increment (swept or revoked
		// and deleted). Drop any stale projection and report it missing.
		if deleteErr := s.cache.Delete(ctx, secret); deleteErr != nil {
			s.log.Warn("cache delete failed", zap.Error(deleteErr))
		}
		return 0, apperrors.ErrKeyNotFound
	default:
		return 0, apperrors.Wrap(err, "increment usage")
	}
}

// refreshCache rewrites the projection after a successful increment. The write
// is best effort: the store already holds the authoritative count, a failed
// cache write only costs the next request a store round-trip.
func (s *ValidatorService) refreshCache(ctx context.Context, secret string, entry *cache.Entry) {
	if err := s.cache.Set(ctx, secret, entry); err != nil {
		s.log.Warn("cache refresh failed",
			zap.String("fingerprint", crypto.Fingerprint(secret)),
			zap.Error(err),
		)
	}
}
