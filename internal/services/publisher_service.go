package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/keygate-io/keygate/internal/models"
	"github.com/keygate-io/keygate/internal/store"
	"github.com/keygate-io/keygate/pkg/crypto"
	apperrors "github.com/keygate-io/keygate/pkg/errors"
	"github.com/keygate-io/keygate/pkg/logger"
	"github.com/keygate-io/keygate/pkg/metrics"
)

// PublisherService mints credentials: it validates issuance input, generates a
// secret, derives its fingerprint and verifier, and persists the record. The
// plaintext secret leaves the service exactly once, in the publish result.
type PublisherService struct {
	records store.RecordStore
	params  crypto.Argon2Parameters
	sink    metrics.Sink
	log     *zap.Logger
	now     func() time.Time
}

// PublisherOption customises the service.
type PublisherOption func(*PublisherService)

// WithPublisherNow overrides the clock, primarily for tests.
func WithPublisherNow(now func() time.Time) PublisherOption {
	return func(s *PublisherService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewPublisherService constructs the publish pipeline.
func NewPublisherService(records store.RecordStore, params crypto.Argon2Parameters, sink metrics.Sink, opts ...PublisherOption) (*PublisherService, error) {
	if records == nil {
		return nil, errors.New("publisher service: record store is required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}

	svc := &PublisherService{
		records: records,
		params:  params,
		sink:    sink,
		log:     logger.WithModule("publisher"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// PublishInput captures the issuance request.
type PublishInput struct {
	ItemKey     string
	Permissions []string
	ExpiresAt   time.Time
	MaxUses     int64
}

// PublishResult is returned to the issuer. Secret is the one-time plaintext;
// it is never persisted and never logged at full length.
type PublishResult struct {
	Secret      string    `json:"secret"`
	ItemKey     string    `json:"item_key"`
	Permissions []string  `json:"permissions"`
	PublishedAt time.Time `json:"published_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	MaxUses     int64     `json:"max_uses"`
}

// Publish validates the input, generates a credential and persists it.
func (s *PublisherService) Publish(ctx context.Context, input PublishInput) (*PublishResult, error) {
	result, err := s.publish(ctx, input)
	if err != nil {
		s.sink.PublishResult(metrics.ResultFailure)
		return nil, err
	}
	s.sink.PublishResult(metrics.ResultSuccess)
	return result, nil
}

func (s *PublisherService) publish(ctx context.Context, input PublishInput) (*PublishResult, error) {
	now := s.now().UTC()

	if err := validatePublishInput(input, now); err != nil {
		return nil, err
	}

	secret, err := crypto.GenerateSecret()
	if err != nil {
		return nil, apperrors.Wrap(err, "generate secret")
	}

	fingerprint := crypto.Fingerprint(secret)
	verifier, err := crypto.DeriveVerifier(secret, s.params)
	if err != nil {
		return nil, apperrors.Wrap(err, "derive verifier")
	}

	// A verifier collision is astronomically unlikely; it is surfaced as an
	// anomaly for the caller to retry, not absorbed by an internal loop.
	exists, err := s.records.ExistsVerifier(ctx, verifier)
	if err != nil {
		return nil, apperrors.Wrap(err, "verifier collision check")
	}
	if exists {
		s.log.Warn("verifier collision on publish", zap.String("fingerprint", fingerprint))
		return nil, apperrors.ErrDuplicateKey
	}

	record := &models.AccessKey{
		Fingerprint: fingerprint,
		Verifier:    verifier,
		ItemKey:     input.ItemKey,
		PublishedAt: now,
		ExpiresAt:   input.ExpiresAt.UTC(),
		UsedCount:   0,
		MaxUses:     input.MaxUses,
	}
	if err := record.SetPermissions(input.Permissions); err != nil {
		return nil, apperrors.Wrap(err, "encode permissions")
	}

	if err := s.records.Create(ctx, record); err != nil {
		return nil, apperrors.Wrap(err, "persist credential")
	}

	s.log.Info("key published",
		zap.String("id", record.ID),
		zap.String("fingerprint", fingerprint),
		zap.String("item_key", input.ItemKey),
		zap.Time("expires_at", record.ExpiresAt),
		zap.Int64("max_uses", record.MaxUses),
	)

	return &PublishResult{
		Secret:      secret,
		ItemKey:     record.ItemKey,
		Permissions: input.Permissions,
		PublishedAt: record.PublishedAt,
		ExpiresAt:   record.ExpiresAt,
		MaxUses:     record.MaxUses,
	}, nil
}

func validatePublishInput(input PublishInput, now time.Time) error {
	if err := validateItemKey(input.ItemKey); err != nil {
		return err
	}

	if len(input.Permissions) == 0 {
		return apperrors.NewValidation("permissions", "must not be empty")
	}
	for _, permission := range input.Permissions {
		if strings.TrimSpace(permission) == "" {
			return apperrors.NewValidation("permissions", "must not contain blank entries")
		}
	}

	if input.ExpiresAt.IsZero() {
		return apperrors.NewValidation("expires_at", "is required")
	}
	if !input.ExpiresAt.After(now) {
		return apperrors.NewValidation("expires_at", "must be in the future")
	}

	if input.MaxUses < 1 {
		return apperrors.NewValidation("max_uses", "must be at least 1")
	}

	return nil
}

func validateItemKey(itemKey string) error {
	itemKey = strings.TrimSpace(itemKey)
	if itemKey == "" {
		return apperrors.NewValidation("item_key", "is required")
	}

	parsed, err := url.Parse(itemKey)
	if err != nil {
		return apperrors.NewValidation("item_key", "must be a valid URI")
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return apperrors.NewValidation("item_key", "must use the form scheme://service/key")
	}
	return nil
}
