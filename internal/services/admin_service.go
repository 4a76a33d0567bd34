package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/keygate-io/keygate/internal/models"
	"github.com/keygate-io/keygate/internal/store"
	apperrors "github.com/keygate-io/keygate/pkg/errors"
	"github.com/keygate-io/keygate/pkg/logger"
)

// AdminService exposes the administrative surface: revocation, listing and
// collection statistics. These are thin wrappers over store capabilities; the
// interesting invariant is that revoke supersedes a record by moving its
// expiry to now rather than deleting it, leaving the sweep to reclaim it.
type AdminService struct {
	records store.RecordStore
	log     *zap.Logger
	now     func() time.Time
}

// AdminOption customises the service.
type AdminOption func(*AdminService)

// WithAdminNow overrides the clock, primarily for tests.
func WithAdminNow(now func() time.Time) AdminOption {
	return func(s *AdminService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewAdminService constructs the admin surface.
func NewAdminService(records store.RecordStore, opts ...AdminOption) (*AdminService, error) {
	if records == nil {
		return nil, errors.New("admin service: record store is required")
	}

	svc := &AdminService{
		records: records,
		log:     logger.WithModule("admin"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Revoke supersedes a credential immediately. The target may be a record id or
// a verifier; raw secrets are never accepted here.
func (s *AdminService) Revoke(ctx context.Context, idOrVerifier string) error {
	err := s.records.Revoke(ctx, idOrVerifier, s.now().UTC())
	if errors.Is(err, store.ErrRecordNotFound) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return apperrors.Wrap(err, "revoke credential")
	}

	s.log.Info("key revoked", zap.String("target", idOrVerifier))
	return nil
}

// ListResult pages credential records for the admin API.
type ListResult struct {
	Keys  []models.AccessKey `json:"keys"`
	Total int64              `json:"total"`
}

// List returns a page of records, newest first.
func (s *AdminService) List(ctx context.Context, opts store.ListOptions) (*ListResult, error) {
	keys, total, err := s.records.List(ctx, opts)
	if err != nil {
		return nil, apperrors.Wrap(err, "list credentials")
	}
	return &ListResult{Keys: keys, Total: total}, nil
}

// Stats summarises the collection.
func (s *AdminService) Stats(ctx context.Context) (*store.Stats, error) {
	stats, err := s.records.Stats(ctx, s.now().UTC())
	if err != nil {
		return nil, apperrors.Wrap(err, "collection stats")
	}
	return &stats, nil
}
