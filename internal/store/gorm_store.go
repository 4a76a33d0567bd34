package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/keygate-io/keygate/internal/models"
)

// GormStore implements RecordStore on a relational database through gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs the store once a database handle is supplied.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("key store: db is required")
	}
	return &GormStore{db: db}, nil
}

func ensuredContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func (s *GormStore) Create(ctx context.Context, key *models.AccessKey) error {
	if key == nil {
		return errors.New("key store: record is nil")
	}
	ctx = ensuredContext(ctx)

	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		return fmt.Errorf("key store: create: %w", err)
	}
	return nil
}

func (s *GormStore) ExistsVerifier(ctx context.Context, verifier string) (bool, error) {
	ctx = ensuredContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.AccessKey{}).
		Where("verifier = ?", verifier).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("key store: exists verifier: %w", err)
	}
	return count > 0, nil
}

func (s *GormStore) FindByFingerprint(ctx context.Context, fingerprint string) ([]models.AccessKey, error) {
	ctx = ensuredContext(ctx)

	var records []models.AccessKey
	err := s.db.WithContext(ctx).
		Where("fingerprint = ?", fingerprint).
		Order("published_at").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("key store: find by fingerprint: %w", err)
	}
	return records, nil
}

func (s *GormStore) FindByVerifier(ctx context.Context, verifier string) (*models.AccessKey, error) {
	return s.findOne(ctx, "verifier = ?", verifier)
}

func (s *GormStore) FindByID(ctx context.Context, id string) (*models.AccessKey, error) {
	return s.findOne(ctx, "id = ?", id)
}

func (s *GormStore) findOne(ctx context.Context, query string, arg string) (*models.AccessKey, error) {
	ctx = ensuredContext(ctx)

	var record models.AccessKey
	err := s.db.WithContext(ctx).Where(query, arg).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("key store: lookup: %w", err)
	}
	return &record, nil
}

// IncrementUsage relies on a guarded single-statement UPDATE so the counter
// can never exceed max_uses even if callers race past the per-secret lock.
func (s *GormStore) IncrementUsage(ctx context.Context, id string) (int64, error) {
	ctx = ensuredContext(ctx)

	result := s.db.WithContext(ctx).
		Model(&models.AccessKey{}).
		Where("id = ? AND used_count < max_uses", id).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if result.Error != nil {
		return 0, fmt.Errorf("key store: increment usage: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		// Distinguish a missing record from an exhausted one.
		if _, err := s.FindByID(ctx, id); err != nil {
			return 0, err
		}
		return 0, ErrUsageExhausted
	}

	record, err := s.FindByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return record.UsedCount, nil
}

func (s *GormStore) Revoke(ctx context.Context, idOrVerifier string, now time.Time) error {
	ctx = ensuredContext(ctx)

	target := strings.TrimSpace(idOrVerifier)
	if target == "" {
		return ErrRecordNotFound
	}

	result := s.db.WithContext(ctx).
		Model(&models.AccessKey{}).
		Where("id = ? OR verifier = ?", target, target).
		UpdateColumn("expires_at", now)
	if result.Error != nil {
		return fmt.Errorf("key store: revoke: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *GormStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensuredContext(ctx)

	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", cutoff).
		Delete(&models.AccessKey{})
	if result.Error != nil {
		return 0, fmt.Errorf("key store: delete expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GormStore) List(ctx context.Context, opts ListOptions) ([]models.AccessKey, int64, error) {
	ctx = ensuredContext(ctx)

	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := s.db.WithContext(ctx).Model(&models.AccessKey{})
	if itemKey := strings.TrimSpace(opts.ItemKey); itemKey != "" {
		query = query.Where("item_key = ?", itemKey)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("key store: list count: %w", err)
	}

	var records []models.AccessKey
	err := query.
		Order("published_at DESC").
		Offset(opts.Offset).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("key store: list: %w", err)
	}
	return records, total, nil
}

func (s *GormStore) Stats(ctx context.Context, now time.Time) (Stats, error) {
	ctx = ensuredContext(ctx)

	var stats Stats
	model := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.AccessKey{})
	}

	if err := model().Count(&stats.Total).Error; err != nil {
		return Stats{}, fmt.Errorf("key store: stats total: %w", err)
	}
	if err := model().Where("expires_at > ? AND used_count < max_uses", now).Count(&stats.Active).Error; err != nil {
		return Stats{}, fmt.Errorf("key store: stats active: %w", err)
	}
	if err := model().Where("expires_at <= ?", now).Count(&stats.Expired).Error; err != nil {
		return Stats{}, fmt.Errorf("key store: stats expired: %w", err)
	}
	if err := model().Where("used_count >= max_uses").Count(&stats.Exhausted).Error; err != nil {
		return Stats{}, fmt.Errorf("key store: stats exhausted: %w", err)
	}
	return stats, nil
}
