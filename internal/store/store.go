package store

import (
	"context"
	"errors"
	"time"

	"github.com/keygate-io/keygate/internal/models"
)

var (
	// ErrRecordNotFound indicates no credential record matched the lookup.
	ErrRecordNotFound = errors.New("key store: record not found")

	// ErrUsageExhausted indicates the guarded increment found no headroom left.
	ErrUsageExhausted = errors.New("key store: usage limit reached")
)

// RecordStore is the capability interface over durable credential storage.
// Any backend that satisfies it is substitutable; the pipelines never touch a
// concrete client. The store exclusively owns durable truth; cache and rate
// windows are disposable projections.
type RecordStore interface {
	// Create persists a new credential record.
	Create(ctx context.Context, key *models.AccessKey) error

	// ExistsVerifier reports whether a record already carries this verifier.
	ExistsVerifier(ctx context.Context, verifier string) (bool, error)

	// FindByFingerprint returns every record sharing the fingerprint. The
	// candidate set is typically size 1; truncation collisions make it >1.
	FindByFingerprint(ctx context.Context, fingerprint string) ([]models.AccessKey, error)

	// FindByVerifier returns the record with the exact verifier, or ErrRecordNotFound.
	FindByVerifier(ctx context.Context, verifier string) (*models.AccessKey, error)

	// FindByID returns the record by identifier, or ErrRecordNotFound.
	FindByID(ctx context.Context, id string) (*models.AccessKey, error)

	// IncrementUsage atomically increments used_count while used_count < max_uses
	// and returns the post-increment count. Returns ErrUsageExhausted when the
	// guard leaves no row to update, ErrRecordNotFound when the id is unknown.
	IncrementUsage(ctx context.Context, id string) (int64, error)

	// Revoke supersedes a record by moving its expiry to now. The argument may
	// be a record id or a verifier.
	Revoke(ctx context.Context, idOrVerifier string, now time.Time) error

	// DeleteExpired removes records whose expiry passed before the cutoff and
	// reports how many were swept.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)

	// List returns a page of records ordered by publication time, newest first.
	List(ctx context.Context, opts ListOptions) ([]models.AccessKey, int64, error)

	// Stats summarises the collection for the admin surface.
	Stats(ctx context.Context, now time.Time) (Stats, error)
}

// ListOptions controls admin listing pagination.
type ListOptions struct {
	Offset  int
	Limit   int
	ItemKey string
}

// Stats aggregates collection-level counts.
type Stats struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Expired   int64 `json:"expired"`
	Exhausted int64 `json:"exhausted"`
}
