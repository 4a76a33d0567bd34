package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/keygate-io/keygate/internal/models"
)

const keyCachePrefix = "cache:keys:"

// ErrCacheMiss reports that no entry exists for the presented secret.
var ErrCacheMiss = errors.New("key cache: miss")

// Entry is the denormalized cache projection of an AccessKey, keyed by the raw
// secret. Its TTL is independent of the record's expiry: expiry and usage are
// re-checked on every read, and the verifier is re-checked on every hit, so a
// stale entry can cost a store round-trip but never grant access.
type Entry struct {
	RecordID    string    `json:"record_id"`
	Verifier    string    `json:"verifier"`
	ItemKey     string    `json:"item_key"`
	Permissions []string  `json:"permissions"`
	PublishedAt time.Time `json:"published_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	UsedCount   int64     `json:"used_count"`
	MaxUses     int64     `json:"max_uses"`
}

// NewEntry projects a durable record into its cache representation.
func NewEntry(record *models.AccessKey) (*Entry, error) {
	if record == nil {
		return nil, errors.New("key cache: record is nil")
	}
	permissions, err := record.PermissionList()
	if err != nil {
		return nil, err
	}
	return &Entry{
		RecordID:    record.ID,
		Verifier:    record.Verifier,
		ItemKey:     record.ItemKey,
		Permissions: permissions,
		PublishedAt: record.PublishedAt,
		ExpiresAt:   record.ExpiresAt,
		UsedCount:   record.UsedCount,
		MaxUses:     record.MaxUses,
	}, nil
}

// Expired reports whether the projected record's expiry instant has passed.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Exhausted reports whether the projected usage allowance is spent.
func (e *Entry) Exhausted() bool {
	return e.UsedCount >= e.MaxUses
}

// KeyCache stores Entry projections keyed by the raw secret.
type KeyCache struct {
	store Store
	ttl   time.Duration
}

// NewKeyCache wraps a Store with the credential projection codec.
func NewKeyCache(store Store, ttl time.Duration) (*KeyCache, error) {
	if store == nil {
		return nil, errors.New("key cache: store is required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &KeyCache{store: store, ttl: ttl}, nil
}

// TTL exposes the configured entry lifetime.
func (c *KeyCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached projection for a secret, or ErrCacheMiss.
func (c *KeyCache) Get(ctx context.Context, secret string) (*Entry, error) {
	key := cacheKey(secret)
	if key == "" {
		return nil, ErrCacheMiss
	}

	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrCacheMiss
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("key cache: decode: %w", err)
	}
	return &entry, nil
}

// Set writes the projection under the secret with the configured TTL.
func (c *KeyCache) Set(ctx context.Context, secret string, entry *Entry) error {
	if entry == nil {
		return errors.New("key cache: entry is nil")
	}
	key := cacheKey(secret)
	if key == "" {
		return errors.New("key cache: secret missing")
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("key cache: encode: %w", err)
	}

	return c.store.Set(ctx, key, payload, c.ttl)
}

// Delete drops the projection for a secret, ignoring missing entries.
func (c *KeyCache) Delete(ctx context.Context, secret string) error {
	key := cacheKey(secret)
	if key == "" {
		return nil
	}
	return c.store.Delete(ctx, key)
}

func cacheKey(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	return keyCachePrefix + secret
}
