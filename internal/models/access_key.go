package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// AccessKey is the durable credential record. The raw secret is never stored:
// Fingerprint narrows lookups, Verifier is the authoritative Argon2id proof.
type AccessKey struct {
	BaseModel

	Fingerprint string         `gorm:"size:16;index;not null" json:"fingerprint"`
	Verifier    string         `gorm:"size:256;uniqueIndex;not null" json:"-"`
	ItemKey     string         `gorm:"size:512;not null" json:"item_key"`
	Permissions datatypes.JSON `gorm:"not null" json:"permissions"`
	PublishedAt time.Time      `gorm:"not null" json:"published_at"`
	ExpiresAt   time.Time      `gorm:"index;not null" json:"expires_at"`
	UsedCount   int64          `gorm:"not null;default:0" json:"used_count"`
	MaxUses     int64          `gorm:"not null" json:"max_uses"`
}

// TableName overrides the default gorm naming.
func (AccessKey) TableName() string {
	return "access_keys"
}

// SetPermissions stores the capability list as a JSON column value.
func (k *AccessKey) SetPermissions(permissions []string) error {
	payload, err := json.Marshal(permissions)
	if err != nil {
		return fmt.Errorf("access key: encode permissions: %w", err)
	}
	k.Permissions = datatypes.JSON(payload)
	return nil
}

// PermissionList decodes the stored capability list.
func (k *AccessKey) PermissionList() ([]string, error) {
	if len(k.Permissions) == 0 {
		return nil, nil
	}
	var permissions []string
	if err := json.Unmarshal(k.Permissions, &permissions); err != nil {
		return nil, fmt.Errorf("access key: decode permissions: %w", err)
	}
	return permissions, nil
}

// Expired reports whether the record's expiry instant has passed.
func (k *AccessKey) Expired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// Exhausted reports whether the usage allowance is spent.
func (k *AccessKey) Exhausted() bool {
	return k.UsedCount >= k.MaxUses
}
