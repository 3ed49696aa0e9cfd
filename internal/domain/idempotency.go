package domain

import "time"

// Idempotency records the outcome of a previously processed unsafe request,
// keyed by (user_id, scope, key). Scope names the operation (for example
// "customers.merge") so the same client key can be reused across endpoints.
// ResourceID points at the resource the original request produced, which the
// handler reloads and returns on replay instead of re-executing side effects.
// Fingerprint is the canonical form of the original request; a retry whose
// fingerprint differs is a reused key, not a replay.
type Idempotency struct {
	ID          string    `gorm:"type:varchar(36);primaryKey"`
	UserID      string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_user_scope_key,priority:1"`
	Scope       string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_user_scope_key,priority:2"`
	Key         string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_user_scope_key,priority:3"`
	ResourceID  string    `gorm:"type:varchar(64);not null"`
	Fingerprint string    `gorm:"type:text;not null;default:''"`
	Status      int       `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt   time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
