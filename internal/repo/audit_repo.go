// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the append-only audit log store.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-crm-backend/internal/domain"
)

// AuditFilter narrows audit log queries. Empty fields do not filter.
type AuditFilter struct {
	Action   string
	Entity   string
	EntityID string
	UserID   string
}

func (f AuditFilter) apply(db *gorm.DB) *gorm.DB {
	if f.Action != "" {
		db = db.Where("action = ?", f.Action)
	}
	if f.Entity != "" {
		db = db.Where("entity = ?", f.Entity)
	}
	if f.EntityID != "" {
		db = db.Where("entity_id = ?", f.EntityID)
	}
	if f.UserID != "" {
		db = db.Where("user_id = ?", f.UserID)
	}
	return db
}

// CreateAuditLog appends one audit record.
func CreateAuditLog(ctx context.Context, db *gorm.DB, a *domain.AuditLog) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	if len(a.Changes) == 0 {
		a.Changes = []byte("{}")
	}
	return db.WithContext(ctx).Create(a).Error
}

// ListAuditLogsPage returns a page of audit records, newest first.
func ListAuditLogsPage(ctx context.Context, db *gorm.DB, f AuditFilter, offset, limit int) ([]domain.AuditLog, error) {
	var out []domain.AuditLog
	err := f.apply(db.WithContext(ctx).Model(&domain.AuditLog{})).
		Order("timestamp desc").
		Order("id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountAuditLogs returns how many audit records match f.
func CountAuditLogs(ctx context.Context, db *gorm.DB, f AuditFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.AuditLog{})).Count(&total).Error
	return total, err
}
