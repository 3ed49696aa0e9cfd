// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for interactions.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-crm-backend/internal/domain"
)

// CreateInteraction inserts it, assigning an ID when missing.
func CreateInteraction(ctx context.Context, db *gorm.DB, it *domain.Interaction) error {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.OccurredAt.IsZero() {
		it.OccurredAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Omit(clause.Associations).Create(it).Error
}

// ListInteractionsByCustomer returns a customer's interactions, most recent first.
func ListInteractionsByCustomer(ctx context.Context, db *gorm.DB, phone string) ([]domain.Interaction, error) {
	out := []domain.Interaction{}
	err := db.WithContext(ctx).
		Where("customer_phone = ?", phone).
		Order("occurred_at desc").
		Order("id asc").
		Find(&out).Error
	return out, err
}
