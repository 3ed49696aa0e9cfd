// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for orders.
package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-crm-backend/internal/domain"
)

// NewOrderNumber returns a unique, time-sortable order number (ORD-<ULID>).
func NewOrderNumber() string {
	return "ORD-" + ulid.Make().String()
}

// CreateOrder inserts o, assigning an ID and order number when missing.
func CreateOrder(ctx context.Context, db *gorm.DB, o *domain.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.OrderNumber == "" {
		o.OrderNumber = NewOrderNumber()
	}
	if o.Status == "" {
		o.Status = domain.OrderPending
	}
	err := db.WithContext(ctx).Omit(clause.Associations).Create(o).Error
	if IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetOrder fetches an order by ID, or ErrNotFound.
func GetOrder(ctx context.Context, db *gorm.DB, id string) (*domain.Order, error) {
	var o domain.Order
	if err := db.WithContext(ctx).Where("id = ?", id).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrdersByCustomer returns every order of a customer, newest first.
func ListOrdersByCustomer(ctx context.Context, db *gorm.DB, phone string) ([]domain.Order, error) {
	out := []domain.Order{}
	err := db.WithContext(ctx).
		Where("customer_phone = ?", phone).
		Order("created_at desc").
		Order("id asc").
		Find(&out).Error
	return out, err
}
