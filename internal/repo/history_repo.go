// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file groups the queries that treat a customer's
// orders, interactions and tasks together, as customer deletion and merging
// do.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-crm-backend/internal/domain"
)

// HistoryCounts is the number of child rows referencing one customer phone.
type HistoryCounts struct {
	Orders       int64 `json:"orders"`
	Interactions int64 `json:"interactions"`
	Tasks        int64 `json:"tasks"`
}

// Total returns the sum of all child rows.
func (h HistoryCounts) Total() int64 { return h.Orders + h.Interactions + h.Tasks }

// CountHistory counts the orders, interactions and tasks that reference phone.
func CountHistory(ctx context.Context, db *gorm.DB, phone string) (HistoryCounts, error) {
	var h HistoryCounts
	db = db.WithContext(ctx)
	if err := db.Model(&domain.Order{}).Where("customer_phone = ?", phone).Count(&h.Orders).Error; err != nil {
		return h, err
	}
	if err := db.Model(&domain.Interaction{}).Where("customer_phone = ?", phone).Count(&h.Interactions).Error; err != nil {
		return h, err
	}
	if err := db.Model(&domain.Task{}).Where("customer_phone = ?", phone).Count(&h.Tasks).Error; err != nil {
		return h, err
	}
	return h, nil
}

// ReassignHistory re-points every order, interaction and task from one
// customer phone to another with one bulk UPDATE per table. It must run
// inside the caller's transaction when combined with other writes.
func ReassignHistory(ctx context.Context, db *gorm.DB, from, to string) (HistoryCounts, error) {
	var h HistoryCounts
	db = db.WithContext(ctx)

	res := db.Model(&domain.Order{}).Where("customer_phone = ?", from).Update("customer_phone", to)
	if res.Error != nil {
		return h, res.Error
	}
	h.Orders = res.RowsAffected

	res = db.Model(&domain.Interaction{}).Where("customer_phone = ?", from).Update("customer_phone", to)
	if res.Error != nil {
		return h, res.Error
	}
	h.Interactions = res.RowsAffected

	res = db.Model(&domain.Task{}).Where("customer_phone = ?", from).Update("customer_phone", to)
	if res.Error != nil {
		return h, res.Error
	}
	h.Tasks = res.RowsAffected
	return h, nil
}
