// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// for conditional responses (ETag generation) and the dashboard.
package repo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-crm-backend/internal/domain"
)

// CustomersStats returns the number of customers matching q and the maximum
// UpdatedAt among them. When nothing matches, the count is 0 and
// maxUpdatedAt is nil.
func CustomersStats(ctx context.Context, db *gorm.DB, q string) (count int64, maxUpdatedAt *time.Time, err error) {
	if count, err = CountCustomers(ctx, db, q); err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	err = customerQuery(db.WithContext(ctx).Model(&domain.Customer{}), q).
		Select("updated_at").
		Order("updated_at DESC").
		Limit(1).
		Scan(&row).Error
	if err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// Dashboard holds the headline counters shown on the CRM dashboard.
type Dashboard struct {
	Customers          int64           `json:"customers"`
	Orders             int64           `json:"orders"`
	Revenue            decimal.Decimal `json:"revenue"`
	OpenTasks          int64           `json:"open_tasks"`
	OverdueTasks       int64           `json:"overdue_tasks"`
	RecentInteractions int64           `json:"recent_interactions"`
}

// DashboardStats computes the dashboard counters. Revenue sums every order
// that was not cancelled; RecentInteractions counts interactions since `since`.
func DashboardStats(ctx context.Context, db *gorm.DB, since time.Time) (*Dashboard, error) {
	d := &Dashboard{Revenue: decimal.Zero}
	db = db.WithContext(ctx)

	if err := db.Model(&domain.Customer{}).Count(&d.Customers).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&domain.Order{}).Count(&d.Orders).Error; err != nil {
		return nil, err
	}

	var revenue decimal.NullDecimal
	if err := db.Model(&domain.Order{}).
		Where("status <> ?", domain.OrderCancelled).
		Select("SUM(amount)").
		Row().
		Scan(&revenue); err != nil {
		return nil, err
	}
	if revenue.Valid {
		d.Revenue = revenue.Decimal
	}

	open := []string{domain.TaskPending, domain.TaskInProgress, domain.TaskOverdue}
	if err := db.Model(&domain.Task{}).Where("status IN ?", open).Count(&d.OpenTasks).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&domain.Task{}).Where("status = ?", domain.TaskOverdue).Count(&d.OverdueTasks).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&domain.Interaction{}).Where("occurred_at >= ?", since.UTC()).Count(&d.RecentInteractions).Error; err != nil {
		return nil, err
	}
	return d, nil
}
