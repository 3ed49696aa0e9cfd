// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for tasks,
// including the bulk status sweep used by task automation.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-crm-backend/internal/domain"
)

// TaskFilter narrows ListTasks/CountTasks. Empty fields do not filter.
type TaskFilter struct {
	CustomerPhone string
	AssigneeID    string
	Status        string
	Type          string
}

func (f TaskFilter) apply(db *gorm.DB) *gorm.DB {
	if f.CustomerPhone != "" {
		db = db.Where("customer_phone = ?", f.CustomerPhone)
	}
	if f.AssigneeID != "" {
		db = db.Where("assignee_id = ?", f.AssigneeID)
	}
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		db = db.Where("type = ?", f.Type)
	}
	return db
}

// CreateTask inserts t, assigning an ID and default status when missing.
func CreateTask(ctx context.Context, db *gorm.DB, t *domain.Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = domain.TaskPending
	}
	return db.WithContext(ctx).Omit(clause.Associations).Create(t).Error
}

// GetTask fetches a task by ID, or ErrNotFound.
func GetTask(ctx context.Context, db *gorm.DB, id string) (*domain.Task, error) {
	var t domain.Task
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTasksByCustomer returns a customer's tasks ordered by due time.
func ListTasksByCustomer(ctx context.Context, db *gorm.DB, phone string) ([]domain.Task, error) {
	out := []domain.Task{}
	err := db.WithContext(ctx).
		Where("customer_phone = ?", phone).
		Order("due_at asc").
		Order("id asc").
		Find(&out).Error
	return out, err
}

// ListTasks returns a page of tasks matching f, earliest due first.
func ListTasks(ctx context.Context, db *gorm.DB, f TaskFilter, offset, limit int) ([]domain.Task, error) {
	var out []domain.Task
	err := f.apply(db.WithContext(ctx).Model(&domain.Task{})).
		Order("due_at asc").
		Order("id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountTasks returns how many tasks match f.
func CountTasks(ctx context.Context, db *gorm.DB, f TaskFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Task{})).Count(&total).Error
	return total, err
}

// MarkOverdueTasks moves every PENDING or IN_PROGRESS task whose due time is
// before now to OVERDUE and returns how many rows changed.
func MarkOverdueTasks(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Task{}).
		Where("status IN ? AND due_at < ?", []string{domain.TaskPending, domain.TaskInProgress}, now.UTC()).
		Update("status", domain.TaskOverdue)
	return res.RowsAffected, res.Error
}

// UpdateTaskIfStatus applies fields only while the task still has status
// from. It reports false when the task is missing or its status changed.
func UpdateTaskIfStatus(ctx context.Context, db *gorm.DB, id, from string, fields map[string]any) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Task{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
