// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Customer
// aggregate root.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - Missing customers yield gorm.ErrRecordNotFound (exported as ErrNotFound).
//   - A second customer with an existing phone yields ErrDuplicate.
//   - Other DB errors (constraint violations, connectivity) propagate raw.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-crm-backend/internal/domain"
)

// CreateCustomer inserts c. Associations are never written implicitly.
func CreateCustomer(ctx context.Context, db *gorm.DB, c *domain.Customer) error {
	err := db.WithContext(ctx).Omit(clause.Associations).Create(c).Error
	if IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetCustomer fetches a customer by phone, or ErrNotFound.
func GetCustomer(ctx context.Context, db *gorm.DB, phone string) (*domain.Customer, error) {
	var c domain.Customer
	if err := db.WithContext(ctx).Where("phone = ?", phone).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCustomerWithHistory fetches a customer and every order, interaction and
// task that references it.
func GetCustomerWithHistory(ctx context.Context, db *gorm.DB, phone string) (*domain.CustomerHistory, error) {
	c, err := GetCustomer(ctx, db, phone)
	if err != nil {
		return nil, err
	}
	h := &domain.CustomerHistory{Customer: *c}
	if h.Orders, err = ListOrdersByCustomer(ctx, db, phone); err != nil {
		return nil, err
	}
	if h.Interactions, err = ListInteractionsByCustomer(ctx, db, phone); err != nil {
		return nil, err
	}
	if h.Tasks, err = ListTasksByCustomer(ctx, db, phone); err != nil {
		return nil, err
	}
	return h, nil
}

// FindCustomers returns the customers whose phone is in phones. Missing
// phones are simply absent from the result.
func FindCustomers(ctx context.Context, db *gorm.DB, phones []string) ([]domain.Customer, error) {
	out := []domain.Customer{}
	if len(phones) == 0 {
		return out, nil
	}
	err := db.WithContext(ctx).Where("phone IN ?", phones).Find(&out).Error
	return out, err
}

// customerQuery scopes a query to customers whose phone or name contains q.
func customerQuery(db *gorm.DB, q string) *gorm.DB {
	q = strings.TrimSpace(q)
	if q == "" {
		return db
	}
	like := "%" + EscapeLike(q) + "%"
	return db.Where(`phone LIKE ? ESCAPE '\' OR name LIKE ? ESCAPE '\'`, like, like)
}

// ListCustomersPage returns a page of customers matching q, most recently
// updated first. Use CountCustomers for pagination metadata.
func ListCustomersPage(ctx context.Context, db *gorm.DB, q string, offset, limit int) ([]domain.Customer, error) {
	var out []domain.Customer
	err := customerQuery(db.WithContext(ctx).Model(&domain.Customer{}), q).
		Order("updated_at desc").
		Order("phone asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountCustomers returns how many customers match q.
func CountCustomers(ctx context.Context, db *gorm.DB, q string) (int64, error) {
	var total int64
	err := customerQuery(db.WithContext(ctx).Model(&domain.Customer{}), q).Count(&total).Error
	return total, err
}

// UpdateCustomerFields applies fields (column name -> value) to one customer
// in a single UPDATE. It returns ErrNotFound when no row matched.
func UpdateCustomerFields(ctx context.Context, db *gorm.DB, phone string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	res := db.WithContext(ctx).
		Model(&domain.Customer{}).
		Where("phone = ?", phone).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCustomer hard-deletes one customer. Foreign keys restrict the delete
// while history still references the phone. It returns ErrNotFound when no
// row matched.
func DeleteCustomer(ctx context.Context, db *gorm.DB, phone string) error {
	res := db.WithContext(ctx).Where("phone = ?", phone).Delete(&domain.Customer{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindCustomersByNameLike returns customers whose name matches the SQL LIKE
// pattern %fragment%, excluding excludePhone when non-empty. LIKE folds ASCII
// case on some engines, so callers that need an exact substring policy must
// filter the result again.
func FindCustomersByNameLike(ctx context.Context, db *gorm.DB, fragment, excludePhone string) ([]domain.Customer, error) {
	out := []domain.Customer{}
	q := db.WithContext(ctx).Where(`name LIKE ? ESCAPE '\'`, "%"+EscapeLike(fragment)+"%")
	if excludePhone != "" {
		q = q.Where("phone <> ?", excludePhone)
	}
	err := q.Order("created_at asc").Order("phone asc").Find(&out).Error
	return out, err
}

// ListStaleCustomers returns customers created before cutoff that have no
// interaction since cutoff and no open FOLLOW_UP task.
func ListStaleCustomers(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.Customer, error) {
	var out []domain.Customer
	recent := db.Model(&domain.Interaction{}).
		Select("1").
		Where("interactions.customer_phone = customers.phone AND interactions.occurred_at >= ?", cutoff)
	openFollowUp := db.Model(&domain.Task{}).
		Select("1").
		Where("tasks.customer_phone = customers.phone AND tasks.type = ? AND tasks.status IN ?",
			domain.TaskTypeFollowUp, []string{domain.TaskPending, domain.TaskInProgress, domain.TaskOverdue})
	q := db.WithContext(ctx).
		Where("customers.created_at < ?", cutoff).
		Where("NOT EXISTS (?)", recent).
		Where("NOT EXISTS (?)", openFollowUp).
		Order("customers.phone asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// EscapeLike escapes LIKE metacharacters so s matches literally when used
// with ESCAPE '\'.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
