package repo

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-crm-backend/internal/domain"
)

// newRepoDB opens a migrated, file-backed SQLite database that lives for the
// duration of the test.
func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "crm.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func strPtr(s string) *string { return &s }

func seedCustomer(t *testing.T, db *gorm.DB, phone, name string) *domain.Customer {
	t.Helper()
	c := &domain.Customer{Phone: phone, Name: name, Tags: []string{}}
	if err := CreateCustomer(context.Background(), db, c); err != nil {
		t.Fatalf("seed customer %s: %v", phone, err)
	}
	return c
}

func seedUser(t *testing.T, db *gorm.DB, email string) *domain.User {
	t.Helper()
	u := &domain.User{Name: "Staff " + email, Email: email, Role: "sales"}
	if err := CreateUser(context.Background(), db, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func seedOrder(t *testing.T, db *gorm.DB, phone, amount string) *domain.Order {
	t.Helper()
	o := &domain.Order{CustomerPhone: phone, Amount: decimal.RequireFromString(amount)}
	if err := CreateOrder(context.Background(), db, o); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return o
}

func seedInteraction(t *testing.T, db *gorm.DB, phone, userID string, at time.Time) *domain.Interaction {
	t.Helper()
	it := &domain.Interaction{CustomerPhone: phone, UserID: userID, Channel: "phone", Summary: "called", OccurredAt: at}
	if err := CreateInteraction(context.Background(), db, it); err != nil {
		t.Fatalf("seed interaction: %v", err)
	}
	return it
}

func seedTask(t *testing.T, db *gorm.DB, phone, status string, due time.Time) *domain.Task {
	t.Helper()
	tk := &domain.Task{CustomerPhone: phone, Title: "follow up", Type: domain.TaskTypeFollowUp, Priority: domain.PriorityMedium, Status: status, DueAt: due}
	if err := CreateTask(context.Background(), db, tk); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return tk
}
