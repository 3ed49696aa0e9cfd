package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-crm-backend/internal/domain"
	"github.com/tbourn/go-crm-backend/internal/repo"
)

// newServiceDB opens a migrated, file-backed SQLite database for one test.
func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "crm.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func strPtr(s string) *string { return &s }

type customerSeed struct {
	phone, name, email, notes string
	tags                      []string
}

func seedCustomer(t *testing.T, db *gorm.DB, s customerSeed) *domain.Customer {
	t.Helper()
	c := &domain.Customer{Phone: s.phone, Name: s.name, Notes: s.notes, Tags: datatypes.JSONSlice[string]{}}
	if s.name == "" {
		c.Name = "Customer " + s.phone
	}
	if s.email != "" {
		c.Email = strPtr(s.email)
	}
	if s.tags != nil {
		c.Tags = datatypes.JSONSlice[string](s.tags)
	}
	if err := repo.CreateCustomer(context.Background(), db, c); err != nil {
		t.Fatalf("seed customer %s: %v", s.phone, err)
	}
	return c
}

func seedUser(t *testing.T, db *gorm.DB, email string) *domain.User {
	t.Helper()
	u := &domain.User{Name: "Staff", Email: email, Role: "sales"}
	if err := repo.CreateUser(context.Background(), db, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func seedOrder(t *testing.T, db *gorm.DB, phone, amount string) *domain.Order {
	t.Helper()
	o := &domain.Order{CustomerPhone: phone, Amount: decimal.RequireFromString(amount), Status: domain.OrderPaid}
	if err := repo.CreateOrder(context.Background(), db, o); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return o
}

func seedInteraction(t *testing.T, db *gorm.DB, phone, userID string, at time.Time) *domain.Interaction {
	t.Helper()
	it := &domain.Interaction{CustomerPhone: phone, UserID: userID, Channel: "phone", Summary: "called", OccurredAt: at}
	if err := repo.CreateInteraction(context.Background(), db, it); err != nil {
		t.Fatalf("seed interaction: %v", err)
	}
	return it
}

func seedTask(t *testing.T, db *gorm.DB, phone, status string, due time.Time) *domain.Task {
	t.Helper()
	tk := &domain.Task{
		CustomerPhone: phone, Title: "follow up", Type: domain.TaskTypeFollowUp,
		Priority: domain.PriorityMedium, Status: status, DueAt: due,
	}
	if err := repo.CreateTask(context.Background(), db, tk); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return tk
}

// ----- Fake audit sink -----

type fakeAuditSink struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (f *fakeAuditSink) Record(_ context.Context, e AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return f.err
}

func (f *fakeAuditSink) last(t *testing.T) AuditEntry {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		t.Fatalf("no audit entries recorded")
	}
	return f.entries[len(f.entries)-1]
}

var errInjected = errors.New("injected failure")
