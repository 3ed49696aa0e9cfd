package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-crm-backend/internal/domain"
	"github.com/tbourn/go-crm-backend/internal/repo"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("OTEL_ENABLED", "false")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestMigrate_CreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crm.db")
	if _, err := runCLI(t, "migrate", "--db", path); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	db, err := repo.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	}()
	for _, m := range []any{&domain.Customer{}, &domain.Order{}, &domain.Task{}, &domain.AuditLog{}, &domain.Idempotency{}} {
		if !db.Migrator().HasTable(m) {
			t.Fatalf("missing table for %T", m)
		}
	}
}

func TestSweep_MarksOverdue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crm.db")
	if _, err := runCLI(t, "migrate", "--db", path); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	db, err := repo.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if err := repo.CreateCustomer(ctx, db, &domain.Customer{Phone: "0912345678", Name: "Amy"}); err != nil {
		t.Fatalf("customer: %v", err)
	}
	if err := repo.CreateTask(ctx, db, &domain.Task{
		CustomerPhone: "0912345678",
		Title:         "call back",
		Type:          domain.TaskTypeFollowUp,
		Priority:      domain.PriorityMedium,
		DueAt:         time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("task: %v", err)
	}
	sqlDB, _ := db.DB()
	_ = sqlDB.Close()

	out, err := runCLI(t, "sweep", "--db", path)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !strings.Contains(out, "overdue=1") {
		t.Fatalf("unexpected sweep output: %q", out)
	}
}

func TestRoot_RejectsBadConfig(t *testing.T) {
	t.Setenv("MERGE_TIMEOUT", "0s")
	if _, err := runCLI(t, "migrate", "--db", filepath.Join(t.TempDir(), "x.db")); err == nil {
		t.Fatalf("expected config error")
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("PORT", "0")
	t.Setenv("AUTOMATION_ENABLED", "true")
	t.Setenv("LOG_LEVEL", "error")

	root := newRootCmd()
	root.SetArgs([]string{"serve", "--db", filepath.Join(t.TempDir(), "crm.db")})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not stop")
	}
}
