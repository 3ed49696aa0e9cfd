package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-crm-backend/internal/domain"
)

func TestAuditLogs_CreateListCount(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, action := range []string{"create_customer", "merge_customers", "merge_customers"} {
		a := &domain.AuditLog{
			Action:    action,
			Entity:    "Customer",
			EntityID:  "0912345678",
			Status:    domain.AuditSuccess,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if err := CreateAuditLog(ctx, db, a); err != nil {
			t.Fatalf("CreateAuditLog: %v", err)
		}
		if a.ID == "" || string(a.Changes) != "{}" {
			t.Fatalf("defaults not applied: %+v", a)
		}
	}

	n, err := CountAuditLogs(ctx, db, AuditFilter{Action: "merge_customers"})
	if err != nil || n != 2 {
		t.Fatalf("CountAuditLogs = %d, %v", n, err)
	}
	list, err := ListAuditLogsPage(ctx, db, AuditFilter{Entity: "Customer"}, 0, 10)
	if err != nil || len(list) != 3 {
		t.Fatalf("ListAuditLogsPage = %d, %v", len(list), err)
	}
	if !list[0].Timestamp.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("expected newest first, got %v", list[0].Timestamp)
	}
}
