package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-crm-backend/internal/domain"
	"github.com/tbourn/go-crm-backend/internal/repo"
)

func TestAuditService_RecordAndList(t *testing.T) {
	db := newServiceDB(t)
	s := &AuditService{DB: db}

	// A cancelled caller context must not drop the record.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Record(ctx, AuditEntry{
		Actor:    Actor{UserID: "u1", UserIP: "127.0.0.1", RequestID: "r1"},
		Action:   "update_customer",
		Entity:   AuditEntityCust,
		EntityID: "0912345678",
		Changes:  map[string]any{"fields": []string{"name"}},
		Latency:  1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(context.Background(), AuditEntry{
		Action: "delete_customer", Entity: AuditEntityCust, EntityID: "0912345679", Err: errors.New("boom"),
	}); err != nil {
		t.Fatalf("Record failure: %v", err)
	}

	items, total, err := s.ListPage(context.Background(), repo.AuditFilter{EntityID: "0912345678"}, 0, 0)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("total=%d len=%d", total, len(items))
	}
	l := items[0]
	if l.Status != domain.AuditSuccess || l.LatencyMs != 1500 || l.UserIP != "127.0.0.1" {
		t.Fatalf("unexpected row %+v", l)
	}
	var changes map[string][]string
	if err := json.Unmarshal(l.Changes, &changes); err != nil || changes["fields"][0] != "name" {
		t.Fatalf("changes = %s (%v)", l.Changes, err)
	}

	items, _, err = s.ListPage(context.Background(), repo.AuditFilter{Action: "delete_customer"}, 1, 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("ListPage failure = %v, %v", items, err)
	}
	if items[0].Status != domain.AuditFailure || items[0].ErrorMessage != "boom" || string(items[0].Changes) != "{}" {
		t.Fatalf("unexpected failure row %+v", items[0])
	}
}

func TestAuditService_UnmarshalableChanges(t *testing.T) {
	s := &AuditService{} // marshal fails before the store is touched
	err := s.Record(context.Background(), AuditEntry{Action: "x", Changes: make(chan int)})
	if err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestRecordAudit_NilSinkAndErrors(t *testing.T) {
	recordAudit(context.Background(), nil, AuditEntry{Action: "x"})

	sink := &fakeAuditSink{err: errors.New("down")}
	recordAudit(context.Background(), sink, AuditEntry{Action: "x"})
	if len(sink.entries) != 1 {
		t.Fatalf("sink not called")
	}
}

func TestPageBounds(t *testing.T) {
	cases := []struct{ page, size, wantPage, wantSize, wantOffset int }{
		{0, 0, 1, 20, 0},
		{-3, 5, 1, 5, 0},
		{3, 10, 3, 10, 20},
	}
	for _, c := range cases {
		p, s, o := pageBounds(c.page, c.size)
		if p != c.wantPage || s != c.wantSize || o != c.wantOffset {
			t.Errorf("pageBounds(%d,%d) = %d,%d,%d", c.page, c.size, p, s, o)
		}
	}
}
