package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbourn/go-crm-backend/internal/domain"
)

func TestOrderService_Create(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	seedCustomer(t, db, customerSeed{phone: "0912345678"})
	s := &OrderService{DB: db}

	o, err := s.Create(ctx, "0912-345-678", OrderInput{Amount: decimal.RequireFromString("19.999"), Note: " gift "})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if o.CustomerPhone != "0912345678" || o.Status != domain.OrderPending || o.Note != "gift" {
		t.Fatalf("unexpected order %+v", o)
	}
	if !o.Amount.Equal(decimal.RequireFromString("20")) {
		t.Fatalf("amount = %s; want 20.00", o.Amount)
	}
	if o.ID == "" || len(o.OrderNumber) < 5 || o.OrderNumber[:4] != "ORD-" {
		t.Fatalf("id/order number not assigned: %+v", o)
	}

	list, err := s.ListByCustomer(ctx, "0912345678")
	if err != nil || len(list) != 1 {
		t.Fatalf("ListByCustomer = %v, %v", list, err)
	}
}

func TestOrderService_CreateErrors(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	seedCustomer(t, db, customerSeed{phone: "0912345678"})
	s := &OrderService{DB: db}

	if _, err := s.Create(ctx, "0912345678", OrderInput{Amount: decimal.NewFromInt(-1)}); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("negative amount err = %v", err)
	}
	if _, err := s.Create(ctx, "0912345678", OrderInput{Amount: decimal.NewFromInt(1), Status: "lost"}); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("bad status err = %v", err)
	}
	if _, err := s.Create(ctx, "0999999999", OrderInput{Amount: decimal.NewFromInt(1)}); !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("missing customer err = %v", err)
	}
	if _, err := s.ListByCustomer(ctx, "0999999999"); !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("list missing customer err = %v", err)
	}
}

func TestInteractionService_Create(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	seedCustomer(t, db, customerSeed{phone: "0912345678"})
	u := seedUser(t, db, "staff@example.com")
	s := &InteractionService{DB: db}

	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("CST", 8*3600))
	it, err := s.Create(ctx, "0912345678", InteractionInput{
		UserID: u.ID, Channel: "LINE", Summary: " asked about delivery ", OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if it.Channel != "line" || it.Summary != "asked about delivery" || !it.OccurredAt.Equal(at) || it.OccurredAt.Location() != time.UTC {
		t.Fatalf("unexpected interaction %+v", it)
	}

	if _, err := s.Create(ctx, "0912345678", InteractionInput{UserID: u.ID, Channel: "fax", Summary: "x"}); !errors.Is(err, ErrInvalidInteraction) {
		t.Fatalf("bad channel err = %v", err)
	}
	if _, err := s.Create(ctx, "0912345678", InteractionInput{UserID: u.ID, Channel: "phone"}); !errors.Is(err, ErrInvalidInteraction) {
		t.Fatalf("blank summary err = %v", err)
	}
	if _, err := s.Create(ctx, "0912345678", InteractionInput{UserID: "nobody", Channel: "phone", Summary: "x"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("missing user err = %v", err)
	}

	list, err := s.ListByCustomer(ctx, "0912345678")
	if err != nil || len(list) != 1 {
		t.Fatalf("ListByCustomer = %v, %v", list, err)
	}
}

func TestUserService(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	s := &UserService{DB: db}

	u, err := s.Create(ctx, " Mei ", "Mei <MEI@Example.com>", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.Name != "Mei" || u.Email != "mei@example.com" || u.Role != "sales" || u.ID == "" {
		t.Fatalf("unexpected user %+v", u)
	}
	if _, err := s.Create(ctx, "Other", "mei@example.com", "admin"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("duplicate email err = %v", err)
	}
	if _, err := s.Create(ctx, "X", "not-an-email", ""); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("bad email err = %v", err)
	}
	if _, err := s.Create(ctx, "X", "x@example.com", "owner"); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("bad role err = %v", err)
	}

	got, err := s.Get(ctx, u.ID)
	if err != nil || got.Email != u.Email {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("Get missing err = %v", err)
	}
	all, err := s.List(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("List = %v, %v", all, err)
	}
}
