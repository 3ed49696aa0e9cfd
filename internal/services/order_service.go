// Package services – OrderService, InteractionService, UserService
//
// These services cover the history that hangs off a customer. They check
// that referenced customers and users exist so callers get a NotFound
// instead of a raw foreign-key failure.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-crm-backend/internal/domain"
	"github.com/tbourn/go-crm-backend/internal/repo"
)

// ensureCustomer maps a missing customer to ErrCustomerNotFound.
func ensureCustomer(ctx context.Context, db *gorm.DB, phone string) error {
	if _, err := repo.GetCustomer(ctx, db, phone); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCustomerNotFound
		}
		return err
	}
	return nil
}

// ensureUser maps a missing user to ErrUserNotFound.
func ensureUser(ctx context.Context, db *gorm.DB, id string) error {
	if _, err := repo.GetUser(ctx, db, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// OrderInput carries a new order.
type OrderInput struct {
	Amount decimal.Decimal
	Status string
	Note   string
}

// OrderService manages customer orders.
type OrderService struct {
	DB *gorm.DB
}

func validOrderStatus(s string) bool {
	switch s {
	case domain.OrderPending, domain.OrderPaid, domain.OrderShipped, domain.OrderCompleted, domain.OrderCancelled:
		return true
	}
	return false
}

// Create records an order for the customer with the given phone.
func (s *OrderService) Create(ctx context.Context, phone string, in OrderInput) (*domain.Order, error) {
	tr := otel.Tracer("services/OrderService")
	ctx, span := tr.Start(ctx, "Create")
	defer span.End()

	phone = NormalizePhone(phone)
	if in.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidOrder)
	}
	status := strings.ToUpper(strings.TrimSpace(in.Status))
	if status == "" {
		status = domain.OrderPending
	}
	if !validOrderStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, in.Status)
	}
	if err := ensureCustomer(ctx, s.DB, phone); err != nil {
		return nil, err
	}
	o := &domain.Order{
		CustomerPhone: phone,
		Amount:        in.Amount.Round(2),
		Status:        status,
		Note:          strings.TrimSpace(in.Note),
	}
	if err := repo.CreateOrder(ctx, s.DB, o); err != nil {
		return nil, err
	}
	return o, nil
}

// ListByCustomer returns the customer's orders, newest first.
func (s *OrderService) ListByCustomer(ctx context.Context, phone string) ([]domain.Order, error) {
	tr := otel.Tracer("services/OrderService")
	ctx, span := tr.Start(ctx, "ListByCustomer")
	defer span.End()

	phone = NormalizePhone(phone)
	if err := ensureCustomer(ctx, s.DB, phone); err != nil {
		return nil, err
	}
	return repo.ListOrdersByCustomer(ctx, s.DB, phone)
}

// InteractionInput carries a new interaction.
type InteractionInput struct {
	UserID     string
	Channel    string
	Summary    string
	Notes      string
	OccurredAt time.Time
}

// InteractionService manages logged customer contacts.
type InteractionService struct {
	DB *gorm.DB
}

func validChannel(c string) bool {
	switch c {
	case "phone", "line", "email", "visit", "facebook", "other":
		return true
	}
	return false
}

// Create logs an interaction between a user and the customer.
func (s *InteractionService) Create(ctx context.Context, phone string, in InteractionInput) (*domain.Interaction, error) {
	tr := otel.Tracer("services/InteractionService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("interaction.channel", in.Channel)),
	)
	defer span.End()

	phone = NormalizePhone(phone)
	channel := strings.ToLower(strings.TrimSpace(in.Channel))
	if !validChannel(channel) {
		return nil, fmt.Errorf("%w: unknown channel %q", ErrInvalidInteraction, in.Channel)
	}
	summary := strings.TrimSpace(in.Summary)
	if summary == "" {
		return nil, fmt.Errorf("%w: summary is required", ErrInvalidInteraction)
	}
	if err := ensureCustomer(ctx, s.DB, phone); err != nil {
		return nil, err
	}
	if err := ensureUser(ctx, s.DB, in.UserID); err != nil {
		return nil, err
	}
	it := &domain.Interaction{
		CustomerPhone: phone,
		UserID:        in.UserID,
		Channel:       channel,
		Summary:       summary,
		Notes:         strings.TrimSpace(in.Notes),
		OccurredAt:    in.OccurredAt.UTC(),
	}
	if err := repo.CreateInteraction(ctx, s.DB, it); err != nil {
		return nil, err
	}
	return it, nil
}

// ListByCustomer returns the customer's interactions, most recent first.
func (s *InteractionService) ListByCustomer(ctx context.Context, phone string) ([]domain.Interaction, error) {
	tr := otel.Tracer("services/InteractionService")
	ctx, span := tr.Start(ctx, "ListByCustomer")
	defer span.End()

	phone = NormalizePhone(phone)
	if err := ensureCustomer(ctx, s.DB, phone); err != nil {
		return nil, err
	}
	return repo.ListInteractionsByCustomer(ctx, s.DB, phone)
}

// UserService manages staff users.
type UserService struct {
	DB *gorm.DB
}

// Create adds a staff user. Role defaults to "sales".
func (s *UserService) Create(ctx context.Context, name, email, role string) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Create")
	defer span.End()

	name = NormalizeName(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidUser)
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed email", ErrInvalidUser)
	}
	role = strings.ToLower(strings.TrimSpace(role))
	switch role {
	case "":
		role = "sales"
	case "admin", "sales", "support":
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidUser, role)
	}
	u := &domain.User{Name: name, Email: strings.ToLower(addr.Address), Role: role}
	if err := repo.CreateUser(ctx, s.DB, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return u, nil
}

// Get returns one user.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// List returns every user.
func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "List")
	defer span.End()
	return repo.ListUsers(ctx, s.DB)
}
