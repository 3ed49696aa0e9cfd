// Package services – CustomerService
//
// This file implements CustomerService, which owns the customer lifecycle:
// creation (phone normalization, duplicate phone rejection), reads with
// history, paginated listing, partial updates (the phone is immutable) and
// deletion, which is refused while history still references the customer.
//
// Service-level errors (ErrCustomerNotFound, ErrCustomerExists, ...) are
// returned for predictable cases so handlers can map them to HTTP results.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-crm-backend/internal/domain"
	"github.com/tbourn/go-crm-backend/internal/repo"
)

// Audit actions for customer changes.
const (
	AuditActionCreateCustomer = "create_customer"
	AuditActionUpdateCustomer = "update_customer"
	AuditActionDeleteCustomer = "delete_customer"
)

const maxNameRunes = 100

// CustomerRepo defines the repository contract required by CustomerService.
type CustomerRepo interface {
	CreateCustomer(ctx context.Context, db *gorm.DB, c *domain.Customer) error
	GetCustomerWithHistory(ctx context.Context, db *gorm.DB, phone string) (*domain.CustomerHistory, error)
	GetCustomer(ctx context.Context, db *gorm.DB, phone string) (*domain.Customer, error)
	CountCustomers(ctx context.Context, db *gorm.DB, q string) (int64, error)
	ListCustomersPage(ctx context.Context, db *gorm.DB, q string, offset, limit int) ([]domain.Customer, error)
	UpdateCustomerFields(ctx context.Context, db *gorm.DB, phone string, fields map[string]any) error
	CountHistory(ctx context.Context, db *gorm.DB, phone string) (repo.HistoryCounts, error)
	DeleteCustomer(ctx context.Context, db *gorm.DB, phone string) error
}

// CustomerInput carries the attributes of a new customer.
type CustomerInput struct {
	Phone            string
	Name             string
	Email            *string
	LineID           *string
	FacebookURL      *string
	Source           string
	Tags             []string
	Region           *string
	MarketingConsent bool
	Notes            string
}

// CustomerPatch carries a partial update. Nil fields are left unchanged; an
// empty string clears an optional attribute.
type CustomerPatch struct {
	Name             *string
	Email            *string
	LineID           *string
	FacebookURL      *string
	Source           *string
	Tags             *[]string
	Region           *string
	MarketingConsent *bool
	Notes            *string
}

// CustomerService provides customer-level operations.
type CustomerService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the customer repository used by this service.
	Repo CustomerRepo
	// Audit receives create/update/delete events; nil disables auditing.
	Audit AuditSink
}

// NewCustomerService constructs a CustomerService.
func NewCustomerService(db *gorm.DB, r CustomerRepo, audit AuditSink) *CustomerService {
	return &CustomerService{DB: db, Repo: r, Audit: audit}
}

// Create validates in and inserts a new customer.
func (s *CustomerService) Create(ctx context.Context, actor Actor, in CustomerInput) (*domain.Customer, error) {
	tr := otel.Tracer("services/CustomerService")
	ctx, span := tr.Start(ctx, "Create")
	defer span.End()
	start := time.Now()

	c, err := buildCustomer(in)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.CreateCustomer(ctx, s.DB, c); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s", ErrCustomerExists, c.Phone)
		}
		return nil, err
	}

	recordAudit(ctx, s.Audit, AuditEntry{
		Actor: actor, Action: AuditActionCreateCustomer, Entity: AuditEntityCust, EntityID: c.Phone,
		Changes: map[string]any{"after": c}, Latency: time.Since(start),
	})
	return c, nil
}

// Get returns a customer with its orders, interactions and tasks.
func (s *CustomerService) Get(ctx context.Context, phone string) (*domain.CustomerHistory, error) {
	tr := otel.Tracer("services/CustomerService")
	ctx, span := tr.Start(ctx, "Get")
	defer span.End()

	h, err := s.Repo.GetCustomerWithHistory(ctx, s.DB, NormalizePhone(phone))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCustomerNotFound
	}
	return h, err
}

// ListPage returns a page of customers whose phone or name contains q.
func (s *CustomerService) ListPage(ctx context.Context, q string, page, pageSize int) ([]domain.Customer, int64, error) {
	tr := otel.Tracer("services/CustomerService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	_, pageSize, offset := pageBounds(page, pageSize)
	q = NormalizeName(q)

	total, err := s.Repo.CountCustomers(ctx, s.DB, q)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Customer{}, 0, nil
	}
	items, err := s.Repo.ListCustomersPage(ctx, s.DB, q, offset, pageSize)
	return items, total, err
}

// Update applies p to the customer identified by phone and returns the
// updated record. The phone itself cannot be changed.
func (s *CustomerService) Update(ctx context.Context, actor Actor, phone string, p CustomerPatch) (*domain.Customer, error) {
	tr := otel.Tracer("services/CustomerService")
	ctx, span := tr.Start(ctx, "Update")
	defer span.End()
	start := time.Now()

	phone = NormalizePhone(phone)
	fields, err := patchFields(p)
	if err != nil {
		return nil, err
	}
	if _, err := s.Repo.GetCustomer(ctx, s.DB, phone); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	if err := s.Repo.UpdateCustomerFields(ctx, s.DB, phone, fields); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	c, err := s.Repo.GetCustomer(ctx, s.DB, phone)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}

	recordAudit(ctx, s.Audit, AuditEntry{
		Actor: actor, Action: AuditActionUpdateCustomer, Entity: AuditEntityCust, EntityID: phone,
		Changes: map[string]any{"fields": sortedKeys(fields), "after": c}, Latency: time.Since(start),
	})
	return c, nil
}

// Delete removes a customer without history. Customers that still own
// orders, interactions or tasks must be merged instead.
func (s *CustomerService) Delete(ctx context.Context, actor Actor, phone string) error {
	tr := otel.Tracer("services/CustomerService")
	ctx, span := tr.Start(ctx, "Delete")
	defer span.End()
	start := time.Now()

	phone = NormalizePhone(phone)
	if _, err := s.Repo.GetCustomer(ctx, s.DB, phone); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCustomerNotFound
		}
		return err
	}
	h, err := s.Repo.CountHistory(ctx, s.DB, phone)
	if err != nil {
		return err
	}
	if h.Total() > 0 {
		return ErrCustomerHasHistory
	}
	if err := s.Repo.DeleteCustomer(ctx, s.DB, phone); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return ErrCustomerNotFound
		case repo.IsForeignKeyViolation(err):
			return ErrCustomerHasHistory
		}
		return err
	}

	recordAudit(ctx, s.Audit, AuditEntry{
		Actor: actor, Action: AuditActionDeleteCustomer, Entity: AuditEntityCust, EntityID: phone,
		Latency: time.Since(start),
	})
	return nil
}

// buildCustomer normalizes and validates a new customer.
func buildCustomer(in CustomerInput) (*domain.Customer, error) {
	phone := NormalizePhone(in.Phone)
	if !ValidPhone(phone) {
		return nil, ErrInvalidPhone
	}
	name := NormalizeName(in.Name)
	if err := validName(name); err != nil {
		return nil, err
	}
	email := optional(in.Email)
	if email != nil && !strings.Contains(*email, "@") {
		return nil, fmt.Errorf("%w: malformed email", ErrInvalidCustomer)
	}
	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = "manual"
	}
	return &domain.Customer{
		Phone:            phone,
		Name:             name,
		Email:            email,
		LineID:           optional(in.LineID),
		FacebookURL:      optional(in.FacebookURL),
		Source:           source,
		Tags:             datatypes.JSONSlice[string](normalizeTags(in.Tags)),
		Region:           optional(in.Region),
		MarketingConsent: in.MarketingConsent,
		Notes:            in.Notes,
	}, nil
}

// patchFields converts p into column updates.
func patchFields(p CustomerPatch) (map[string]any, error) {
	fields := map[string]any{}
	if p.Name != nil {
		name := NormalizeName(*p.Name)
		if err := validName(name); err != nil {
			return nil, err
		}
		fields["name"] = name
	}
	if p.Email != nil {
		email := optional(p.Email)
		if email != nil && !strings.Contains(*email, "@") {
			return nil, fmt.Errorf("%w: malformed email", ErrInvalidCustomer)
		}
		fields["email"] = email
	}
	if p.LineID != nil {
		fields["line_id"] = optional(p.LineID)
	}
	if p.FacebookURL != nil {
		fields["facebook_url"] = optional(p.FacebookURL)
	}
	if p.Region != nil {
		fields["region"] = optional(p.Region)
	}
	if p.Source != nil {
		src := strings.TrimSpace(*p.Source)
		if src == "" {
			return nil, fmt.Errorf("%w: source must not be empty", ErrInvalidCustomer)
		}
		fields["source"] = src
	}
	if p.Tags != nil {
		fields["tags"] = datatypes.JSONSlice[string](normalizeTags(*p.Tags))
	}
	if p.MarketingConsent != nil {
		fields["marketing_consent"] = *p.MarketingConsent
	}
	if p.Notes != nil {
		fields["notes"] = *p.Notes
	}
	return fields, nil
}

func validName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCustomer)
	}
	if utf8.RuneCountInString(name) > maxNameRunes {
		return fmt.Errorf("%w: name longer than %d characters", ErrInvalidCustomer, maxNameRunes)
	}
	return nil
}

// optional trims s and maps blank values to nil.
func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// Stats returns how many customers match q and their latest update time.
// Handlers derive weak ETags from it.
func (s *CustomerService) Stats(ctx context.Context, q string) (int64, *time.Time, error) {
	return repo.CustomersStats(ctx, s.DB, NormalizeName(q))
}
