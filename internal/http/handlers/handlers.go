// Package handlers exposes the CRM's HTTP endpoints.
//
// Handlers are transport-thin: they bind and validate input, call the
// application services through the narrow interfaces below, and translate
// results and service errors into HTTP responses.
package handlers

import (
	"context"
	"time"

	"github.com/tbourn/go-crm-backend/internal/domain"
	"github.com/tbourn/go-crm-backend/internal/repo"
	"github.com/tbourn/go-crm-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// CustomerService defines customer lifecycle operations.
type CustomerService interface {
	Create(ctx context.Context, actor services.Actor, in services.CustomerInput) (*domain.Customer, error)
	Get(ctx context.Context, phone string) (*domain.CustomerHistory, error)
	ListPage(ctx context.Context, q string, page, pageSize int) ([]domain.Customer, int64, error)
	Update(ctx context.Context, actor services.Actor, phone string, p services.CustomerPatch) (*domain.Customer, error)
	Delete(ctx context.Context, actor services.Actor, phone string) error
	// Stats returns the number of customers matching q and their latest
	// update, used for weak ETags.
	Stats(ctx context.Context, q string) (int64, *time.Time, error)
}

// DuplicateChecker finds customers whose name contains a candidate name.
type DuplicateChecker interface {
	Check(ctx context.Context, name, excludePhone string) ([]domain.Customer, error)
}

// Merger folds secondary customers into a primary one.
type Merger interface {
	Merge(ctx context.Context, req services.MergeRequest, actor services.Actor) (*domain.Customer, error)
}

// OrderService records and lists customer orders.
type OrderService interface {
	Create(ctx context.Context, phone string, in services.OrderInput) (*domain.Order, error)
	ListByCustomer(ctx context.Context, phone string) ([]domain.Order, error)
}

// InteractionService records and lists customer contacts.
type InteractionService interface {
	Create(ctx context.Context, phone string, in services.InteractionInput) (*domain.Interaction, error)
	ListByCustomer(ctx context.Context, phone string) ([]domain.Interaction, error)
}

// UserService manages staff users.
type UserService interface {
	Create(ctx context.Context, name, email, role string) (*domain.User, error)
	Get(ctx context.Context, id string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
}

// TaskService manages follow-up tasks.
type TaskService interface {
	Create(ctx context.Context, in services.TaskInput) (*domain.Task, error)
	Get(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context, f repo.TaskFilter, page, pageSize int) ([]domain.Task, int64, error)
	Transition(ctx context.Context, actor services.Actor, id, to string) (*domain.Task, error)
	Delay(ctx context.Context, actor services.Actor, id string, dueAt time.Time) (*domain.Task, error)
}

// AuditReader pages through the audit trail.
type AuditReader interface {
	ListPage(ctx context.Context, f repo.AuditFilter, page, pageSize int) ([]domain.AuditLog, int64, error)
}

// StatsService computes the dashboard counters.
type StatsService interface {
	Dashboard(ctx context.Context, now time.Time) (*repo.Dashboard, error)
}

// IdempotencyStore remembers which resource a completed unsafe request
// produced so a retry with the same key can be answered without re-running
// it. Find returns repo.ErrNotFound when nothing valid is stored. The
// fingerprint saved with a record tells a genuine retry from a reused key.
type IdempotencyStore interface {
	Find(ctx context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error)
	Save(ctx context.Context, userID, scope, key, resourceID, fingerprint string, status int) error
}

//
// Handler wiring
//

// Deps bundles the services the handlers depend on. Nil services leave
// their routes unusable; Idempotency may be nil to disable replays.
type Deps struct {
	Customers    CustomerService
	Duplicates   DuplicateChecker
	Merges       Merger
	Orders       OrderService
	Interactions InteractionService
	Users        UserService
	Tasks        TaskService
	Audit        AuditReader
	Stats        StatsService
	Idempotency  IdempotencyStore
}

// Handlers groups the CRM endpoints.
type Handlers struct {
	customers    CustomerService
	duplicates   DuplicateChecker
	merges       Merger
	orders       OrderService
	interactions InteractionService
	users        UserService
	tasks        TaskService
	audit        AuditReader
	stats        StatsService
	idem         IdempotencyStore

	now func() time.Time
}

// New constructs Handlers bound to the given services.
func New(d Deps) *Handlers {
	return &Handlers{
		customers:    d.Customers,
		duplicates:   d.Duplicates,
		merges:       d.Merges,
		orders:       d.Orders,
		interactions: d.Interactions,
		users:        d.Users,
		tasks:        d.Tasks,
		audit:        d.Audit,
		stats:        d.Stats,
		idem:         d.Idempotency,
		now:          func() time.Time { return time.Now().UTC() },
	}
}
