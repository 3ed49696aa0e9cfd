// Package services – TaskService
//
// TaskService manages follow-up and reminder tasks and enforces the status
// lifecycle:
//
//	PENDING     -> IN_PROGRESS | CANCELLED
//	IN_PROGRESS -> COMPLETED | CANCELLED
//	OVERDUE     -> CANCELLED, or PENDING through Delay
//
// OVERDUE itself is only entered through TaskAutomation.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-crm-backend/internal/domain"
	"github.com/tbourn/go-crm-backend/internal/repo"
)

// Audit identifiers for task changes.
const (
	AuditActionTaskStatus = "update_task_status"
	AuditActionTaskDelay  = "delay_task"
	AuditEntityTask       = "Task"
)

// TaskInput carries a new task.
type TaskInput struct {
	CustomerPhone string
	OrderID       *string
	AssigneeID    *string
	Title         string
	Type          string
	Priority      string
	DueAt         time.Time
}

// TaskService manages tasks.
type TaskService struct {
	DB    *gorm.DB
	Audit AuditSink
	// Now returns the current time; nil means time.Now.
	Now func() time.Time
}

func (s *TaskService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Create validates in and inserts a PENDING task.
func (s *TaskService) Create(ctx context.Context, in TaskInput) (*domain.Task, error) {
	tr := otel.Tracer("services/TaskService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("task.type", in.Type)),
	)
	defer span.End()

	t := &domain.Task{
		CustomerPhone: NormalizePhone(in.CustomerPhone),
		OrderID:       optional(in.OrderID),
		AssigneeID:    optional(in.AssigneeID),
		Title:         strings.TrimSpace(in.Title),
		Type:          strings.ToUpper(strings.TrimSpace(in.Type)),
		Priority:      strings.ToUpper(strings.TrimSpace(in.Priority)),
		Status:        domain.TaskPending,
		DueAt:         in.DueAt.UTC(),
	}
	if t.Type == "" {
		t.Type = domain.TaskTypeFollowUp
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityMedium
	}
	switch {
	case t.Title == "":
		return nil, fmt.Errorf("%w: title is required", ErrInvalidTask)
	case !domain.IsValidTaskType(t.Type):
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidTask, in.Type)
	case !domain.IsValidPriority(t.Priority):
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, in.Priority)
	case in.DueAt.IsZero():
		return nil, fmt.Errorf("%w: due_at is required", ErrInvalidTask)
	}

	if err := ensureCustomer(ctx, s.DB, t.CustomerPhone); err != nil {
		return nil, err
	}
	if t.OrderID != nil {
		o, err := repo.GetOrder(ctx, s.DB, *t.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: order %s not found", ErrInvalidTask, *t.OrderID)
			}
			return nil, err
		}
		if o.CustomerPhone != t.CustomerPhone {
			return nil, fmt.Errorf("%w: order belongs to another customer", ErrInvalidTask)
		}
	}
	if t.AssigneeID != nil {
		if err := ensureUser(ctx, s.DB, *t.AssigneeID); err != nil {
			return nil, err
		}
	}
	if err := repo.CreateTask(ctx, s.DB, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns one task.
func (s *TaskService) Get(ctx context.Context, id string) (*domain.Task, error) {
	t, err := repo.GetTask(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	return t, err
}

// List returns a page of tasks matching f, earliest due first.
func (s *TaskService) List(ctx context.Context, f repo.TaskFilter, page, pageSize int) ([]domain.Task, int64, error) {
	tr := otel.Tracer("services/TaskService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	_, pageSize, offset := pageBounds(page, pageSize)
	if f.CustomerPhone != "" {
		f.CustomerPhone = NormalizePhone(f.CustomerPhone)
	}
	f.Status = strings.ToUpper(f.Status)
	f.Type = strings.ToUpper(f.Type)

	total, err := repo.CountTasks(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Task{}, 0, nil
	}
	items, err := repo.ListTasks(ctx, s.DB, f, offset, pageSize)
	return items, total, err
}

// Transition moves a task to status `to` when the lifecycle allows it.
func (s *TaskService) Transition(ctx context.Context, actor Actor, id, to string) (*domain.Task, error) {
	tr := otel.Tracer("services/TaskService")
	ctx, span := tr.Start(ctx, "Transition",
		trace.WithAttributes(attribute.String("task.to", to)),
	)
	defer span.End()
	start := time.Now()

	to = strings.ToUpper(strings.TrimSpace(to))
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(t.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}

	fields := map[string]any{"status": to}
	if to == domain.TaskCompleted {
		fields["completed_at"] = s.now()
	}
	ok, err := repo.UpdateTaskIfStatus(ctx, s.DB, id, t.Status, fields)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: task changed concurrently", ErrInvalidTransition)
	}

	recordAudit(ctx, s.Audit, AuditEntry{
		Actor: actor, Action: AuditActionTaskStatus, Entity: AuditEntityTask, EntityID: id,
		Changes: map[string]any{"from": t.Status, "to": to}, Latency: time.Since(start),
	})
	return s.Get(ctx, id)
}

// Delay reschedules an open task to dueAt, which must lie in the future. An
// OVERDUE task returns to PENDING.
func (s *TaskService) Delay(ctx context.Context, actor Actor, id string, dueAt time.Time) (*domain.Task, error) {
	tr := otel.Tracer("services/TaskService")
	ctx, span := tr.Start(ctx, "Delay")
	defer span.End()
	start := time.Now()

	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.IsOpenTaskStatus(t.Status) {
		return nil, fmt.Errorf("%w: cannot delay a %s task", ErrInvalidTransition, t.Status)
	}
	if !dueAt.After(s.now()) {
		return nil, fmt.Errorf("%w: new due time must be in the future", ErrInvalidTask)
	}

	fields := map[string]any{"due_at": dueAt.UTC()}
	status := t.Status
	if t.Status == domain.TaskOverdue {
		status = domain.TaskPending
		fields["status"] = status
	}
	ok, err := repo.UpdateTaskIfStatus(ctx, s.DB, id, t.Status, fields)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: task changed concurrently", ErrInvalidTransition)
	}

	recordAudit(ctx, s.Audit, AuditEntry{
		Actor: actor, Action: AuditActionTaskDelay, Entity: AuditEntityTask, EntityID: id,
		Changes: map[string]any{"from_due": t.DueAt, "to_due": dueAt.UTC(), "status": status},
		Latency: time.Since(start),
	})
	return s.Get(ctx, id)
}
