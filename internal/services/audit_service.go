// Package services – AuditService
//
// This file implements the audit sink. Business operations report their
// outcome through the AuditSink interface after their own transaction has
// finished; a failing sink is logged and never turns a committed operation
// into a failed one.
package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-crm-backend/internal/domain"
	"github.com/tbourn/go-crm-backend/internal/repo"
)

// Actor identifies who triggered an operation. It is used for auditing only,
// never for authorization.
type Actor struct {
	UserID    string
	UserIP    string
	RequestID string
}

// AuditEntry is one business event handed to an AuditSink.
type AuditEntry struct {
	Actor    Actor
	Action   string
	Entity   string
	EntityID string
	// Changes is marshalled to JSON as-is.
	Changes any
	// Err marks the entry as a failure when non-nil.
	Err     error
	Latency time.Duration
}

// AuditSink records business events.
type AuditSink interface {
	Record(ctx context.Context, e AuditEntry) error
}

// AuditService persists audit entries through the repo layer.
type AuditService struct {
	DB *gorm.DB
}

// Record writes e as one audit_logs row. The write is detached from ctx
// cancellation so a client disconnect after commit does not drop the record.
func (s *AuditService) Record(ctx context.Context, e AuditEntry) error {
	tr := otel.Tracer("services/AuditService")
	ctx, span := tr.Start(context.WithoutCancel(ctx), "Record",
		trace.WithAttributes(
			attribute.String("audit.action", e.Action),
			attribute.String("audit.entity", e.Entity),
		),
	)
	defer span.End()

	changes := []byte("{}")
	if e.Changes != nil {
		b, err := json.Marshal(e.Changes)
		if err != nil {
			return err
		}
		changes = b
	}

	row := &domain.AuditLog{
		RequestID: e.Actor.RequestID,
		UserID:    e.Actor.UserID,
		UserIP:    e.Actor.UserIP,
		Action:    e.Action,
		Entity:    e.Entity,
		EntityID:  e.EntityID,
		Changes:   datatypes.JSON(changes),
		Status:    domain.AuditSuccess,
		LatencyMs: e.Latency.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
	if e.Err != nil {
		row.Status = domain.AuditFailure
		row.ErrorMessage = e.Err.Error()
	}
	return repo.CreateAuditLog(ctx, s.DB, row)
}

// ListPage returns a page of audit records matching f, newest first.
func (s *AuditService) ListPage(ctx context.Context, f repo.AuditFilter, page, pageSize int) ([]domain.AuditLog, int64, error) {
	tr := otel.Tracer("services/AuditService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	_, pageSize, offset := pageBounds(page, pageSize)
	total, err := repo.CountAuditLogs(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.AuditLog{}, 0, nil
	}
	items, err := repo.ListAuditLogsPage(ctx, s.DB, f, offset, pageSize)
	return items, total, err
}

// recordAudit hands e to sink and logs, but otherwise ignores, a failure.
func recordAudit(ctx context.Context, sink AuditSink, e AuditEntry) {
	if sink == nil {
		return
	}
	if err := sink.Record(ctx, e); err != nil {
		log.Error().
			Err(err).
			Str("request_id", e.Actor.RequestID).
			Str("action", e.Action).
			Str("entity", e.Entity).
			Msg("audit record failed")
	}
}

// pageBounds applies the default page/pageSize and returns the row offset.
func pageBounds(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return page, pageSize, (page - 1) * pageSize
}
