// Package services – TaskAutomation
//
// TaskAutomation runs the periodic task rules: open tasks past their due
// time become OVERDUE, and customers nobody has contacted for StaleAfter get
// a FOLLOW_UP task. Each pass is a set of short independent writes and shares
// no state with merges beyond the tables themselves.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-crm-backend/internal/domain"
	"github.com/tbourn/go-crm-backend/internal/repo"
)

// TaskAutomation holds the schedule and thresholds of the task rules.
type TaskAutomation struct {
	DB *gorm.DB

	// OverdueEvery and StaleEvery are the Run intervals; zero disables a rule.
	OverdueEvery time.Duration
	StaleEvery   time.Duration
	// StaleAfter is how long without an interaction makes a customer stale.
	StaleAfter time.Duration
	// FollowUpDueIn is the due offset of generated follow-up tasks.
	FollowUpDueIn time.Duration
	// BatchSize caps follow-ups created per pass; zero means unlimited.
	BatchSize int

	// Now returns the current time; nil means time.Now.
	Now func() time.Time
}

func (a *TaskAutomation) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}

// MarkOverdue moves every open task due before now to OVERDUE.
func (a *TaskAutomation) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	tr := otel.Tracer("services/TaskAutomation")
	ctx, span := tr.Start(ctx, "MarkOverdue")
	defer span.End()

	n, err := repo.MarkOverdueTasks(ctx, a.DB, now)
	if err != nil {
		return 0, err
	}
	tasksOverdueMarked.Add(float64(n))
	span.SetAttributes(attribute.Int64("tasks.marked", n))
	if n > 0 {
		log.Info().Int64("count", n).Msg("tasks marked overdue")
	}
	return n, nil
}

// CreateStaleFollowUps gives every stale customer without an open follow-up
// a new FOLLOW_UP task due FollowUpDueIn from now. Failures for a single
// customer (for example one merged away mid-pass) are logged and skipped.
func (a *TaskAutomation) CreateStaleFollowUps(ctx context.Context, now time.Time) (int, error) {
	tr := otel.Tracer("services/TaskAutomation")
	ctx, span := tr.Start(ctx, "CreateStaleFollowUps",
		trace.WithAttributes(attribute.String("stale_after", a.StaleAfter.String())),
	)
	defer span.End()

	if a.StaleAfter <= 0 {
		return 0, nil
	}
	stale, err := repo.ListStaleCustomers(ctx, a.DB, now.Add(-a.StaleAfter), a.BatchSize)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, c := range stale {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		t := &domain.Task{
			CustomerPhone: c.Phone,
			Title:         "Follow up with " + c.Name,
			Type:          domain.TaskTypeFollowUp,
			Priority:      domain.PriorityMedium,
			Status:        domain.TaskPending,
			DueAt:         now.Add(a.FollowUpDueIn),
		}
		if err := repo.CreateTask(ctx, a.DB, t); err != nil {
			log.Warn().Err(err).Str("phone", maskPhone(c.Phone)).Msg("follow-up task not created")
			continue
		}
		created++
	}
	followUpsCreated.Add(float64(created))
	span.SetAttributes(attribute.Int("tasks.created", created))
	if created > 0 {
		log.Info().Int("count", created).Msg("follow-up tasks created")
	}
	return created, nil
}

// SweepResult summarizes one SweepOnce pass.
type SweepResult struct {
	Overdue          int64
	FollowUps        int
	IdempotencyPurge int64
}

// SweepOnce runs every rule once and purges expired idempotency records.
func (a *TaskAutomation) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := a.now()

	n, err := a.MarkOverdue(ctx, now)
	if err != nil {
		return res, err
	}
	res.Overdue = n

	created, err := a.CreateStaleFollowUps(ctx, now)
	if err != nil {
		return res, err
	}
	res.FollowUps = created

	purged, err := repo.PurgeExpiredIdempotency(ctx, a.DB, now)
	if err != nil {
		return res, err
	}
	res.IdempotencyPurge = purged
	return res, nil
}

// Run executes the rules on their intervals until ctx is cancelled.
func (a *TaskAutomation) Run(ctx context.Context) {
	var overdueC, staleC <-chan time.Time
	if a.OverdueEvery > 0 {
		t := time.NewTicker(a.OverdueEvery)
		defer t.Stop()
		overdueC = t.C
	}
	if a.StaleEvery > 0 {
		t := time.NewTicker(a.StaleEvery)
		defer t.Stop()
		staleC = t.C
	}
	log.Info().
		Dur("overdue_every", a.OverdueEvery).
		Dur("stale_every", a.StaleEvery).
		Msg("task automation started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("task automation stopped")
			return
		case <-overdueC:
			if _, err := a.MarkOverdue(ctx, a.now()); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("overdue sweep failed")
			}
		case <-staleC:
			if _, err := a.CreateStaleFollowUps(ctx, a.now()); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("stale customer scan failed")
			}
			if _, err := repo.PurgeExpiredIdempotency(ctx, a.DB, a.now()); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("idempotency purge failed")
			}
		}
	}
}
