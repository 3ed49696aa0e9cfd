// Package services – MergeService
//
// MergeService collapses one or more secondary customers into a primary one.
// Everything between loading the participants and deleting the last
// secondary runs in one database transaction: a failure at any point rolls
// back every write. Only after commit is the audit record emitted, on a best
// effort basis.
//
// Merging is one-shot. Repeating a request fails with ErrCustomerNotFound
// because the secondaries no longer exist.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-crm-backend/internal/domain"
	"github.com/tbourn/go-crm-backend/internal/repo"
)

// Audit identifiers for merges.
const (
	AuditActionMerge = "merge_customers"
	AuditEntityCust  = "Customer"
)

// NotesDelimiter separates notes appended from each secondary.
const NotesDelimiter = "\n---\n"

// MergeFields selects which fields are folded from secondaries into the
// primary. Unselected fields are never touched.
type MergeFields struct {
	Email bool `json:"email"`
	Notes bool `json:"notes"`
	Tags  bool `json:"tags"`
}

// nonMergeable lists attributes clients sometimes ask to merge but which the
// customer model does not carry.
var nonMergeable = map[string]struct{}{
	"address": {}, "company": {}, "title": {},
}

// ParseMergeFields converts a client-supplied selector into MergeFields.
// Unknown keys set to true are rejected; unknown keys set to false are
// ignored.
func ParseMergeFields(m map[string]bool) (MergeFields, error) {
	var f MergeFields
	var bad []string
	for k, v := range m {
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "email":
			f.Email = v
		case "notes":
			f.Notes = v
		case "tags":
			f.Tags = v
		default:
			if v {
				bad = append(bad, k)
			}
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		for i, k := range bad {
			if _, ok := nonMergeable[strings.ToLower(k)]; ok {
				bad[i] = k + " (not mergeable)"
			}
		}
		return MergeFields{}, fmt.Errorf("%w: unsupported merge fields: %s", ErrInvalidMerge, strings.Join(bad, ", "))
	}
	return f, nil
}

// MergeRequest names the surviving primary and the secondaries folded into it.
type MergeRequest struct {
	PrimaryPhone    string
	SecondaryPhones []string
	Fields          MergeFields
}

// Fingerprint is a canonical description of the request: the normalized
// primary, the sorted normalized secondaries and the selected fields. Two
// requests with the same fingerprint perform the same merge.
func (r MergeRequest) Fingerprint() string {
	secs := make([]string, 0, len(r.SecondaryPhones))
	for _, p := range r.SecondaryPhones {
		secs = append(secs, NormalizePhone(p))
	}
	sort.Strings(secs)

	var fields []string
	if r.Fields.Email {
		fields = append(fields, "email")
	}
	if r.Fields.Notes {
		fields = append(fields, "notes")
	}
	if r.Fields.Tags {
		fields = append(fields, "tags")
	}
	return NormalizePhone(r.PrimaryPhone) + "|" + strings.Join(secs, ",") + "|" + strings.Join(fields, ",")
}

// MergeService performs customer merges.
type MergeService struct {
	DB    *gorm.DB
	Audit AuditSink

	// Timeout bounds the whole transaction; zero disables it.
	Timeout time.Duration
	// TxOptions sets the isolation level. Nil uses the driver default.
	TxOptions *sql.TxOptions
	// MaxSecondaries caps one request; zero means unlimited.
	MaxSecondaries int
}

// NewMergeService builds a MergeService. On PostgreSQL it runs merges at
// SERIALIZABLE so that two merges sharing a secondary cannot both commit.
func NewMergeService(db *gorm.DB, audit AuditSink, timeout time.Duration) *MergeService {
	s := &MergeService{DB: db, Audit: audit, Timeout: timeout, MaxSecondaries: 50}
	if db != nil && db.Dialector != nil && db.Dialector.Name() == "postgres" {
		s.TxOptions = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return s
}

// mergeResult is what the transaction produced, kept for audit and logs.
type mergeResult struct {
	primary    *domain.Customer
	updated    map[string]any
	moved      map[string]repo.HistoryCounts
	totalMoved repo.HistoryCounts
}

// Merge validates req, then within one transaction loads all participants,
// folds the selected fields into the primary, re-points every order,
// interaction and task of each secondary to the primary, and deletes the
// secondaries. It returns the updated primary.
func (s *MergeService) Merge(ctx context.Context, req MergeRequest, actor Actor) (*domain.Customer, error) {
	tr := otel.Tracer("services/MergeService")
	ctx, span := tr.Start(ctx, "Merge",
		trace.WithAttributes(
			attribute.Int("merge.secondary_count", len(req.SecondaryPhones)),
			attribute.Bool("merge.fields.email", req.Fields.Email),
			attribute.Bool("merge.fields.notes", req.Fields.Notes),
			attribute.Bool("merge.fields.tags", req.Fields.Tags),
		),
	)
	defer span.End()
	start := time.Now()

	req, err := s.validate(req)
	var res *mergeResult
	if err == nil {
		res, err = s.run(ctx, req)
	}

	elapsed := time.Since(start)
	mergesTotal.WithLabelValues(mergeOutcome(err)).Inc()
	mergeDuration.Observe(elapsed.Seconds())
	recordAudit(ctx, s.Audit, mergeAuditEntry(req, actor, res, err, elapsed))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().
			Err(err).
			Str("request_id", actor.RequestID).
			Str("primary_phone", maskPhone(req.PrimaryPhone)).
			Int("secondary_count", len(req.SecondaryPhones)).
			Msg("customer merge failed")
		return nil, err
	}

	log.Info().
		Str("request_id", actor.RequestID).
		Str("primary_phone", maskPhone(req.PrimaryPhone)).
		Int("secondary_count", len(req.SecondaryPhones)).
		Int64("orders_moved", res.totalMoved.Orders).
		Int64("interactions_moved", res.totalMoved.Interactions).
		Int64("tasks_moved", res.totalMoved.Tasks).
		Dur("latency", elapsed).
		Msg("customers merged")
	return res.primary, nil
}

// validate normalizes phones and rejects malformed requests before any
// transaction is opened.
func (s *MergeService) validate(req MergeRequest) (MergeRequest, error) {
	req.PrimaryPhone = NormalizePhone(req.PrimaryPhone)
	if req.PrimaryPhone == "" {
		return req, fmt.Errorf("%w: primaryPhone is required", ErrInvalidMerge)
	}
	if !ValidPhone(req.PrimaryPhone) {
		return req, fmt.Errorf("%w: primaryPhone %q: %s", ErrInvalidMerge, req.PrimaryPhone, ErrInvalidPhone)
	}
	if len(req.SecondaryPhones) == 0 {
		return req, fmt.Errorf("%w: secondaryPhones must not be empty", ErrInvalidMerge)
	}
	if s.MaxSecondaries > 0 && len(req.SecondaryPhones) > s.MaxSecondaries {
		return req, fmt.Errorf("%w: at most %d secondaryPhones per merge", ErrInvalidMerge, s.MaxSecondaries)
	}

	secs := make([]string, 0, len(req.SecondaryPhones))
	seen := make(map[string]struct{}, len(req.SecondaryPhones))
	for _, raw := range req.SecondaryPhones {
		p := NormalizePhone(raw)
		if !ValidPhone(p) {
			return req, fmt.Errorf("%w: secondaryPhone %q: %s", ErrInvalidMerge, raw, ErrInvalidPhone)
		}
		if p == req.PrimaryPhone {
			return req, fmt.Errorf("%w: primaryPhone %s must not appear in secondaryPhones", ErrInvalidMerge, p)
		}
		if _, dup := seen[p]; dup {
			return req, fmt.Errorf("%w: secondaryPhone %s listed more than once", ErrInvalidMerge, p)
		}
		seen[p] = struct{}{}
		secs = append(secs, p)
	}
	req.SecondaryPhones = secs
	return req, nil
}

// run executes the transactional part of a merge and classifies failures.
func (s *MergeService) run(ctx context.Context, req MergeRequest) (*mergeResult, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	var opts []*sql.TxOptions
	if s.TxOptions != nil {
		opts = append(opts, s.TxOptions)
	}

	var res *mergeResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := mergeInTx(ctx, tx, req)
		res = r
		return err
	}, opts...)
	if err != nil {
		return nil, classifyMergeError(ctx, err)
	}
	return res, nil
}

// mergeInTx performs every write of a merge on tx.
func mergeInTx(ctx context.Context, tx *gorm.DB, req MergeRequest) (*mergeResult, error) {
	// 1. Load primary and secondaries; fail fast on any missing phone.
	all := append([]string{req.PrimaryPhone}, req.SecondaryPhones...)
	found, err := repo.FindCustomers(ctx, tx, all)
	if err != nil {
		return nil, err
	}
	byPhone := make(map[string]domain.Customer, len(found))
	for _, c := range found {
		byPhone[c.Phone] = c
	}
	primary, ok := byPhone[req.PrimaryPhone]
	if !ok {
		return nil, fmt.Errorf("%w: primary %s", ErrCustomerNotFound, req.PrimaryPhone)
	}
	var missing []string
	secondaries := make([]domain.Customer, 0, len(req.SecondaryPhones))
	for _, p := range req.SecondaryPhones {
		c, ok := byPhone[p]
		if !ok {
			missing = append(missing, p)
			continue
		}
		secondaries = append(secondaries, c)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: secondary %s", ErrCustomerNotFound, strings.Join(missing, ", "))
	}

	// 2-3. Fold the selected fields and apply them in one update.
	updates := foldFields(&primary, secondaries, req.Fields)
	if err := repo.UpdateCustomerFields(ctx, tx, primary.Phone, updates); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: primary %s vanished", ErrMergeConflict, primary.Phone)
		}
		return nil, err
	}

	// 4-5. Re-point history, then delete each secondary.
	res := &mergeResult{updated: updates, moved: make(map[string]repo.HistoryCounts, len(secondaries))}
	for _, sec := range secondaries {
		moved, err := repo.ReassignHistory(ctx, tx, sec.Phone, primary.Phone)
		if err != nil {
			return nil, err
		}
		res.moved[sec.Phone] = moved
		res.totalMoved.Orders += moved.Orders
		res.totalMoved.Interactions += moved.Interactions
		res.totalMoved.Tasks += moved.Tasks

		if err := repo.DeleteCustomer(ctx, tx, sec.Phone); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, fmt.Errorf("%w: secondary %s already deleted", ErrMergeConflict, sec.Phone)
			}
			return nil, err
		}
	}

	merged, err := repo.GetCustomer(ctx, tx, primary.Phone)
	if err != nil {
		return nil, err
	}
	res.primary = merged
	return res, nil
}

// foldFields computes the column updates for the primary. Secondaries are
// visited in request order.
func foldFields(primary *domain.Customer, secondaries []domain.Customer, f MergeFields) map[string]any {
	updates := map[string]any{}

	if f.Email && !primary.HasEmail() {
		for _, sec := range secondaries {
			if sec.HasEmail() {
				updates["email"] = *sec.Email
				break
			}
		}
	}

	if f.Notes {
		notes, changed := primary.Notes, false
		for _, sec := range secondaries {
			if sec.Notes == "" {
				continue
			}
			if notes == "" {
				notes = sec.Notes
			} else {
				notes += NotesDelimiter + sec.Notes
			}
			changed = true
		}
		if changed {
			updates["notes"] = notes
		}
	}

	if f.Tags {
		union := unionTags(primary.Tags, secondaries)
		if !equalTags(union, primary.Tags) {
			updates["tags"] = datatypes.JSONSlice[string](union)
		}
	}
	return updates
}

// unionTags returns the primary's tags unchanged followed by each
// secondary's normalized tags that the primary does not already carry.
func unionTags(primary []string, secondaries []domain.Customer) []string {
	out := append([]string{}, primary...)
	seen := make(map[string]struct{}, len(primary))
	for _, t := range primary {
		seen[t] = struct{}{}
	}
	for _, sec := range secondaries {
		for _, t := range normalizeTags(sec.Tags) {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// classifyMergeError maps store failures onto the service error kinds.
// Conflicts return ErrMergeConflict alone; the driver error is only logged.
func classifyMergeError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrValidation):
		return err
	case repo.IsSerializationFailure(err), repo.IsForeignKeyViolation(err):
		log.Warn().Err(err).Msg("merge aborted by the store")
		return ErrMergeConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrStoreTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
}

// mergeAuditEntry builds the audit record for one merge attempt.
func mergeAuditEntry(req MergeRequest, actor Actor, res *mergeResult, err error, elapsed time.Duration) AuditEntry {
	changes := map[string]any{
		"primaryPhone":    req.PrimaryPhone,
		"secondaryPhones": req.SecondaryPhones,
		"mergeFields":     req.Fields,
	}
	if res != nil && res.primary != nil {
		changes["mergedData"] = map[string]any{
			"email":         res.primary.Email,
			"notes":         res.primary.Notes,
			"tags":          res.primary.Tags,
			"updatedFields": sortedKeys(res.updated),
			"movedHistory":  res.moved,
			"totalMoved":    res.totalMoved,
		}
	}
	return AuditEntry{
		Actor:    actor,
		Action:   AuditActionMerge,
		Entity:   AuditEntityCust,
		EntityID: req.PrimaryPhone,
		Changes:  changes,
		Err:      err,
		Latency:  elapsed,
	}
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
