// Package services – DuplicateDetector
//
// DuplicateDetector surfaces customers whose name contains a candidate name,
// to warn before creating a duplicate and to help operators pick merge
// candidates. The policy is a plain case-sensitive substring match.
package services

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-crm-backend/internal/domain"
	"github.com/tbourn/go-crm-backend/internal/repo"
)

// DuplicateDetector finds likely duplicate customers by name.
type DuplicateDetector struct {
	DB *gorm.DB
}

// Check returns every customer whose name contains name, excluding
// excludePhone when non-empty. A blank name yields an empty list.
func (d *DuplicateDetector) Check(ctx context.Context, name, excludePhone string) ([]domain.Customer, error) {
	tr := otel.Tracer("services/DuplicateDetector")
	ctx, span := tr.Start(ctx, "Check",
		trace.WithAttributes(attribute.Bool("exclude", excludePhone != "")),
	)
	defer span.End()

	name = NormalizeName(name)
	if name == "" {
		return []domain.Customer{}, nil
	}
	excludePhone = NormalizePhone(excludePhone)

	// LIKE narrows the scan in SQL; SQLite folds ASCII case there, so the
	// exact case-sensitive rule is applied here.
	cands, err := repo.FindCustomersByNameLike(ctx, d.DB, name, excludePhone)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Customer, 0, len(cands))
	for _, c := range cands {
		if strings.Contains(c.Name, name) {
			out = append(out, c)
		}
	}
	span.SetAttributes(attribute.Int("duplicates.count", len(out)))
	return out, nil
}
