package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/go-crm-backend/internal/repo"
)

// StatsService computes dashboard counters.
type StatsService struct {
	DB *gorm.DB
	// Window is how far back "recent interactions" reach; zero means 30 days.
	Window time.Duration
}

// Dashboard returns the headline counters as of now.
func (s *StatsService) Dashboard(ctx context.Context, now time.Time) (*repo.Dashboard, error) {
	ctx, span := otel.Tracer("services/StatsService").Start(ctx, "Dashboard")
	defer span.End()

	window := s.Window
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	return repo.DashboardStats(ctx, s.DB, now.Add(-window))
}
