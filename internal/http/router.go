// Package httpapi wires the HTTP transport (Gin) to the CRM services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Middleware runs in this order:
//  1. OpenTelemetry
//  2. RequestID
//  3. RedactingLogger
//  4. Recovery
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before the rate limiter so replays bypass it)
//  8. Rate limiter (per user/IP)
//  9. CORS and security headers
//  10. gzip
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-crm-backend/internal/config"
	"github.com/tbourn/go-crm-backend/internal/domain"
	"github.com/tbourn/go-crm-backend/internal/http/handlers"
	"github.com/tbourn/go-crm-backend/internal/http/middleware"
	"github.com/tbourn/go-crm-backend/internal/repo"
	"github.com/tbourn/go-crm-backend/internal/services"
)

// customerRepoShim adapts the repository free functions to the
// services.CustomerRepo interface expected by the CustomerService.
type customerRepoShim struct{}

// CreateCustomer proxies repo.CreateCustomer.
func (customerRepoShim) CreateCustomer(ctx context.Context, db *gorm.DB, c *domain.Customer) error {
	return repo.CreateCustomer(ctx, db, c)
}

// GetCustomerWithHistory proxies repo.GetCustomerWithHistory.
func (customerRepoShim) GetCustomerWithHistory(ctx context.Context, db *gorm.DB, phone string) (*domain.CustomerHistory, error) {
	return repo.GetCustomerWithHistory(ctx, db, phone)
}

// GetCustomer proxies repo.GetCustomer.
func (customerRepoShim) GetCustomer(ctx context.Context, db *gorm.DB, phone string) (*domain.Customer, error) {
	return repo.GetCustomer(ctx, db, phone)
}

// CountCustomers proxies repo.CountCustomers (pagination support).
func (customerRepoShim) CountCustomers(ctx context.Context, db *gorm.DB, q string) (int64, error) {
	return repo.CountCustomers(ctx, db, q)
}

// ListCustomersPage proxies repo.ListCustomersPage (pagination support).
func (customerRepoShim) ListCustomersPage(ctx context.Context, db *gorm.DB, q string, offset, limit int) ([]domain.Customer, error) {
	return repo.ListCustomersPage(ctx, db, q, offset, limit)
}

// UpdateCustomerFields proxies repo.UpdateCustomerFields.
func (customerRepoShim) UpdateCustomerFields(ctx context.Context, db *gorm.DB, phone string, fields map[string]any) error {
	return repo.UpdateCustomerFields(ctx, db, phone, fields)
}

// CountHistory proxies repo.CountHistory.
func (customerRepoShim) CountHistory(ctx context.Context, db *gorm.DB, phone string) (repo.HistoryCounts, error) {
	return repo.CountHistory(ctx, db, phone)
}

// DeleteCustomer proxies repo.DeleteCustomer.
func (customerRepoShim) DeleteCustomer(ctx context.Context, db *gorm.DB, phone string) error {
	return repo.DeleteCustomer(ctx, db, phone)
}

// idempotencyStore keeps Idempotency-Key results in the idempotency table.
type idempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func (s idempotencyStore) Find(ctx context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, s.db, userID, scope, key, now)
}

func (s idempotencyStore) Save(ctx context.Context, userID, scope, key, resourceID, fingerprint string, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, scope, key, resourceID, fingerprint, status, s.ttl)
	return err
}

// lookup adapts Find to the middleware's replay check.
func (s idempotencyStore) lookup(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
	_, err := s.Find(ctx, userID, scope, key, now)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repo.ErrNotFound):
		return false, nil
	}
	return false, err
}

// NewServices builds the handler dependencies from db and cfg.
func NewServices(db *gorm.DB, cfg config.Config) handlers.Deps {
	audit := &services.AuditService{DB: db}
	merges := services.NewMergeService(db, audit, cfg.MergeTimeout)
	merges.MaxSecondaries = cfg.MergeMaxSecondaries

	return handlers.Deps{
		Customers:    services.NewCustomerService(db, customerRepoShim{}, audit),
		Duplicates:   &services.DuplicateDetector{DB: db},
		Merges:       merges,
		Orders:       &services.OrderService{DB: db},
		Interactions: &services.InteractionService{DB: db},
		Users:        &services.UserService{DB: db},
		Tasks:        &services.TaskService{DB: db, Audit: audit},
		Audit:        audit,
		Stats:        &services.StatsService{DB: db},
		Idempotency:  idempotencyStore{db: db, ttl: cfg.IdempotencyTTL},
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the CRM API under cfg.APIBasePath.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	deps := NewServices(db, cfg)
	idem := idempotencyStore{db: db, ttl: cfg.IdempotencyTTL}
	apiBase := cfg.APIBasePath
	if apiBase == "/" {
		apiBase = ""
	}

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
			Scopes: map[string]string{
				http.MethodPost + " " + apiBase + "/customers/merge": handlers.ScopeMerge,
			},
		},
		idem.lookup,
	))

	// 8) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).
		Exempt("/health", "/metrics")
	r.Use(rl.Handler())

	// 9) CORS posture (allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderUserID, middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed", "Retry-After"}
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS).
	// Responses carry customer data, so caches must revalidate; ETags keep
	// that cheap.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		CacheControl: "private, no-cache",
		EnablePolicy: true,
		Expose:       []string{"ETag", "Idempotency-Replayed"},
	}))

	// 10) Compression for list payloads
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", health(db))

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(deps)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Customers
		api.POST("/customers", h.CreateCustomer)
		api.GET("/customers", h.ListCustomers)
		api.GET("/customers/check-duplicate", h.CheckDuplicate)
		api.POST("/customers/merge", h.MergeCustomers)
		api.GET("/customers/:phone", h.GetCustomer)
		api.PATCH("/customers/:phone", h.UpdateCustomer)
		api.DELETE("/customers/:phone", h.DeleteCustomer)

		// History
		api.GET("/customers/:phone/orders", h.ListOrders)
		api.POST("/customers/:phone/orders", h.CreateOrder)
		api.GET("/customers/:phone/interactions", h.ListInteractions)
		api.POST("/customers/:phone/interactions", h.CreateInteraction)

		// Users
		api.POST("/users", h.CreateUser)
		api.GET("/users", h.ListUsers)
		api.GET("/users/:id", h.GetUser)

		// Tasks
		api.POST("/tasks", h.CreateTask)
		api.GET("/tasks", h.ListTasks)
		api.GET("/tasks/:id", h.GetTask)
		api.PATCH("/tasks/:id/status", h.UpdateTaskStatus)
		api.POST("/tasks/:id/delay", h.DelayTask)

		// Audit + dashboard
		api.GET("/audit-logs", h.ListAuditLogs)
		api.GET("/stats", h.GetStats)
	}
}

// health reports liveness and whether the database answers a ping.
func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("health: database ping failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "ok"})
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
