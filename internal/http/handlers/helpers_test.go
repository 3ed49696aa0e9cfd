package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-crm-backend/internal/domain"
	"github.com/tbourn/go-crm-backend/internal/http/middleware"
	"github.com/tbourn/go-crm-backend/internal/repo"
	"github.com/tbourn/go-crm-backend/internal/services"
)

// ---------- test DB + repo shims ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "handlers.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// testCustomerRepo implements services.CustomerRepo with the repo package
// (like router.go).
type testCustomerRepo struct{}

func (testCustomerRepo) CreateCustomer(ctx context.Context, db *gorm.DB, c *domain.Customer) error {
	return repo.CreateCustomer(ctx, db, c)
}

func (testCustomerRepo) GetCustomerWithHistory(ctx context.Context, db *gorm.DB, phone string) (*domain.CustomerHistory, error) {
	return repo.GetCustomerWithHistory(ctx, db, phone)
}

func (testCustomerRepo) GetCustomer(ctx context.Context, db *gorm.DB, phone string) (*domain.Customer, error) {
	return repo.GetCustomer(ctx, db, phone)
}

func (testCustomerRepo) CountCustomers(ctx context.Context, db *gorm.DB, q string) (int64, error) {
	return repo.CountCustomers(ctx, db, q)
}

func (testCustomerRepo) ListCustomersPage(ctx context.Context, db *gorm.DB, q string, offset, limit int) ([]domain.Customer, error) {
	return repo.ListCustomersPage(ctx, db, q, offset, limit)
}

func (testCustomerRepo) UpdateCustomerFields(ctx context.Context, db *gorm.DB, phone string, fields map[string]any) error {
	return repo.UpdateCustomerFields(ctx, db, phone, fields)
}

func (testCustomerRepo) CountHistory(ctx context.Context, db *gorm.DB, phone string) (repo.HistoryCounts, error) {
	return repo.CountHistory(ctx, db, phone)
}

func (testCustomerRepo) DeleteCustomer(ctx context.Context, db *gorm.DB, phone string) error {
	return repo.DeleteCustomer(ctx, db, phone)
}

type testIdemStore struct {
	db *gorm.DB
}

func (s testIdemStore) Find(ctx context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, s.db, userID, scope, key, now)
}

func (s testIdemStore) Save(ctx context.Context, userID, scope, key, resourceID, fingerprint string, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, scope, key, resourceID, fingerprint, status, time.Hour)
	return err
}

// ---------- router under test ----------

type testEnv struct {
	db *gorm.DB
	r  *gin.Engine
	h  *Handlers
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	audit := &services.AuditService{DB: db}
	h := New(Deps{
		Customers:    services.NewCustomerService(db, testCustomerRepo{}, audit),
		Duplicates:   &services.DuplicateDetector{DB: db},
		Merges:       services.NewMergeService(db, audit, 5*time.Second),
		Orders:       &services.OrderService{DB: db},
		Interactions: &services.InteractionService{DB: db},
		Users:        &services.UserService{DB: db},
		Tasks:        &services.TaskService{DB: db, Audit: audit},
		Audit:        audit,
		Stats:        &services.StatsService{DB: db},
		Idempotency:  testIdemStore{db: db},
	})

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))

	r.POST("/customers", h.CreateCustomer)
	r.GET("/customers", h.ListCustomers)
	r.GET("/customers/check-duplicate", h.CheckDuplicate)
	r.POST("/customers/merge", h.MergeCustomers)
	r.GET("/customers/:phone", h.GetCustomer)
	r.PATCH("/customers/:phone", h.UpdateCustomer)
	r.DELETE("/customers/:phone", h.DeleteCustomer)
	r.GET("/customers/:phone/orders", h.ListOrders)
	r.POST("/customers/:phone/orders", h.CreateOrder)
	r.GET("/customers/:phone/interactions", h.ListInteractions)
	r.POST("/customers/:phone/interactions", h.CreateInteraction)

	r.GET("/users", h.ListUsers)
	r.POST("/users", h.CreateUser)
	r.GET("/users/:id", h.GetUser)

	r.GET("/tasks", h.ListTasks)
	r.POST("/tasks", h.CreateTask)
	r.GET("/tasks/:id", h.GetTask)
	r.PATCH("/tasks/:id/status", h.UpdateTaskStatus)
	r.POST("/tasks/:id/delay", h.DelayTask)

	r.GET("/audit-logs", h.ListAuditLogs)
	r.GET("/stats", h.GetStats)

	return &testEnv{db: db, r: r, h: h}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status=%d want %d body=%s", w.Code, want, w.Body.String())
	}
}

func wantErrCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	wantStatus(t, w, status)
	er := decode[ErrorResponse](t, w)
	if er.Code != code {
		t.Fatalf("code=%q want %q (message=%q)", er.Code, code, er.Message)
	}
}

func (e *testEnv) createCustomer(t *testing.T, phone, name string, extra map[string]any) domain.Customer {
	t.Helper()
	body := map[string]any{"phone": phone, "name": name}
	for k, v := range extra {
		body[k] = v
	}
	w := e.do(t, http.MethodPost, "/customers", body, nil)
	wantStatus(t, w, http.StatusCreated)
	return decode[domain.Customer](t, w)
}

func (e *testEnv) createUser(t *testing.T, email string) domain.User {
	t.Helper()
	w := e.do(t, http.MethodPost, "/users", map[string]any{"name": "Staff", "email": email}, nil)
	wantStatus(t, w, http.StatusCreated)
	return decode[domain.User](t, w)
}
