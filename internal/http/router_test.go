package httpapi

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-crm-backend/internal/config"
	"github.com/tbourn/go-crm-backend/internal/domain"
	"github.com/tbourn/go-crm-backend/internal/http/handlers"
	"github.com/tbourn/go-crm-backend/internal/http/middleware"
	"github.com/tbourn/go-crm-backend/internal/repo"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "router.db"))
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
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:         "/api/v1",
		RateRPS:             100,
		RateBurst:           50,
		CORS:                config.CORSConfig{AllowedOrigins: nil}, // allow-all branch
		Security:            config.SecurityConfig{EnableHSTS: false},
		OTEL:                config.OTELConfig{ServiceName: "test-svc"},
		IdempotencyTTL:      time.Hour,
		MergeTimeout:        5 * time.Second,
		MergeMaxSecondaries: 50,
	}
}

func newTestRouter(t *testing.T, cfg config.Config) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	RegisterRoutes(r, db, cfg)
	return r, db
}

func serve(r *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	// /health works
	w := serve(r, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = serve(r, http.MethodGet, "/metrics", nil, nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404 with the error envelope
	w = serve(r, http.MethodGet, "/nope", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	var er handlers.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil || er.Code != handlers.ErrCodeNotFound || er.RequestID == "" {
		t.Fatalf("unexpected 404 body: %s", w.Body.String())
	}

	// NoMethod → 405 (POST /health)
	w = serve(r, http.MethodPost, "/health", nil, nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _ := newTestRouter(t, cfg)

	w := serve(r, http.MethodGet, "/health", nil, map[string]string{"Origin": "http://example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	// routes follow the configured base path
	w = serve(r, http.MethodGet, "/api/v2/customers", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/v2/customers = %d", w.Code)
	}
}

func TestRegisterRoutes_CustomerFlowHeaders(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := serve(r, http.MethodPost, "/api/v1/customers", map[string]any{"phone": "0912345678", "name": "Amy"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}
	if got := w.Header().Get("Cache-Control"); got != "private, no-cache" {
		t.Fatalf("Cache-Control=%q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options=%q", got)
	}

	w = serve(r, http.MethodGet, "/api/v1/customers", nil, nil)
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || etag == "" {
		t.Fatalf("list = %d etag=%q", w.Code, etag)
	}
	w = serve(r, http.MethodGet, "/api/v1/customers", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional list = %d", w.Code)
	}

	w = serve(r, http.MethodGet, "/api/v1/customers/0912345678", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
}

func TestRegisterRoutes_Gzip(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())
	w := serve(r, http.MethodGet, "/api/v1/customers", nil, map[string]string{"Accept-Encoding": "gzip"})
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, headers=%v", w.Header())
	}
	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("gunzip: %v", err)
	}
	var resp handlers.ListCustomersResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("json: %v (%s)", err, raw)
	}
}

func TestRegisterRoutes_RateLimitExemptsHealth(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 1
	r, _ := newTestRouter(t, cfg)

	hdr := map[string]string{"X-User-ID": "agent-1"}
	if w := serve(r, http.MethodGet, "/api/v1/users", nil, hdr); w.Code != http.StatusOK {
		t.Fatalf("first call = %d", w.Code)
	}
	w := serve(r, http.MethodGet, "/api/v1/users", nil, hdr)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second call = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}

	// another user has their own bucket
	if w := serve(r, http.MethodGet, "/api/v1/users", nil, map[string]string{"X-User-ID": "agent-2"}); w.Code != http.StatusOK {
		t.Fatalf("other user = %d", w.Code)
	}
	for i := 0; i < 3; i++ {
		if w := serve(r, http.MethodGet, "/health", nil, hdr); w.Code != http.StatusOK {
			t.Fatalf("health %d = %d", i, w.Code)
		}
	}
}

func TestRegisterRoutes_MergeReplayAcrossRetries(t *testing.T) {
	r, db := newTestRouter(t, testConfig())

	for _, p := range []string{"0911000001", "0911000002"} {
		if w := serve(r, http.MethodPost, "/api/v1/customers", map[string]any{"phone": p, "name": "C " + p}, nil); w.Code != http.StatusCreated {
			t.Fatalf("seed %s = %d", p, w.Code)
		}
	}

	body := map[string]any{"primaryPhone": "0911000001", "secondaryPhones": []string{"0911000002"}}
	hdr := map[string]string{"X-User-ID": "agent-1", middleware.HeaderIdempotencyKey: "retry-1"}

	w := serve(r, http.MethodPost, "/api/v1/customers/merge", body, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("merge = %d %s", w.Code, w.Body.String())
	}
	w = serve(r, http.MethodPost, "/api/v1/customers/merge", body, hdr)
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay = %d replayed=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}

	var rec domain.Idempotency
	if err := db.Where("key = ?", "retry-1").First(&rec).Error; err != nil {
		t.Fatalf("load record: %v", err)
	}
	if rec.Scope != handlers.ScopeMerge || rec.ResourceID != "0911000001" || rec.UserID != "agent-1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestRegisterRoutes_MergeKeyReuseRejected(t *testing.T) {
	r, db := newTestRouter(t, testConfig())

	for _, p := range []string{"0911000001", "0911000002", "0911000003", "0911000004"} {
		if w := serve(r, http.MethodPost, "/api/v1/customers", map[string]any{"phone": p, "name": "C " + p}, nil); w.Code != http.StatusCreated {
			t.Fatalf("seed %s = %d", p, w.Code)
		}
	}
	hdr := map[string]string{"X-User-ID": "agent-1", middleware.HeaderIdempotencyKey: "key-1"}

	w := serve(r, http.MethodPost, "/api/v1/customers/merge",
		map[string]any{"primaryPhone": "0911000001", "secondaryPhones": []string{"0911000002"}}, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("first merge = %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodPost, "/api/v1/customers/merge",
		map[string]any{"primaryPhone": "0911000003", "secondaryPhones": []string{"0911000004"}}, hdr)
	if w.Code != http.StatusUnprocessableEntity || w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("reused key = %d replayed=%q body=%s", w.Code, w.Header().Get("Idempotency-Replayed"), w.Body.String())
	}
	if w := serve(r, http.MethodGet, "/api/v1/customers/0911000004", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("secondary of the rejected merge = %d, want 200", w.Code)
	}

	var rec domain.Idempotency
	if err := db.Where("key = ?", "key-1").First(&rec).Error; err != nil {
		t.Fatalf("load record: %v", err)
	}
	if rec.Fingerprint != "0911000001|0911000002|" {
		t.Fatalf("fingerprint = %q", rec.Fingerprint)
	}
}

func TestRegisterRoutes_Swagger(t *testing.T) {
	cfg := testConfig()
	r, _ := newTestRouter(t, cfg)
	if w := serve(r, http.MethodGet, "/swagger/index.html", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger disabled: got %d", w.Code)
	}

	cfg.SwaggerEnabled = true
	r, _ = newTestRouter(t, cfg)
	if w := serve(r, http.MethodGet, "/swagger/index.html", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("swagger enabled: got %d", w.Code)
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	r, db := newTestRouter(t, testConfig())
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()

	w := serve(r, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("GET /health = %d, want 503", w.Code)
	}
}

func TestIdempotencyStore_Lookup(t *testing.T) {
	db := newTestDB(t)
	s := idempotencyStore{db: db, ttl: time.Hour}
	ctx := context.Background()
	now := time.Now().UTC()

	ok, err := s.lookup(ctx, "u1", handlers.ScopeMerge, "k1", now)
	if ok || err != nil {
		t.Fatalf("miss: ok=%v err=%v", ok, err)
	}

	if err := s.Save(ctx, "u1", handlers.ScopeMerge, "k1", "0911000001", "0911000001|0911000002|", http.StatusOK); err != nil {
		t.Fatalf("save: %v", err)
	}
	ok, err = s.lookup(ctx, "u1", handlers.ScopeMerge, "k1", now)
	if !ok || err != nil {
		t.Fatalf("hit: ok=%v err=%v", ok, err)
	}

	// expired records are not replayed
	ok, _ = s.lookup(ctx, "u1", handlers.ScopeMerge, "k1", now.Add(2*time.Hour))
	if ok {
		t.Fatalf("expired record must not match")
	}

	sqlDB, _ := db.DB()
	_ = sqlDB.Close()
	ok, err = s.lookup(ctx, "u1", handlers.ScopeMerge, "k1", now)
	if ok || err == nil {
		t.Fatalf("closed db: ok=%v err=%v", ok, err)
	}
}

func Test_customerRepoShim_Proxies(t *testing.T) {
	db := newTestDB(t)
	shim := customerRepoShim{}
	ctx := context.Background()

	c := &domain.Customer{Phone: "0912345678", Name: "Amy"}
	if err := shim.CreateCustomer(ctx, db, c); err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	if got, err := shim.GetCustomer(ctx, db, c.Phone); err != nil || got.Name != "Amy" {
		t.Fatalf("GetCustomer: %+v %v", got, err)
	}
	if err := shim.UpdateCustomerFields(ctx, db, c.Phone, map[string]any{"name": "Amy Lin"}); err != nil {
		t.Fatalf("UpdateCustomerFields: %v", err)
	}
	hist, err := shim.GetCustomerWithHistory(ctx, db, c.Phone)
	if err != nil || hist.Name != "Amy Lin" {
		t.Fatalf("GetCustomerWithHistory: %+v %v", hist, err)
	}
	if n, err := shim.CountCustomers(ctx, db, "Amy"); err != nil || n != 1 {
		t.Fatalf("CountCustomers: %d %v", n, err)
	}
	if page, err := shim.ListCustomersPage(ctx, db, "", 0, 10); err != nil || len(page) != 1 {
		t.Fatalf("ListCustomersPage: %d %v", len(page), err)
	}
	if h, err := shim.CountHistory(ctx, db, c.Phone); err != nil || h.Total() != 0 {
		t.Fatalf("CountHistory: %+v %v", h, err)
	}
	if err := shim.DeleteCustomer(ctx, db, c.Phone); err != nil {
		t.Fatalf("DeleteCustomer: %v", err)
	}
	if _, err := shim.GetCustomer(ctx, db, c.Phone); err == nil {
		t.Fatalf("customer still present after delete")
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		w := serve(r, http.MethodGet, path, nil, nil)
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, w.Code, w.Body.String())
		}
	}
}
