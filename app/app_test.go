package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"library_by_email/config"
	"library_by_email/ledger"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func memDSN() string { return "file:" + uuid.NewString() + "?mode=memory&cache=shared" }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestOperatorOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/w", OperatorOnly("tok"), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	open := gin.New()
	open.POST("/w", OperatorOnly(""), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := []struct {
		engine *gin.Engine
		auth   string
		want   int
	}{
		{r, "", http.StatusUnauthorized},
		{r, "tok", http.StatusUnauthorized},
		{r, "Bearer wrong", http.StatusUnauthorized},
		{r, "Bearer tok", http.StatusNoContent},
		{open, "", http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/w", nil)
		if tc.auth != "" {
			req.Header.Set("Authorization", tc.auth)
		}
		w := httptest.NewRecorder()
		tc.engine.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("auth %q -> %d, want %d", tc.auth, w.Code, tc.want)
		}
	}
}

func TestRequestLoggerThrottlesProbes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := gin.New()
	r.Use(RequestLogger(logger, rdb, time.Minute))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/books", func(c *gin.Context) { c.Status(http.StatusOK) })

	hit := func(path string) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}
	hit("/healthz")
	hit("/healthz")
	hit("/books")
	hit("/books")
	if n := strings.Count(buf.String(), "path=/healthz"); n != 1 {
		t.Errorf("probe logged %d times", n)
	}
	if n := strings.Count(buf.String(), "path=/books"); n != 2 {
		t.Errorf("books logged %d times", n)
	}

	mr.FastForward(2 * time.Minute)
	hit("/healthz")
	if n := strings.Count(buf.String(), "path=/healthz"); n != 2 {
		t.Errorf("probe after window logged %d times", n)
	}
}

func TestNewPicksLedger(t *testing.T) {
	a, err := New(config.Config{DatabaseURL: memDSN(), LedgerTTL: time.Hour}, discard())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	if _, ok := a.Ledger().(*ledger.Memory); !ok || a.RDB != nil {
		t.Fatalf("without redis want memory ledger, got %T", a.Ledger())
	}

	mr := miniredis.RunT(t)
	b, err := New(config.Config{DatabaseURL: memDSN(), RedisAddr: mr.Addr(), LedgerTTL: time.Hour}, discard())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if _, ok := b.Ledger().(*ledger.Redis); !ok {
		t.Fatalf("with redis want redis ledger, got %T", b.Ledger())
	}
}

func TestNewFailsOnUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	if _, err := New(config.Config{DatabaseURL: memDSN(), RedisAddr: addr}, discard()); err == nil {
		t.Fatal("expected redis ping error")
	}
}

func TestBootstrapCatalog(t *testing.T) {
	a, err := New(config.Config{DatabaseURL: memDSN()}, discard())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	sqlDB, _ := a.DB.DB()
	sqlDB.SetMaxOpenConns(1)

	a.BootstrapCatalog(context.Background())
	books, _ := a.Repo.ListBooks(context.Background())
	if len(books) != 0 {
		t.Fatalf("seeded without SEED_ON_START: %d books", len(books))
	}

	a.Config.SeedOnStart = true
	a.BootstrapCatalog(context.Background())
	books, _ = a.Repo.ListBooks(context.Background())
	if len(books) != 2 {
		t.Fatalf("books = %d", len(books))
	}
}
