package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"library_by_email/app"
	"library_by_email/config"
	"library_by_email/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func newTestApp(t *testing.T, cfg config.Config) *app.App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg.DatabaseURL = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	a, err := app.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	sqlDB, _ := a.DB.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(a.Close)
	RegisterRoutes(a.Router, a)
	return a
}

func do(t *testing.T, a *app.App, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	a := newTestApp(t, config.Config{})
	for _, p := range []string{"/healthz", "/health"} {
		w := do(t, a, http.MethodGet, p, nil)
		if w.Code != http.StatusOK || w.Body.String() != `{"ok":true}` {
			t.Errorf("%s -> %d %s", p, w.Code, w.Body)
		}
	}
}

func TestSeedAndListBooks(t *testing.T) {
	a := newTestApp(t, config.Config{})

	w := do(t, a, http.MethodPost, "/books/seed", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("seed -> %d %s", w.Code, w.Body)
	}
	// second seed is a no-op
	w = do(t, a, http.MethodPost, "/books/seed", nil)
	var seeded struct {
		Seeded bool `json:"seeded"`
		Added  int  `json:"added"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &seeded)
	if !seeded.Seeded || seeded.Added != 0 {
		t.Fatalf("second seed = %s", w.Body)
	}

	w = do(t, a, http.MethodGet, "/books", nil)
	var books []models.Book
	if err := json.Unmarshal(w.Body.Bytes(), &books); err != nil {
		t.Fatal(err)
	}
	if len(books) != 2 || books[0].ISBN != "9780307474728" || books[0].CopiesAvailable != 2 || !books[0].Active {
		t.Fatalf("books = %+v", books)
	}
}

func TestSeedFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	yml := "books:\n  - title: Dune\n    author: F. Herbert\n    isbn: \"111\"\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	a := newTestApp(t, config.Config{SeedFile: path})
	if w := do(t, a, http.MethodPost, "/books/seed", nil); w.Code != http.StatusOK {
		t.Fatalf("seed -> %d %s", w.Code, w.Body)
	}
	w := do(t, a, http.MethodGet, "/books", nil)
	if !bytes.Contains(w.Body.Bytes(), []byte(`"title":"Dune"`)) {
		t.Fatalf("books = %s", w.Body)
	}
}

func TestCreateAndDeleteBook(t *testing.T) {
	a := newTestApp(t, config.Config{})

	w := do(t, a, http.MethodPost, "/books", map[string]any{"title": "Dune", "isbn": "111", "copies": 2})
	if w.Code != http.StatusCreated {
		t.Fatalf("create -> %d %s", w.Code, w.Body)
	}
	var b models.Book
	_ = json.Unmarshal(w.Body.Bytes(), &b)
	if b.Author != "Desconocido" || b.CopiesTotal != 2 || b.CopiesAvailable != 2 {
		t.Fatalf("book = %+v", b)
	}

	if w := do(t, a, http.MethodPost, "/books", map[string]any{"title": "Otra", "isbn": "111"}); w.Code != http.StatusConflict {
		t.Fatalf("duplicate -> %d %s", w.Code, w.Body)
	}
	if w := do(t, a, http.MethodPost, "/books", map[string]any{"title": "Sin ISBN"}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing isbn -> %d", w.Code)
	}
	if w := do(t, a, http.MethodPost, "/books", map[string]any{"title": "X", "isbn": "222", "copies": -1}); w.Code != http.StatusBadRequest {
		t.Fatalf("negative copies -> %d", w.Code)
	}

	if _, err := a.Repo.ReserveBook(context.Background(), "a@x.com", "111"); err != nil {
		t.Fatal(err)
	}
	if w := do(t, a, http.MethodDelete, "/books/111", nil); w.Code != http.StatusConflict {
		t.Fatalf("delete on loan -> %d %s", w.Code, w.Body)
	}
	if _, err := a.Repo.CancelReservation(context.Background(), "a@x.com", "111"); err != nil {
		t.Fatal(err)
	}
	if w := do(t, a, http.MethodDelete, "/books/111", nil); w.Code != http.StatusOK {
		t.Fatalf("delete -> %d %s", w.Code, w.Body)
	}
	if w := do(t, a, http.MethodDelete, "/books/111", nil); w.Code != http.StatusNotFound {
		t.Fatalf("delete again -> %d", w.Code)
	}
}

func TestOperatorToken(t *testing.T) {
	a := newTestApp(t, config.Config{AdminToken: "s3cret"})

	if w := do(t, a, http.MethodPost, "/books/seed", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token -> %d", w.Code)
	}
	if w := do(t, a, http.MethodPost, "/books/seed", nil, "Authorization", "Bearer nope"); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token -> %d", w.Code)
	}
	if w := do(t, a, http.MethodPost, "/books/seed", nil, "Authorization", "Bearer s3cret"); w.Code != http.StatusOK {
		t.Fatalf("good token -> %d", w.Code)
	}
	// reads stay public
	if w := do(t, a, http.MethodGet, "/books", nil); w.Code != http.StatusOK {
		t.Fatalf("list -> %d", w.Code)
	}
}

func TestListReservations(t *testing.T) {
	a := newTestApp(t, config.Config{})
	if w := do(t, a, http.MethodPost, "/books/seed", nil); w.Code != http.StatusOK {
		t.Fatal(w.Body)
	}
	ctx := context.Background()
	if _, err := a.Repo.ReserveBook(ctx, "ana@x.com", "9780307474728"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Repo.ReserveBook(ctx, "ana@x.com", "9788491050299"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Repo.CancelReservation(ctx, "ana@x.com", "9788491050299"); err != nil {
		t.Fatal(err)
	}

	if w := do(t, a, http.MethodGet, "/reservations", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing email -> %d", w.Code)
	}

	var page struct {
		Total int `json:"total"`
		Items []struct {
			Status string `json:"status"`
			ISBN   string `json:"isbn"`
		} `json:"items"`
	}
	w := do(t, a, http.MethodGet, "/reservations?email=ANA@x.com", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("all -> %s", w.Body)
	}

	w = do(t, a, http.MethodGet, "/reservations?email=ana@x.com&status=active", nil)
	page.Items = nil
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if page.Total != 1 || page.Items[0].ISBN != "9780307474728" {
		t.Fatalf("active -> %s", w.Body)
	}
}
