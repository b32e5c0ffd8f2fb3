package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fluxgate/fluxgate/internal/auth/session"
	"github.com/fluxgate/fluxgate/internal/db"
	"github.com/fluxgate/fluxgate/internal/db/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// newTestDB opens a fresh in-memory database named after the test so
// state never leaks between tests in this package.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	database, err := db.InitDB(dsn)
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	return database
}

func newTestSessions(t *testing.T) *session.Manager {
	t.Helper()
	m, err := session.NewManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("Failed to create session manager: %v", err)
	}
	return m
}

// seedAccount creates an account with a balance and returns its id.
func seedAccount(t *testing.T, database *gorm.DB, coins int) string {
	t.Helper()
	account := models.Account{
		ID:    uuid.New().String(),
		Email: uuid.New().String() + "@example.com",
		Coins: coins,
	}
	if err := database.Create(&account).Error; err != nil {
		t.Fatalf("Failed to seed account: %v", err)
	}
	return account.ID
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
}

// newAuthedRouter mounts the bearer-protected account and image routes
// the way the server does.
func newAuthedRouter(sessions *session.Manager, database *gorm.DB) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(session.RequireAuth(sessions))
		r.Get("/account", AccountHandler(database))
		r.Get("/coins", CoinsHandler(database))
		r.Post("/coins/spend", SpendCoinsHandler(database))
		r.Get("/images", ListImagesHandler(database))
		r.Post("/images", SaveImageHandler(database))
		r.Delete("/images/{id}", DeleteImageHandler(database))
	})
	return r
}

// newTwitterRouter mounts the bearer-protected linking routes.
func newTwitterRouter(sessions *session.Manager, database *gorm.DB) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/twitter", func(r chi.Router) {
		r.Use(session.RequireAuth(sessions))
		r.Get("/accounts", LinkedAccountsHandler(database))
		r.Delete("/accounts/{username}", UnlinkAccountHandler(database))
	})
	return r
}

// withSessionUser injects an authenticated user directly, for handlers
// tested without the middleware in front.
func withSessionUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(session.WithUserID(req.Context(), userID))
}

func doAuthed(router *chi.Mux, token, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}
