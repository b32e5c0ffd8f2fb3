package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	m := newTestManager(t)

	token, err := m.Issue("user-42")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	userID, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if userID != "user-42" {
		t.Fatalf("userID = %q, want user-42", userID)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	m := newTestManager(t)
	other, _ := NewManager("other-secret", time.Hour)

	token, err := other.Issue("user-42")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := m.Verify(token); err == nil {
		t.Fatal("expected verification failure for foreign token")
	}
}

func TestVerify_Expired(t *testing.T) {
	m, err := NewManager("test-secret", -time.Minute)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := m.Issue("user-42")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := m.Verify(token); err == nil {
		t.Fatal("expected verification failure for expired token")
	}
}

func TestRequireAuth(t *testing.T) {
	m := newTestManager(t)
	var gotUserID string

	handler := RequireAuth(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token passes", func(t *testing.T) {
		token, _ := m.Issue("user-7")
		r := httptest.NewRequest("GET", "/api/account", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if gotUserID != "user-7" {
			t.Fatalf("context user = %q, want user-7", gotUserID)
		}
	})

	t.Run("missing header rejected", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/account", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/account", nil)
		r.Header.Set("Authorization", "Bearer not-a-jwt")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
	})
}
