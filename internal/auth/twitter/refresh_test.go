package twitter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fluxgate/fluxgate/internal/db/models"
)

func TestEnsureFreshToken_NotExpired(t *testing.T) {
	fp := newFakeProvider(t)
	db := newLinkTestDB(t)

	future := time.Now().Add(time.Hour)
	account := models.LinkedAccount{
		ID: "link-1", UserID: "user-1", Provider: models.ProviderTwitter,
		ProviderAccountID: "12345", Username: "balloonfan",
		AccessToken: "still-good", RefreshToken: "refresh", ExpiresAt: &future,
	}
	if err := db.Create(&account).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := EnsureFreshToken(context.Background(), fp.config(), db, &account); err != nil {
		t.Fatalf("EnsureFreshToken: %v", err)
	}
	if account.AccessToken != "still-good" {
		t.Fatal("unexpired token must not be replaced")
	}
	if fp.tokenCalls.Load() != 0 {
		t.Fatal("no refresh call expected for an unexpired token")
	}
}

func TestEnsureFreshToken_NoExpiryNeverRefreshes(t *testing.T) {
	fp := newFakeProvider(t)
	db := newLinkTestDB(t)

	account := models.LinkedAccount{
		ID: "link-1", UserID: "user-1", Provider: models.ProviderTwitter,
		ProviderAccountID: "12345", AccessToken: "permanent",
	}
	if err := db.Create(&account).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := EnsureFreshToken(context.Background(), fp.config(), db, &account); err != nil {
		t.Fatalf("EnsureFreshToken: %v", err)
	}
	if fp.tokenCalls.Load() != 0 {
		t.Fatal("accounts without expiry must never refresh")
	}
}

func TestEnsureFreshToken_RefreshesAndPersists(t *testing.T) {
	fp := newFakeProvider(t)
	db := newLinkTestDB(t)

	past := time.Now().Add(-time.Hour)
	account := models.LinkedAccount{
		ID: "link-1", UserID: "user-1", Provider: models.ProviderTwitter,
		ProviderAccountID: "12345", Username: "balloonfan",
		AccessToken: "stale", RefreshToken: "old-refresh", ExpiresAt: &past,
	}
	if err := db.Create(&account).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := EnsureFreshToken(context.Background(), fp.config(), db, &account); err != nil {
		t.Fatalf("EnsureFreshToken: %v", err)
	}

	if account.AccessToken != "fresh-access" {
		t.Fatalf("access token = %q, want refreshed value", account.AccessToken)
	}
	if account.RefreshToken != "fresh-refresh" {
		t.Fatalf("refresh token = %q, want rotated value", account.RefreshToken)
	}
	if account.ExpiresAt == nil || !account.ExpiresAt.After(time.Now()) {
		t.Fatal("expiry must move into the future")
	}

	var stored models.LinkedAccount
	if err := db.First(&stored, "id = ?", "link-1").Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.AccessToken != "fresh-access" {
		t.Fatal("refreshed tokens must be persisted")
	}
}

func TestEnsureFreshToken_FailureRequiresReauth(t *testing.T) {
	fp := newFakeProvider(t)
	fp.tokenStatus = 400
	db := newLinkTestDB(t)

	past := time.Now().Add(-time.Hour)
	account := models.LinkedAccount{
		ID: "link-1", UserID: "user-1", Provider: models.ProviderTwitter,
		ProviderAccountID: "12345", AccessToken: "stale",
		RefreshToken: "revoked", ExpiresAt: &past,
	}
	if err := db.Create(&account).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := EnsureFreshToken(context.Background(), fp.config(), db, &account)
	if !errors.Is(err, ErrReauthRequired) {
		t.Fatalf("expected ErrReauthRequired, got %v", err)
	}
}
