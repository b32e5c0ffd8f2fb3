package twitter

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/fluxgate/fluxgate/internal/db/models"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// ErrReauthRequired signals that a stored refresh token no longer works
// and the user must link the account again. Callers must not proceed
// with the stale access token.
var ErrReauthRequired = errors.New("twitter authorization expired, please re-link the account")

// EnsureFreshToken lazily refreshes an expired access token before use.
// Accounts without an expiry (or not yet expired) are returned as-is.
// On success the rotated tokens are persisted; on refresh failure the
// caller gets ErrReauthRequired.
func EnsureFreshToken(ctx context.Context, cfg Config, db *gorm.DB, account *models.LinkedAccount) error {
	if !account.TokenExpired(time.Now()) {
		return nil
	}

	log.Printf("Access token for @%s expired, refreshing", account.Username)

	source := cfg.OAuthConfig().TokenSource(ctx, &oauth2.Token{
		RefreshToken: account.RefreshToken,
	})
	newToken, err := source.Token()
	if err != nil {
		log.Printf("Refresh failed for @%s: %v", account.Username, err)
		return ErrReauthRequired
	}

	account.AccessToken = newToken.AccessToken
	if newToken.RefreshToken != "" {
		account.RefreshToken = newToken.RefreshToken
	}
	if !newToken.Expiry.IsZero() {
		expiry := newToken.Expiry
		account.ExpiresAt = &expiry
	}

	if err := db.Save(account).Error; err != nil {
		return err
	}

	log.Printf("Refreshed token for @%s (expires %s)", account.Username, newToken.Expiry.Format(time.RFC3339))
	return nil
}
