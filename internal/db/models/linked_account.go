package models

import "time"

// ProviderTwitter is the only linking provider the gateway supports.
const ProviderTwitter = "twitter"

// LinkedAccount binds a third-party identity to a local user and stores
// its OAuth tokens. ExpiresAt is nil for tokens that never expire.
type LinkedAccount struct {
	ID                string `gorm:"primaryKey"` // UUID
	UserID            string `gorm:"uniqueIndex:idx_user_provider_account"`
	Provider          string `gorm:"uniqueIndex:idx_user_provider_account"`
	ProviderAccountID string `gorm:"uniqueIndex:idx_user_provider_account"`
	Username          string
	AccessToken       string
	RefreshToken      string
	ExpiresAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TokenExpired reports whether the stored access token needs a refresh
// before use. Accounts without an expiry never do.
func (a *LinkedAccount) TokenExpired(now time.Time) bool {
	return a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}
