// Package twitter implements the OAuth 2.0 + PKCE account-linking flow
// and token refresh for the Twitter provider.
package twitter

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/oauth2"
)

// Default provider endpoints. Overridable for tests.
const (
	DefaultAuthURL     = "https://twitter.com/i/oauth2/authorize"
	DefaultTokenURL    = "https://api.twitter.com/2/oauth2/token"
	DefaultUserInfoURL = "https://api.twitter.com/2/users/me"
)

// Scopes requested during linking. offline.access yields the refresh
// token the lazy-refresh path depends on.
var Scopes = []string{"tweet.read", "tweet.write", "users.read", "offline.access"}

// Config holds the app credentials and endpoints for the linking flow.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// FrontendURL is where success/error redirects land.
	FrontendURL string

	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

func (c Config) withDefaults() Config {
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.UserInfoURL == "" {
		c.UserInfoURL = DefaultUserInfoURL
	}
	return c
}

// OAuthConfig builds the oauth2 configuration for the provider. The
// token endpoint authenticates with Basic auth (client id/secret).
func (c Config) OAuthConfig() *oauth2.Config {
	c = c.withDefaults()
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.AuthURL,
			TokenURL:  c.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// GenerateCodeVerifier returns a cryptographically random PKCE verifier.
func GenerateCodeVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CodeChallenge derives the S256 challenge for a verifier:
// base64url(SHA256(verifier)) without padding.
func CodeChallenge(verifier string) string {
	digest := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}
