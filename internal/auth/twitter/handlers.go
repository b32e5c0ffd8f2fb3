package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/fluxgate/fluxgate/internal/auth/session"
	"github.com/fluxgate/fluxgate/internal/db/models"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// Reason codes carried on the error redirect so the frontend can show
// step-specific guidance.
const (
	ReasonInvalidParameters  = "invalid_parameters"
	ReasonAccessTokenFailure = "access_token_failure"
	ReasonUserDetailsFailure = "user_details_failure"
	ReasonAlreadyLinked      = "account_already_linked"
	ReasonDatabaseError      = "database_error"
)

// LoginHandler starts the linking flow: generates the PKCE verifier,
// packs it with the caller's user id into the state value, and returns
// the provider authorization URL.
// GET /twitter/auth (bearer auth)
func LoginHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := session.UserID(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		verifier, err := GenerateCodeVerifier()
		if err != nil {
			http.Error(w, "Failed to generate code verifier", http.StatusInternalServerError)
			return
		}

		state, err := EncodeState(LinkState{UserID: userID, CodeVerifier: verifier})
		if err != nil {
			http.Error(w, "Failed to encode state", http.StatusInternalServerError)
			return
		}

		authURL := cfg.OAuthConfig().AuthCodeURL(state,
			oauth2.SetAuthURLParam("code_challenge", CodeChallenge(verifier)),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"authUrl": authURL})
	}
}

// CallbackHandler completes the linking flow when the provider redirects
// back with code and state. Every failure short-circuits to the error
// page with its own reason code; only a fully persisted link reaches the
// success redirect.
// GET /twitter/auth/callback
func CallbackHandler(cfg Config, db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redirectError := func(reason string) {
			http.Redirect(w, r, cfg.FrontendURL+"/twitter/error?reason="+reason, http.StatusTemporaryRedirect)
		}

		code := r.URL.Query().Get("code")
		rawState := r.URL.Query().Get("state")
		if code == "" || rawState == "" {
			log.Printf("Twitter callback missing code or state")
			redirectError(ReasonInvalidParameters)
			return
		}

		state, err := DecodeState(rawState)
		if err != nil {
			log.Printf("Twitter callback state decode failed: %v", err)
			redirectError(ReasonInvalidParameters)
			return
		}

		token, err := cfg.OAuthConfig().Exchange(r.Context(), code,
			oauth2.SetAuthURLParam("code_verifier", state.CodeVerifier),
		)
		if err != nil {
			log.Printf("Twitter token exchange failed for user %s: %v", state.UserID, err)
			redirectError(ReasonAccessTokenFailure)
			return
		}

		identity, err := fetchUserDetails(r.Context(), cfg, token.AccessToken)
		if err != nil {
			log.Printf("Twitter user details fetch failed for user %s: %v", state.UserID, err)
			redirectError(ReasonUserDetailsFailure)
			return
		}

		// The same provider account must not be linked to two different
		// local users.
		var conflict models.LinkedAccount
		err = db.Where("provider = ? AND provider_account_id = ? AND user_id <> ?",
			models.ProviderTwitter, identity.ID, state.UserID).First(&conflict).Error
		if err == nil {
			log.Printf("Twitter account %s already linked to another user", identity.Username)
			redirectError(ReasonAlreadyLinked)
			return
		}

		if err := upsertLinkedAccount(db, state.UserID, identity, token); err != nil {
			log.Printf("Failed to persist linked account for user %s: %v", state.UserID, err)
			redirectError(ReasonDatabaseError)
			return
		}

		log.Printf("Linked Twitter account @%s to user %s", identity.Username, state.UserID)
		http.Redirect(w, r, cfg.FrontendURL+"/twitter/success", http.StatusTemporaryRedirect)
	}
}

// userIdentity is the provider's answer to "who am I".
type userIdentity struct {
	ID       string
	Name     string
	Username string
}

func fetchUserDetails(ctx context.Context, cfg Config, accessToken string) (*userIdentity, error) {
	cfg = cfg.withDefaults()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user details request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("user details returned %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		Data struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Username string `json:"username"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode user details: %w", err)
	}
	if parsed.Data.ID == "" {
		return nil, fmt.Errorf("user details response missing account id")
	}

	return &userIdentity{ID: parsed.Data.ID, Name: parsed.Data.Name, Username: parsed.Data.Username}, nil
}

// upsertLinkedAccount updates tokens on an existing (user, provider,
// account) row or inserts a new one. Re-linking the same account is an
// idempotent token refresh.
func upsertLinkedAccount(db *gorm.DB, userID string, identity *userIdentity, token *oauth2.Token) error {
	var expiresAt *time.Time
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		expiresAt = &expiry
	}

	var existing models.LinkedAccount
	err := db.Where("user_id = ? AND provider = ? AND provider_account_id = ?",
		userID, models.ProviderTwitter, identity.ID).First(&existing).Error
	if err == nil {
		existing.Username = identity.Username
		existing.AccessToken = token.AccessToken
		existing.RefreshToken = token.RefreshToken
		existing.ExpiresAt = expiresAt
		return db.Save(&existing).Error
	}

	account := models.LinkedAccount{
		ID:                uuid.New().String(),
		UserID:            userID,
		Provider:          models.ProviderTwitter,
		ProviderAccountID: identity.ID,
		Username:          identity.Username,
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
		ExpiresAt:         expiresAt,
	}
	return db.Create(&account).Error
}
