package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/fluxgate/fluxgate/internal/auth/session"
	authtwitter "github.com/fluxgate/fluxgate/internal/auth/twitter"
	"github.com/fluxgate/fluxgate/internal/db/models"
	"github.com/fluxgate/fluxgate/internal/twitter"
	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"gorm.io/gorm"
)

// LinkedAccountsHandler lists the user's linked social accounts.
// GET /twitter/accounts
func LinkedAccountsHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := session.UserID(r.Context())

		var accounts []models.LinkedAccount
		if err := database.Where("user_id = ? AND provider = ?", userID, models.ProviderTwitter).Find(&accounts).Error; err != nil {
			log.Printf("[%s] Failed to list linked accounts for %s: %v", requestID(r), userID, err)
			writeError(w, http.StatusInternalServerError, "failed to list linked accounts")
			return
		}

		usernames := make([]string, 0, len(accounts))
		for _, a := range accounts {
			usernames = append(usernames, a.Username)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": usernames})
	}
}

// UnlinkAccountHandler removes one linked account by username.
// DELETE /twitter/accounts/{username}
func UnlinkAccountHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := session.UserID(r.Context())
		username := chi.URLParam(r, "username")

		result := database.Where("user_id = ? AND provider = ? AND username = ?",
			userID, models.ProviderTwitter, username).Delete(&models.LinkedAccount{})
		if result.Error != nil {
			log.Printf("[%s] Failed to unlink @%s: %v", requestID(r), username, result.Error)
			writeError(w, http.StatusInternalServerError, "failed to unlink account")
			return
		}
		if result.RowsAffected == 0 {
			writeError(w, http.StatusNotFound, "linked account not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"unlinked": true})
	}
}

// PostTweetRequest is the body of POST /twitter/post.
type PostTweetRequest struct {
	Text            string `json:"text"`
	AccountUsername string `json:"accountUsername"`
	ImageURL        string `json:"imageUrl,omitempty"`
}

func (r PostTweetRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Text, validation.Required, validation.Length(1, 280)),
		validation.Field(&r.AccountUsername, validation.Required),
	)
}

// PostTweetHandler posts on behalf of a linked account. The stored token
// is refreshed first when expired; a failed refresh surfaces as a 401
// asking the user to re-link, and the post is never attempted with a
// stale token.
// POST /twitter/post
func PostTweetHandler(cfg authtwitter.Config, database *gorm.DB, client *twitter.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := session.UserID(r.Context())

		var req PostTweetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		var account models.LinkedAccount
		err := database.Where("user_id = ? AND provider = ? AND username = ?",
			userID, models.ProviderTwitter, req.AccountUsername).First(&account).Error
		if err != nil {
			writeError(w, http.StatusNotFound, "linked account not found")
			return
		}

		if err := authtwitter.EnsureFreshToken(r.Context(), cfg, database, &account); err != nil {
			if errors.Is(err, authtwitter.ErrReauthRequired) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error":  err.Error(),
					"reason": "reauthorization_required",
				})
				return
			}
			log.Printf("[%s] Token refresh failed for @%s: %v", requestID(r), account.Username, err)
			writeError(w, http.StatusInternalServerError, "failed to refresh token")
			return
		}

		var mediaIDs []string
		if req.ImageURL != "" {
			data, mimeType, err := twitter.DownloadImage(r.Context(), req.ImageURL)
			if err != nil {
				log.Printf("[%s] Image download failed for tweet: %v", requestID(r), err)
				writeError(w, http.StatusBadGateway, "failed to download image")
				return
			}
			mediaID, err := client.UploadMedia(r.Context(), account.AccessToken, data, mimeType)
			if err != nil {
				log.Printf("[%s] Media upload failed for @%s: %v", requestID(r), account.Username, err)
				writeError(w, http.StatusBadGateway, err.Error())
				return
			}
			mediaIDs = []string{mediaID}
		}

		tweet, err := client.PostTweet(r.Context(), account.AccessToken, req.Text, mediaIDs)
		if err != nil {
			log.Printf("[%s] Tweet failed for @%s: %v", requestID(r), account.Username, err)
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"tweet":   tweet,
		})
	}
}
