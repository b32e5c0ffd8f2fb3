package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/fluxgate/fluxgate/internal/auth/session"
	"github.com/fluxgate/fluxgate/internal/db"
	"github.com/fluxgate/fluxgate/internal/db/models"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SignupRequest is the body of POST /api/auth/signup.
type SignupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
}

func (r SignupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Username, validation.Length(0, 64)),
	)
}

// SignupHandler creates an account with the starting coin balance and
// returns a session token for it.
// POST /api/auth/signup
func SignupHandler(database *gorm.DB, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		account := models.Account{
			ID:       uuid.New().String(),
			Email:    req.Email,
			Username: req.Username,
			Coins:    models.InitialCoins,
		}
		if err := database.Create(&account).Error; err != nil {
			writeError(w, http.StatusConflict, "account already exists")
			return
		}

		token, err := sessions.Issue(account.ID)
		if err != nil {
			log.Printf("[%s] Failed to issue session token for %s: %v", requestID(r), account.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to issue token")
			return
		}

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"token":   token,
			"account": account,
		})
	}
}

// TokenHandler re-issues a session token for an existing account.
// POST /api/auth/token
func TokenHandler(database *gorm.DB, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
			writeError(w, http.StatusBadRequest, "email is required")
			return
		}

		var account models.Account
		if err := database.Where("email = ?", req.Email).First(&account).Error; err != nil {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}

		token, err := sessions.Issue(account.ID)
		if err != nil {
			log.Printf("[%s] Failed to issue session token for %s: %v", requestID(r), account.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to issue token")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	}
}

// AccountHandler returns the authenticated user's account row.
// GET /api/account
func AccountHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := session.UserID(r.Context())

		var account models.Account
		if err := database.Where("id = ?", userID).First(&account).Error; err != nil {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

// CoinsHandler returns the authenticated user's coin balance.
// GET /api/coins
func CoinsHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := session.UserID(r.Context())

		var account models.Account
		if err := database.Where("id = ?", userID).First(&account).Error; err != nil {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"coins": account.Coins})
	}
}

// SpendCoinsHandler decrements the balance, refusing to go negative.
// POST /api/coins/spend
func SpendCoinsHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := session.UserID(r.Context())

		var req struct {
			Amount int `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount <= 0 {
			writeError(w, http.StatusBadRequest, "amount must be a positive integer")
			return
		}

		balance, err := db.SpendCoins(database, userID, req.Amount)
		if err != nil {
			if errors.Is(err, db.ErrInsufficientCoins) {
				writeError(w, http.StatusBadRequest, "insufficient coins")
				return
			}
			log.Printf("[%s] Failed to spend coins for %s: %v", requestID(r), userID, err)
			writeError(w, http.StatusInternalServerError, "failed to update balance")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"coins": balance})
	}
}
