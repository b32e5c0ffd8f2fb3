package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/fluxgate/fluxgate/internal/billing"
	validation "github.com/go-ozzo/ozzo-validation"
)

// maxWebhookBytes bounds the raw webhook body read.
const maxWebhookBytes = 1 << 20

// CheckoutRequest is the body of POST /api/create-checkout-session.
type CheckoutRequest struct {
	UserID    string `json:"userId"`
	ProductID string `json:"productId"`
}

func (r CheckoutRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.ProductID, validation.Required),
	)
}

// CreateCheckoutSessionHandler starts a Stripe-hosted payment and
// returns the redirect URL.
// POST /api/create-checkout-session
func CreateCheckoutSessionHandler(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CheckoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		url, err := svc.CreateCheckoutSession(r.Context(), req.UserID, req.ProductID)
		if err != nil {
			log.Printf("[%s] Checkout session failed for user %s: %v", requestID(r), req.UserID, err)
			writeError(w, http.StatusInternalServerError, "failed to create checkout session")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	}
}

// StripeWebhookHandler verifies and applies a Stripe event. Malformed or
// unattributable events get a 4xx so the delivery is not retried as-is;
// persistence failures get a 5xx so Stripe retries.
// POST /api/stripe-webhook
func StripeWebhookHandler(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}

		event, err := svc.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
		if err != nil {
			log.Printf("[%s] Webhook verification failed: %v", requestID(r), err)
			writeError(w, http.StatusBadRequest, "invalid signature")
			return
		}

		if err := svc.ProcessEvent(r.Context(), event); err != nil {
			if errors.Is(err, billing.ErrMissingUser) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			log.Printf("[%s] Webhook event %s failed: %v", requestID(r), event.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to process event")
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}
