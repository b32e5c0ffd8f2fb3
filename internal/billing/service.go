// Package billing creates Stripe checkout sessions and reconciles
// payment webhooks against local coin balances.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/fluxgate/fluxgate/internal/db"
	"github.com/fluxgate/fluxgate/internal/db/models"
	"github.com/fluxgate/fluxgate/internal/util"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"
	"gorm.io/gorm"
)

// DefaultCoinsPerPurchase is credited when a product has no explicit
// coin mapping.
const DefaultCoinsPerPurchase = 100

// ErrMissingUser means a completed checkout carried no client reference,
// so there is no balance to credit.
var ErrMissingUser = errors.New("checkout event carries no user reference")

// Service owns checkout-session creation and webhook reconciliation.
type Service struct {
	db            *gorm.DB
	webhookSecret string
	successURL    string
	cancelURL     string

	// productCoins maps a Stripe price id to the coins it buys.
	productCoins map[string]int
}

// NewService configures billing. The Stripe API key is set process-wide
// the way the stripe-go SDK expects.
func NewService(database *gorm.DB, apiKey, webhookSecret, successURL, cancelURL string) *Service {
	stripe.Key = apiKey
	return &Service{
		db:            database,
		webhookSecret: webhookSecret,
		successURL:    successURL,
		cancelURL:     cancelURL,
		productCoins:  map[string]int{},
	}
}

// SetProductCoins registers the coin value of a Stripe price id.
func (s *Service) SetProductCoins(priceID string, coins int) {
	s.productCoins[priceID] = coins
}

// CreateCheckoutSession starts a Stripe-hosted payment for a coin pack
// and returns the redirect URL. The user id rides along as the client
// reference so the webhook can find the balance to credit.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID, productID string) (string, error) {
	var account models.Account
	if err := s.db.Where("id = ?", userID).First(&account).Error; err != nil {
		return "", fmt.Errorf("account %s not found: %w", userID, err)
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(productID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(userID),
		Metadata: map[string]string{
			"product_id": productID,
		},
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return sess.URL, nil
}

// VerifyWebhook checks the Stripe-Signature header against the raw body:
// full HMAC verification with the SDK's default 300s timestamp tolerance.
func (s *Service) VerifyWebhook(payload []byte, signature string) (*stripe.Event, error) {
	if s.webhookSecret == "" {
		return nil, fmt.Errorf("webhook secret not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify webhook: %w", err)
	}
	return &event, nil
}

// ProcessEvent applies a verified event exactly once. The duplicate
// check, the balance credit, and the processed-event record commit in a
// single transaction: a concurrent redelivery of the same event id
// either sees the record and skips, or loses the primary-key insert and
// rolls its credit back with it.
func (s *Service) ProcessEvent(ctx context.Context, event *stripe.Event) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.WebhookEvent
		err := tx.Where("stripe_event_id = ?", event.ID).First(&existing).Error
		if err == nil {
			log.Printf("Webhook event %s already processed, skipping", event.ID)
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check processed events: %w", err)
		}

		switch event.Type {
		case "checkout.session.completed":
			if err := s.handleCheckoutCompleted(tx, event); err != nil {
				return err
			}
		default:
			log.Printf("Unhandled webhook event type %s: %s", event.Type, util.TruncateBytes(event.Data.Raw))
		}

		record := models.WebhookEvent{
			StripeEventID: event.ID,
			EventType:     string(event.Type),
			Payload:       string(event.Data.Raw),
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to record webhook event: %w", err)
		}
		return nil
	})
}

func (s *Service) handleCheckoutCompleted(tx *gorm.DB, event *stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("failed to parse checkout session: %w", err)
	}

	if sess.ClientReferenceID == "" {
		return ErrMissingUser
	}

	coins := DefaultCoinsPerPurchase
	if productID, ok := sess.Metadata["product_id"]; ok {
		if mapped, ok := s.productCoins[productID]; ok {
			coins = mapped
		}
	}

	balance, err := db.CreditCoins(tx, sess.ClientReferenceID, coins)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}

	log.Printf("Credited %d coins to user %s (balance now %d, event %s)",
		coins, sess.ClientReferenceID, balance, event.ID)
	return nil
}
