package models

import "time"

// WebhookEvent records a processed payment event. A row's existence is
// the idempotency guard: delivering the same event id twice credits the
// balance exactly once.
type WebhookEvent struct {
	StripeEventID string `gorm:"primaryKey"`
	EventType     string
	Payload       string `gorm:"type:text"`
	CreatedAt     time.Time
}
