package models

import "time"

// StripeEvent records a processed Stripe webhook event.
type StripeEvent struct {
	ID          string    `gorm:"type:varchar(255);primaryKey"` // Stripe event ID.
	Type        string    `gorm:"type:varchar(255);not null"`   // Stripe event type.
	ProcessedAt time.Time `gorm:"not null"`                     // Processing time.
}
