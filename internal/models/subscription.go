package models

import "time"

// SubscriptionStatusActive is the only status value that keeps a paid tier in force.
const SubscriptionStatusActive = "active"

// Subscription stores the plan state and usage counters of one user.
type Subscription struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex"` // Owning user ID.

	Tier      string     `gorm:"type:varchar(32);not null;default:'trial'"` // Nominal plan tier.
	Status    *string    `gorm:"type:varchar(32)"`                          // Billing status; nil when absent.
	StartDate time.Time  `gorm:"not null"`                                  // Period start.
	EndDate   *time.Time `gorm:"index"`                                     // Period end; nil for open-ended.

	SpeechesUsed     int64 `gorm:"not null;default:0"` // Speeches created this period.
	StorageUsedMB    int64 `gorm:"not null;default:0"` // Storage consumed in MB.
	TeamMembersAdded int64 `gorm:"not null;default:0"` // Invited team members.

	StripeCustomerID     *string `gorm:"type:varchar(255);index"`       // Stripe customer reference.
	StripeSubscriptionID *string `gorm:"type:varchar(255);uniqueIndex"` // Stripe subscription reference.
	StripePriceID        string  `gorm:"type:varchar(255)"`             // Stripe price of the current tier.
	CancelAtPeriodEnd    bool    `gorm:"not null;default:false"`        // Pending cancellation flag.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
