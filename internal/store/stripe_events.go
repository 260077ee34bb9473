package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/speechhelp/portal/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StripeEventStore applies each Stripe webhook event at most once.
type StripeEventStore struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewStripeEventStore constructs a StripeEventStore.
func NewStripeEventStore(db *gorm.DB, nowFn func() time.Time) *StripeEventStore {
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &StripeEventStore{db: db, nowFn: nowFn}
}

// Process records the event and runs apply in the same transaction. It reports
// false without calling apply when the event was already processed.
func (s *StripeEventStore) Process(ctx context.Context, eventID, eventType string, apply func(tx *gorm.DB) error) (bool, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, fmt.Errorf("store: stripe event id is required")
	}
	applied := false
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := models.StripeEvent{ID: eventID, Type: eventType, ProcessedAt: s.nowFn()}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
		if res.Error != nil {
			return fmt.Errorf("store: record stripe event: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if apply != nil {
			if errApply := apply(tx); errApply != nil {
				return errApply
			}
		}
		applied = true
		return nil
	})
	if errTx != nil {
		return false, errTx
	}
	return applied, nil
}
