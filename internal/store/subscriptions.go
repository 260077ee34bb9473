package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/speechhelp/portal/internal/entitlement"
	"github.com/speechhelp/portal/internal/models"
	"gorm.io/gorm"
)

// SubscriptionStore persists subscription rows and converts them for the entitlement engine.
type SubscriptionStore struct {
	db    *gorm.DB
	table *entitlement.Table
	nowFn func() time.Time
}

// NewSubscriptionStore constructs a SubscriptionStore.
func NewSubscriptionStore(db *gorm.DB, table *entitlement.Table, nowFn func() time.Time) *SubscriptionStore {
	if table == nil {
		table = entitlement.DefaultTable()
	}
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &SubscriptionStore{db: db, table: table, nowFn: nowFn}
}

// WithTx returns a copy bound to tx.
func (s *SubscriptionStore) WithTx(tx *gorm.DB) *SubscriptionStore {
	clone := *s
	clone.db = tx
	return &clone
}

// ToEntitlement converts a row into the engine's value type.
func ToEntitlement(row *models.Subscription) entitlement.Subscription {
	sub := entitlement.Subscription{
		UserID:    strconv.FormatUint(row.UserID, 10),
		Tier:      entitlement.Tier(row.Tier),
		StartDate: row.StartDate,
		Status:    row.Status,
		Usage: entitlement.Usage{
			SpeechesUsed:     row.SpeechesUsed,
			StorageUsedMB:    row.StorageUsedMB,
			TeamMembersAdded: row.TeamMembersAdded,
		},
	}
	if row.EndDate != nil {
		end := row.EndDate.UTC()
		sub.EndDate = &end
	}
	return sub
}

// Subscription loads the entitlement view of a user's subscription.
func (s *SubscriptionStore) Subscription(ctx context.Context, userID string) (entitlement.Subscription, error) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(userID), 10, 64)
	if errParse != nil {
		return entitlement.Subscription{}, fmt.Errorf("store: invalid user id %q: %w", userID, ErrNotFound)
	}
	row, errGet := s.Get(ctx, id)
	if errGet != nil {
		return entitlement.Subscription{}, errGet
	}
	return ToEntitlement(row), nil
}

// Get loads the subscription row of a user.
func (s *SubscriptionStore) Get(ctx context.Context, userID uint64) (*models.Subscription, error) {
	var row models.Subscription
	if errFind := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; errFind != nil {
		return nil, fmt.Errorf("store: load subscription: %w", notFound(errFind))
	}
	return &row, nil
}

// CreateTrial provisions the trial subscription of a new user.
func (s *SubscriptionStore) CreateTrial(ctx context.Context, userID uint64) (*models.Subscription, error) {
	now := s.nowFn()
	trial := s.table.NewTrialSubscription(strconv.FormatUint(userID, 10), now)
	row := models.Subscription{
		UserID:    userID,
		Tier:      string(trial.Tier),
		StartDate: trial.StartDate,
		EndDate:   trial.EndDate,
	}
	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		if IsUniqueViolation(errCreate) {
			return nil, fmt.Errorf("store: create trial: %w", ErrConflict)
		}
		return nil, fmt.Errorf("store: create trial: %w", errCreate)
	}
	return &row, nil
}

// SubscriptionOverride is an administrative change. Nil fields are left untouched.
type SubscriptionOverride struct {
	Tier        *entitlement.Tier
	Status      *string
	ClearStatus bool
	EndDate     *time.Time
	ClearEnd    bool
	ResetUsage  bool
}

// Override applies an administrative change to a user's subscription.
func (s *SubscriptionStore) Override(ctx context.Context, userID uint64, change SubscriptionOverride) (*models.Subscription, error) {
	updates := map[string]any{}
	if change.Tier != nil {
		if !change.Tier.Valid() {
			return nil, fmt.Errorf("store: override: %w", entitlement.ErrUnknownTier)
		}
		updates["tier"] = string(*change.Tier)
	}
	switch {
	case change.ClearStatus:
		updates["status"] = nil
	case change.Status != nil:
		updates["status"] = strings.TrimSpace(*change.Status)
	}
	switch {
	case change.ClearEnd:
		updates["end_date"] = nil
	case change.EndDate != nil:
		updates["end_date"] = change.EndDate.UTC()
	}
	if change.ResetUsage {
		updates["speeches_used"] = 0
		updates["storage_used_mb"] = 0
		updates["team_members_added"] = 0
	}
	if len(updates) > 0 {
		updates["updated_at"] = s.nowFn()
		res := s.db.WithContext(ctx).Model(&models.Subscription{}).Where("user_id = ?", userID).Updates(updates)
		if res.Error != nil {
			return nil, fmt.Errorf("store: override subscription: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, fmt.Errorf("store: override subscription: %w", ErrNotFound)
		}
	}
	return s.Get(ctx, userID)
}

// IncrementUsage adds n to the counter of kind.
func (s *SubscriptionStore) IncrementUsage(ctx context.Context, userID uint64, kind entitlement.LimitKind, n int64) error {
	column, ok := usageColumn(kind)
	if !ok {
		return fmt.Errorf("store: %s is not a usage counter", kind)
	}
	res := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			column:       gorm.Expr(column+" + ?", n),
			"updated_at": s.nowFn(),
		})
	if res.Error != nil {
		return fmt.Errorf("store: increment %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("store: increment %s: %w", column, ErrNotFound)
	}
	return nil
}

func usageColumn(kind entitlement.LimitKind) (string, bool) {
	switch kind {
	case entitlement.LimitSpeechCount:
		return "speeches_used", true
	case entitlement.LimitStorageMB:
		return "storage_used_mb", true
	case entitlement.LimitTeamMembers:
		return "team_members_added", true
	default:
		return "", false
	}
}

// StripeSubscriptionUpdate carries the fields a Stripe subscription event sets.
type StripeSubscriptionUpdate struct {
	UserID               uint64
	CustomerID           string
	SubscriptionID       string
	PriceID              string
	Tier                 entitlement.Tier
	Status               string
	PeriodStart          time.Time
	PeriodEnd            *time.Time
	CancelAtPeriodEnd    bool
	ResetUsageOnNewCycle bool
}

// ApplyStripe locates the subscription by Stripe subscription, Stripe customer or user
// and applies the update. It returns the owning user ID.
func (s *SubscriptionStore) ApplyStripe(ctx context.Context, update StripeSubscriptionUpdate) (uint64, error) {
	row, errFind := s.findForStripe(ctx, update)
	if errFind != nil {
		return 0, errFind
	}
	updates := map[string]any{
		"status":               strings.TrimSpace(update.Status),
		"cancel_at_period_end": update.CancelAtPeriodEnd,
		"updated_at":           s.nowFn(),
	}
	if update.Tier.Valid() {
		updates["tier"] = string(update.Tier)
	}
	if update.CustomerID != "" {
		updates["stripe_customer_id"] = update.CustomerID
	}
	if update.SubscriptionID != "" {
		updates["stripe_subscription_id"] = update.SubscriptionID
	}
	if update.PriceID != "" {
		updates["stripe_price_id"] = update.PriceID
	}
	if !update.PeriodStart.IsZero() {
		updates["start_date"] = update.PeriodStart.UTC()
		if update.ResetUsageOnNewCycle && !row.StartDate.Equal(update.PeriodStart.UTC()) {
			updates["speeches_used"] = 0
		}
	}
	if update.PeriodEnd != nil {
		updates["end_date"] = update.PeriodEnd.UTC()
	}
	if errUpdate := s.db.WithContext(ctx).Model(&models.Subscription{}).Where("id = ?", row.ID).Updates(updates).Error; errUpdate != nil {
		if IsUniqueViolation(errUpdate) {
			return 0, fmt.Errorf("store: apply stripe update: %w", ErrConflict)
		}
		return 0, fmt.Errorf("store: apply stripe update: %w", errUpdate)
	}
	return row.UserID, nil
}

// LinkCustomer records the Stripe customer of a user.
func (s *SubscriptionStore) LinkCustomer(ctx context.Context, userID uint64, customerID string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"stripe_customer_id": customerID, "updated_at": s.nowFn()})
	if res.Error != nil {
		return fmt.Errorf("store: link customer: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("store: link customer: %w", ErrNotFound)
	}
	return nil
}

func (s *SubscriptionStore) findForStripe(ctx context.Context, update StripeSubscriptionUpdate) (*models.Subscription, error) {
	conn := s.db.WithContext(ctx)
	var row models.Subscription
	if update.SubscriptionID != "" {
		errFind := conn.Where("stripe_subscription_id = ?", update.SubscriptionID).First(&row).Error
		if errFind == nil {
			return &row, nil
		}
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("store: find by stripe subscription: %w", errFind)
		}
	}
	if update.CustomerID != "" {
		errFind := conn.Where("stripe_customer_id = ?", update.CustomerID).First(&row).Error
		if errFind == nil {
			return &row, nil
		}
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("store: find by stripe customer: %w", errFind)
		}
	}
	if update.UserID != 0 {
		errFind := conn.Where("user_id = ?", update.UserID).First(&row).Error
		if errFind == nil {
			return &row, nil
		}
		return nil, fmt.Errorf("store: find by user: %w", notFound(errFind))
	}
	return nil, fmt.Errorf("store: no subscription for stripe update: %w", ErrNotFound)
}
