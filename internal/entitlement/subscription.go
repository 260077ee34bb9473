package entitlement

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// StatusActive is the only payment processor status that counts as active.
const StatusActive = "active"

// ErrMissingUserID indicates a subscription without an owner.
var ErrMissingUserID = errors.New("entitlement: missing user id")

// Usage holds the monotonically growing usage counters of a subscription.
type Usage struct {
	SpeechesUsed     int64 `json:"speeches_used"`
	StorageUsedMB    int64 `json:"storage_used_mb"`
	TeamMembersAdded int64 `json:"team_members_added"`
}

// Of returns the counter matching a limit kind. ActiveDays has no counter.
func (u Usage) Of(kind LimitKind) int64 {
	switch kind {
	case LimitSpeechCount:
		return u.SpeechesUsed
	case LimitStorageMB:
		return u.StorageUsedMB
	case LimitTeamMembers:
		return u.TeamMembersAdded
	default:
		return 0
	}
}

// Subscription is a read-only snapshot of a user's subscription record.
type Subscription struct {
	UserID    string
	Tier      Tier
	StartDate time.Time
	EndDate   *time.Time // Nil means the subscription does not expire.
	Status    *string    // Nil means the payment processor reported nothing.
	Usage     Usage
}

// Validate rejects snapshots missing required identifiers.
func (s Subscription) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return ErrMissingUserID
	}
	if !s.Tier.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTier, s.Tier)
	}
	return nil
}

// NewTrialSubscription starts a trial at now that lasts the trial plan's active days.
func (t *Table) NewTrialSubscription(userID string, now time.Time) Subscription {
	sub := Subscription{
		UserID:    userID,
		Tier:      TierTrial,
		StartDate: now.UTC(),
	}
	if days := t.Plan(TierTrial).Limits.ActiveDays; !days.IsUnlimited() {
		end := now.UTC().Add(time.Duration(days) * 24 * time.Hour)
		sub.EndDate = &end
	}
	return sub
}
