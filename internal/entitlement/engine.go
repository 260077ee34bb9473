// Package entitlement evaluates what a subscription grants: effective tier, activity,
// expiry, remaining quota and whether an action is permitted.
//
// Every function here is pure. The caller supplies the subscription snapshot and the
// current time, and owns persistence and cache invalidation.
package entitlement

import (
	"fmt"
	"math"
	"time"
)

const day = 24 * time.Hour

// Denial codes returned alongside a human readable reason.
const (
	DenialExpired      = "expired"
	DenialInactive     = "inactive"
	DenialLimitReached = "limit_reached"
)

// Status is the evaluated state of a subscription.
type Status struct {
	EffectiveTier     Tier `json:"effective_tier"`
	IsActive          bool `json:"is_active"`
	IsExpired         bool `json:"is_expired"`
	ShouldShowUpgrade bool `json:"should_show_upgrade"`
}

// Decision is the outcome of an entitlement gate.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Code    string `json:"code,omitempty"`
}

// IsActive reports whether the payment processor considers the subscription active.
// Without a status only trials count as active.
func IsActive(sub Subscription) bool {
	if sub.Status == nil {
		return sub.Tier == TierTrial
	}
	return *sub.Status == StatusActive
}

// IsExpired reports whether now is strictly after the end date.
func IsExpired(sub Subscription, now time.Time) bool {
	if sub.EndDate == nil {
		return false
	}
	return now.After(*sub.EndDate)
}

// DaysRemaining returns the whole days left until the end date, rounded up and never
// negative. bounded is false when the subscription has no end date.
func DaysRemaining(sub Subscription, now time.Time) (days int, bounded bool) {
	if sub.EndDate == nil {
		return 0, false
	}
	left := sub.EndDate.Sub(now)
	if left <= 0 {
		return 0, true
	}
	return int(math.Ceil(float64(left) / float64(day))), true
}

// EffectiveStatus computes the effective tier and the upgrade nudge.
func (t *Table) EffectiveStatus(sub Subscription, now time.Time) Status {
	active := IsActive(sub)
	expired := IsExpired(sub, now)

	effective := sub.Tier
	if expired || !active {
		effective = TierTrial
	}

	nudge := expired || !active
	if !nudge && sub.Tier == TierTrial {
		if days, bounded := DaysRemaining(sub, now); bounded && days <= 2 {
			nudge = true
		}
	}
	if !nudge && sub.Tier == TierPremium {
		limit := t.Plan(TierPremium).Limits.SpeechCount
		if !limit.IsUnlimited() && sub.Usage.SpeechesUsed >= int64(limit)-1 {
			nudge = true
		}
	}

	return Status{
		EffectiveTier:     effective,
		IsActive:          active,
		IsExpired:         expired,
		ShouldShowUpgrade: nudge,
	}
}

// IsFeatureAvailable reports whether the effective tier grants the feature.
func (t *Table) IsFeatureAvailable(sub Subscription, feature FeatureKind, now time.Time) bool {
	tier := t.EffectiveStatus(sub, now).EffectiveTier
	return t.Plan(tier).Features.Has(feature)
}

// ExportFormats returns the export formats of the effective tier.
func (t *Table) ExportFormats(sub Subscription, now time.Time) []string {
	tier := t.EffectiveStatus(sub, now).EffectiveTier
	return append([]string(nil), t.Plan(tier).Features.ExportFormats...)
}

// CanCreateSpeech gates speech creation. Checks run in order and the first failure wins.
func (t *Table) CanCreateSpeech(sub Subscription, now time.Time) Decision {
	return t.CheckLimit(sub, LimitSpeechCount, 0, now)
}

// CheckLimit gates an action that would add `additional` units to the given counter.
// An additional of zero asks whether one more unit fits (used >= limit denies).
func (t *Table) CheckLimit(sub Subscription, kind LimitKind, additional int64, now time.Time) Decision {
	if IsExpired(sub, now) {
		return Decision{
			Reason: "Your subscription has expired. Please upgrade to continue.",
			Code:   DenialExpired,
		}
	}
	if !IsActive(sub) {
		return Decision{
			Reason: "Your subscription is inactive. Please upgrade to continue.",
			Code:   DenialInactive,
		}
	}

	plan := t.Plan(sub.Tier)
	limit := plan.Limits.Of(kind)
	if kind == LimitActiveDays || limit.IsUnlimited() {
		return Decision{Allowed: true}
	}

	used := sub.Usage.Of(kind)
	exceeded := used >= int64(limit)
	if additional > 0 {
		exceeded = used+additional > int64(limit)
	}
	if exceeded {
		return Decision{
			Reason: limitReason(kind, limit, plan.DisplayName),
			Code:   DenialLimitReached,
		}
	}
	return Decision{Allowed: true}
}

// Remaining returns how many units of a limit are left on the effective tier.
func (t *Table) Remaining(sub Subscription, kind LimitKind, now time.Time) (remaining int64, unlimited bool) {
	tier := t.EffectiveStatus(sub, now).EffectiveTier
	limit := t.Plan(tier).Limits.Of(kind)
	if limit.IsUnlimited() {
		return 0, true
	}
	if kind == LimitActiveDays {
		return int64(limit), false
	}
	left := int64(limit) - sub.Usage.Of(kind)
	if left < 0 {
		left = 0
	}
	return left, false
}

func limitReason(kind LimitKind, limit Limit, planName string) string {
	switch kind {
	case LimitSpeechCount:
		return fmt.Sprintf("You have reached your limit of %d speeches on the %s plan. Please upgrade to create more.", limit, planName)
	case LimitStorageMB:
		return fmt.Sprintf("You have reached your storage limit of %d MB on the %s plan. Please upgrade for more space.", limit, planName)
	case LimitTeamMembers:
		return fmt.Sprintf("You have reached your limit of %d team members on the %s plan. Please upgrade to add more.", limit, planName)
	default:
		return fmt.Sprintf("You have reached the %s limit of %d on the %s plan.", kind, limit, planName)
	}
}
