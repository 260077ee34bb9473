package entitlement

import "time"

// Quota describes one limit as seen by the effective tier.
type Quota struct {
	Limit     int64 `json:"limit"`
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
	Unlimited bool  `json:"unlimited"`
}

// Snapshot bundles every entitlement answer for a subscription at a point in time.
type Snapshot struct {
	UserID          string           `json:"user_id"`
	Tier            Tier             `json:"tier"`
	PlanName        string           `json:"plan_name"`
	Status          Status           `json:"status"`
	DaysRemaining   *int             `json:"days_remaining"` // Nil when the subscription never expires.
	CanCreateSpeech Decision         `json:"can_create_speech"`
	Quotas          map[string]Quota `json:"quotas"`
	Features        map[string]bool  `json:"features"`
	ExportFormats   []string         `json:"export_formats"`
	EvaluatedAt     time.Time        `json:"evaluated_at"`
}

// Snapshot evaluates every entitlement question for the subscription.
func (t *Table) Snapshot(sub Subscription, now time.Time) Snapshot {
	status := t.EffectiveStatus(sub, now)
	effectivePlan := t.Plan(status.EffectiveTier)

	snap := Snapshot{
		UserID:          sub.UserID,
		Tier:            sub.Tier,
		PlanName:        effectivePlan.DisplayName,
		Status:          status,
		CanCreateSpeech: t.CanCreateSpeech(sub, now),
		Quotas:          make(map[string]Quota, len(LimitKinds)),
		Features:        make(map[string]bool, len(FeatureKinds)),
		ExportFormats:   append([]string(nil), effectivePlan.Features.ExportFormats...),
		EvaluatedAt:     now.UTC(),
	}
	if days, bounded := DaysRemaining(sub, now); bounded {
		snap.DaysRemaining = &days
	}
	for _, kind := range LimitKinds {
		remaining, unlimited := t.Remaining(sub, kind, now)
		snap.Quotas[kind.String()] = Quota{
			Limit:     int64(effectivePlan.Limits.Of(kind)),
			Used:      sub.Usage.Of(kind),
			Remaining: remaining,
			Unlimited: unlimited,
		}
	}
	for _, feature := range FeatureKinds {
		snap.Features[feature.String()] = effectivePlan.Features.Has(feature)
	}
	return snap
}
