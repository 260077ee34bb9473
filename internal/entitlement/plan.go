package entitlement

import (
	"errors"
	"fmt"
	"strings"
)

// Tier identifies a subscription level.
type Tier string

// Tier constants define the closed set of subscription levels.
const (
	// TierTrial is the default, most restrictive level.
	TierTrial Tier = "trial"
	// TierPremium is the entry paid level.
	TierPremium Tier = "premium"
	// TierPro is the unlimited paid level.
	TierPro Tier = "pro"
)

// Tiers lists every tier from most to least restrictive.
var Tiers = []Tier{TierTrial, TierPremium, TierPro}

// ErrUnknownTier indicates a tier outside the closed set.
var ErrUnknownTier = errors.New("entitlement: unknown tier")

// ParseTier normalizes raw input into a known tier.
func ParseTier(raw string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(raw))) {
	case TierTrial:
		return TierTrial, nil
	case TierPremium:
		return TierPremium, nil
	case TierPro:
		return TierPro, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, raw)
	}
}

// Valid reports whether the tier belongs to the closed set.
func (t Tier) Valid() bool {
	switch t {
	case TierTrial, TierPremium, TierPro:
		return true
	default:
		return false
	}
}

// LimitKind names a quota category.
type LimitKind int

// LimitKind constants enumerate quota categories.
const (
	LimitSpeechCount LimitKind = iota
	LimitStorageMB
	LimitTeamMembers
	LimitActiveDays
)

// LimitKinds lists every quota category.
var LimitKinds = []LimitKind{LimitSpeechCount, LimitStorageMB, LimitTeamMembers, LimitActiveDays}

// String returns the configuration key of the limit kind.
func (k LimitKind) String() string {
	switch k {
	case LimitSpeechCount:
		return "speech_count"
	case LimitStorageMB:
		return "storage_mb"
	case LimitTeamMembers:
		return "team_members"
	case LimitActiveDays:
		return "active_days"
	default:
		return fmt.Sprintf("limit_kind(%d)", int(k))
	}
}

// FeatureKind names a boolean plan feature.
type FeatureKind int

// FeatureKind constants enumerate boolean plan features.
const (
	FeatureAIAnalysis FeatureKind = iota
	FeatureTeamCollaboration
	FeatureCustomBranding
)

// FeatureKinds lists every boolean feature.
var FeatureKinds = []FeatureKind{FeatureAIAnalysis, FeatureTeamCollaboration, FeatureCustomBranding}

// String returns the configuration key of the feature kind.
func (f FeatureKind) String() string {
	switch f {
	case FeatureAIAnalysis:
		return "ai_analysis"
	case FeatureTeamCollaboration:
		return "team_collaboration"
	case FeatureCustomBranding:
		return "custom_branding"
	default:
		return fmt.Sprintf("feature_kind(%d)", int(f))
	}
}

// ParseFeatureKind maps a configuration key to a feature kind.
func ParseFeatureKind(raw string) (FeatureKind, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	for _, f := range FeatureKinds {
		if f.String() == key {
			return f, true
		}
	}
	return 0, false
}

// Limit is a quota ceiling. Unlimited marks an unbounded ceiling.
type Limit int64

// Unlimited is the unbounded ceiling.
const Unlimited Limit = -1

// IsUnlimited reports whether the ceiling is unbounded.
func (l Limit) IsUnlimited() bool { return l < 0 }

// Limits holds the ceiling for each limit kind.
type Limits struct {
	SpeechCount Limit
	StorageMB   Limit
	TeamMembers Limit
	ActiveDays  Limit
}

// Of returns the ceiling for the given kind.
func (l Limits) Of(kind LimitKind) Limit {
	switch kind {
	case LimitSpeechCount:
		return l.SpeechCount
	case LimitStorageMB:
		return l.StorageMB
	case LimitTeamMembers:
		return l.TeamMembers
	case LimitActiveDays:
		return l.ActiveDays
	default:
		return 0
	}
}

// Features holds the feature flags and export formats of a plan.
type Features struct {
	AIAnalysis        bool
	TeamCollaboration bool
	CustomBranding    bool
	ExportFormats     []string
}

// Has reports whether the given feature flag is on.
func (f Features) Has(kind FeatureKind) bool {
	switch kind {
	case FeatureAIAnalysis:
		return f.AIAnalysis
	case FeatureTeamCollaboration:
		return f.TeamCollaboration
	case FeatureCustomBranding:
		return f.CustomBranding
	default:
		return false
	}
}

// Plan is the immutable configuration of one tier.
type Plan struct {
	Tier        Tier
	DisplayName string
	Limits      Limits
	Features    Features
}

// defaultPlans is the compiled-in rule table.
var defaultPlans = map[Tier]Plan{
	TierTrial: {
		Tier:        TierTrial,
		DisplayName: "Free Trial",
		Limits: Limits{
			SpeechCount: 1,
			StorageMB:   10,
			TeamMembers: 1,
			ActiveDays:  3,
		},
		Features: Features{
			ExportFormats: []string{"pdf"},
		},
	},
	TierPremium: {
		Tier:        TierPremium,
		DisplayName: "Premium",
		Limits: Limits{
			SpeechCount: 3,
			StorageMB:   100,
			TeamMembers: 1,
			ActiveDays:  30,
		},
		Features: Features{
			AIAnalysis:    true,
			ExportFormats: []string{"pdf", "docx"},
		},
	},
	TierPro: {
		Tier:        TierPro,
		DisplayName: "Pro",
		Limits: Limits{
			SpeechCount: Unlimited,
			StorageMB:   1024,
			TeamMembers: 5,
			ActiveDays:  Unlimited,
		},
		Features: Features{
			AIAnalysis:        true,
			TeamCollaboration: true,
			CustomBranding:    true,
			ExportFormats:     []string{"pdf", "docx", "pptx"},
		},
	},
}

// Table is a validated rule table holding exactly one plan per tier.
type Table struct {
	plans map[Tier]Plan
}

// DefaultTable returns the compiled-in rule table.
func DefaultTable() *Table {
	t, err := NewTable(defaultPlans)
	if err != nil {
		panic(err)
	}
	return t
}

// NewTable validates and copies the given plans into a table.
func NewTable(plans map[Tier]Plan) (*Table, error) {
	copied := make(map[Tier]Plan, len(Tiers))
	for tier, plan := range plans {
		if !tier.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
		}
		if plan.Tier != tier {
			return nil, fmt.Errorf("entitlement: plan for %s declares tier %q", tier, plan.Tier)
		}
		if strings.TrimSpace(plan.DisplayName) == "" {
			return nil, fmt.Errorf("entitlement: plan %s has no display name", tier)
		}
		for _, kind := range LimitKinds {
			if l := plan.Limits.Of(kind); l < Unlimited {
				return nil, fmt.Errorf("entitlement: plan %s has invalid %s limit %d", tier, kind, l)
			}
		}
		plan.Features.ExportFormats = append([]string(nil), plan.Features.ExportFormats...)
		copied[tier] = plan
	}
	for _, tier := range Tiers {
		if _, ok := copied[tier]; !ok {
			return nil, fmt.Errorf("entitlement: missing plan for tier %s", tier)
		}
	}
	return &Table{plans: copied}, nil
}

// Plan returns the plan for a tier. Unknown tiers resolve to the trial plan.
func (t *Table) Plan(tier Tier) Plan {
	if plan, ok := t.plans[tier]; ok {
		return plan
	}
	return t.plans[TierTrial]
}

// Plans returns every plan ordered from most to least restrictive.
func (t *Table) Plans() []Plan {
	out := make([]Plan, 0, len(Tiers))
	for _, tier := range Tiers {
		out = append(out, t.Plan(tier))
	}
	return out
}
