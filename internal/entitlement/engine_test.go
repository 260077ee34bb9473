package entitlement

import (
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func TestIsActive(t *testing.T) {
	cases := []struct {
		name string
		sub  Subscription
		want bool
	}{
		{"trial without status", Subscription{Tier: TierTrial}, true},
		{"premium without status", Subscription{Tier: TierPremium}, false},
		{"pro without status", Subscription{Tier: TierPro}, false},
		{"premium active", Subscription{Tier: TierPremium, Status: strPtr("active")}, true},
		{"premium canceled", Subscription{Tier: TierPremium, Status: strPtr("canceled")}, false},
		{"status is case sensitive", Subscription{Tier: TierPro, Status: strPtr("Active")}, false},
		{"trial with explicit inactive status", Subscription{Tier: TierTrial, Status: strPtr("past_due")}, false},
	}
	for _, tc := range cases {
		if got := IsActive(tc.sub); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestIsExpired(t *testing.T) {
	if IsExpired(Subscription{Tier: TierTrial}, testNow) {
		t.Fatalf("expected no end date to never expire")
	}
	end := testNow
	if IsExpired(Subscription{EndDate: &end}, testNow) {
		t.Fatalf("expected not expired exactly at end date")
	}
	if !IsExpired(Subscription{EndDate: &end}, testNow.Add(time.Second)) {
		t.Fatalf("expected expired one second after end date")
	}
}

func TestDaysRemaining(t *testing.T) {
	if _, bounded := DaysRemaining(Subscription{}, testNow); bounded {
		t.Fatalf("expected unbounded without end date")
	}
	cases := []struct {
		end  time.Time
		want int
	}{
		{testNow.Add(48 * time.Hour), 2},
		{testNow.Add(25 * time.Hour), 2},
		{testNow.Add(time.Minute), 1},
		{testNow, 0},
		{testNow.Add(-72 * time.Hour), 0},
	}
	for _, tc := range cases {
		days, bounded := DaysRemaining(Subscription{EndDate: timePtr(tc.end)}, testNow)
		if !bounded {
			t.Fatalf("expected bounded for end %s", tc.end)
		}
		if days != tc.want {
			t.Fatalf("end %s: expected %d days, got %d", tc.end, tc.want, days)
		}
	}
}

func TestEffectiveStatus_ExpiredAlwaysDemotesToTrial(t *testing.T) {
	table := DefaultTable()
	past := testNow.Add(-time.Hour)
	for _, tier := range Tiers {
		sub := Subscription{UserID: "u1", Tier: tier, Status: strPtr("active"), EndDate: &past}
		status := table.EffectiveStatus(sub, testNow)
		if !status.IsExpired {
			t.Fatalf("%s: expected expired", tier)
		}
		if status.EffectiveTier != TierTrial {
			t.Fatalf("%s: expected effective tier trial, got %s", tier, status.EffectiveTier)
		}
		if !status.ShouldShowUpgrade {
			t.Fatalf("%s: expected upgrade nudge", tier)
		}
	}
}

func TestEffectiveStatus_InactivePaidTierDemoted(t *testing.T) {
	table := DefaultTable()
	status := table.EffectiveStatus(Subscription{UserID: "u1", Tier: TierPro}, testNow)
	if status.IsActive {
		t.Fatalf("expected paid tier without status to be inactive")
	}
	if status.EffectiveTier != TierTrial {
		t.Fatalf("expected effective tier trial, got %s", status.EffectiveTier)
	}
}

func TestEffectiveStatus_TrialNudgeNearEnd(t *testing.T) {
	table := DefaultTable()
	sub := Subscription{UserID: "u1", Tier: TierTrial, EndDate: timePtr(testNow.Add(72 * time.Hour))}
	if table.EffectiveStatus(sub, testNow).ShouldShowUpgrade {
		t.Fatalf("expected no nudge with 3 days left")
	}
	sub.EndDate = timePtr(testNow.Add(47 * time.Hour))
	if !table.EffectiveStatus(sub, testNow).ShouldShowUpgrade {
		t.Fatalf("expected nudge with 2 days left")
	}
}

func TestScenario_TrialExpiring(t *testing.T) {
	table := DefaultTable()
	sub := Subscription{UserID: "u1", Tier: TierTrial, EndDate: timePtr(testNow.Add(-24 * time.Hour))}

	if !IsActive(sub) {
		t.Fatalf("expected trial default to active")
	}
	status := table.EffectiveStatus(sub, testNow)
	if !status.IsExpired || status.EffectiveTier != TierTrial {
		t.Fatalf("unexpected status: %+v", status)
	}
	decision := table.CanCreateSpeech(sub, testNow)
	if decision.Allowed {
		t.Fatalf("expected speech creation denied")
	}
	if decision.Code != DenialExpired || !strings.Contains(decision.Reason, "expired") {
		t.Fatalf("expected expiry reason, got %+v", decision)
	}
}

func TestScenario_PremiumAtLimit(t *testing.T) {
	table := DefaultTable()
	sub := Subscription{UserID: "u1", Tier: TierPremium, Status: strPtr("active")}

	sub.Usage.SpeechesUsed = 3
	decision := table.CanCreateSpeech(sub, testNow)
	if decision.Allowed {
		t.Fatalf("expected denial at limit")
	}
	if decision.Code != DenialLimitReached {
		t.Fatalf("expected limit_reached, got %q", decision.Code)
	}
	if !strings.Contains(decision.Reason, "3") || !strings.Contains(decision.Reason, "Premium") {
		t.Fatalf("expected reason to name limit and plan, got %q", decision.Reason)
	}

	sub.Usage.SpeechesUsed = 2
	if !table.EffectiveStatus(sub, testNow).ShouldShowUpgrade {
		t.Fatalf("expected nudge at limit minus one")
	}
	if !table.CanCreateSpeech(sub, testNow).Allowed {
		t.Fatalf("expected creation allowed below limit")
	}

	sub.Usage.SpeechesUsed = 1
	if table.EffectiveStatus(sub, testNow).ShouldShowUpgrade {
		t.Fatalf("expected no nudge with room left")
	}
}

func TestScenario_ProUnlimited(t *testing.T) {
	table := DefaultTable()
	sub := Subscription{UserID: "u1", Tier: TierPro, Status: strPtr("active")}
	for _, used := range []int64{0, 3, 10000, 1 << 40} {
		sub.Usage.SpeechesUsed = used
		decision := table.CanCreateSpeech(sub, testNow)
		if !decision.Allowed {
			t.Fatalf("used=%d: expected allowed, got %+v", used, decision)
		}
	}
	remaining, unlimited := table.Remaining(sub, LimitSpeechCount, testNow)
	if !unlimited || remaining != 0 {
		t.Fatalf("expected unlimited remaining, got %d %v", remaining, unlimited)
	}
}

func TestCanCreateSpeech_CheckOrder(t *testing.T) {
	table := DefaultTable()
	// Expired, inactive and over limit at once: expiry wins.
	sub := Subscription{
		UserID:  "u1",
		Tier:    TierPremium,
		Status:  strPtr("canceled"),
		EndDate: timePtr(testNow.Add(-time.Hour)),
		Usage:   Usage{SpeechesUsed: 10},
	}
	if got := table.CanCreateSpeech(sub, testNow).Code; got != DenialExpired {
		t.Fatalf("expected expired first, got %q", got)
	}
	sub.EndDate = nil
	if got := table.CanCreateSpeech(sub, testNow).Code; got != DenialInactive {
		t.Fatalf("expected inactive second, got %q", got)
	}
	sub.Status = strPtr("active")
	if got := table.CanCreateSpeech(sub, testNow).Code; got != DenialLimitReached {
		t.Fatalf("expected limit third, got %q", got)
	}
}

func TestCheckLimit_Additional(t *testing.T) {
	table := DefaultTable()
	sub := Subscription{UserID: "u1", Tier: TierPremium, Status: strPtr("active"), Usage: Usage{StorageUsedMB: 90}}
	if !table.CheckLimit(sub, LimitStorageMB, 10, testNow).Allowed {
		t.Fatalf("expected exactly filling storage to be allowed")
	}
	if table.CheckLimit(sub, LimitStorageMB, 11, testNow).Allowed {
		t.Fatalf("expected overflowing storage to be denied")
	}
	if !table.CheckLimit(sub, LimitActiveDays, 1000, testNow).Allowed {
		t.Fatalf("expected active days to never gate usage")
	}
}

func TestFeaturesFollowEffectiveTier(t *testing.T) {
	table := DefaultTable()
	sub := Subscription{UserID: "u1", Tier: TierPro, Status: strPtr("active")}
	if !table.IsFeatureAvailable(sub, FeatureCustomBranding, testNow) {
		t.Fatalf("expected pro to have custom branding")
	}
	if got := table.ExportFormats(sub, testNow); len(got) != 3 {
		t.Fatalf("expected 3 pro export formats, got %v", got)
	}

	sub.EndDate = timePtr(testNow.Add(-time.Minute))
	if table.IsFeatureAvailable(sub, FeatureAIAnalysis, testNow) {
		t.Fatalf("expected expired pro to fall back to trial features")
	}
	formats := table.ExportFormats(sub, testNow)
	if len(formats) != 1 || formats[0] != "pdf" {
		t.Fatalf("expected trial export formats, got %v", formats)
	}
}

func TestExportFormatsReturnsCopy(t *testing.T) {
	table := DefaultTable()
	sub := Subscription{UserID: "u1", Tier: TierTrial}
	formats := table.ExportFormats(sub, testNow)
	formats[0] = "mutated"
	if table.ExportFormats(sub, testNow)[0] != "pdf" {
		t.Fatalf("expected table to be unaffected by caller mutation")
	}
}

func TestSubscriptionValidate(t *testing.T) {
	if err := (Subscription{Tier: TierTrial}).Validate(); err == nil {
		t.Fatalf("expected missing user id error")
	}
	if err := (Subscription{UserID: "u1", Tier: "gold"}).Validate(); err == nil {
		t.Fatalf("expected unknown tier error")
	}
	if err := (Subscription{UserID: "u1", Tier: TierPro}).Validate(); err != nil {
		t.Fatalf("expected valid subscription, got %v", err)
	}
}

func TestNewTrialSubscription(t *testing.T) {
	sub := DefaultTable().NewTrialSubscription("u1", testNow)
	if sub.Tier != TierTrial || sub.Status != nil {
		t.Fatalf("unexpected trial: %+v", sub)
	}
	if sub.EndDate == nil || !sub.EndDate.Equal(testNow.Add(72*time.Hour)) {
		t.Fatalf("expected trial to end after 3 days, got %v", sub.EndDate)
	}
}

func TestSnapshot(t *testing.T) {
	table := DefaultTable()
	sub := Subscription{
		UserID:  "u1",
		Tier:    TierPremium,
		Status:  strPtr("active"),
		EndDate: timePtr(testNow.Add(10 * 24 * time.Hour)),
		Usage:   Usage{SpeechesUsed: 1, StorageUsedMB: 20},
	}
	snap := table.Snapshot(sub, testNow)
	if snap.PlanName != "Premium" {
		t.Fatalf("expected Premium plan name, got %q", snap.PlanName)
	}
	if snap.DaysRemaining == nil || *snap.DaysRemaining != 10 {
		t.Fatalf("expected 10 days remaining, got %v", snap.DaysRemaining)
	}
	speech := snap.Quotas[LimitSpeechCount.String()]
	if speech.Limit != 3 || speech.Used != 1 || speech.Remaining != 2 {
		t.Fatalf("unexpected speech quota: %+v", speech)
	}
	if !snap.Features[FeatureAIAnalysis.String()] || snap.Features[FeatureTeamCollaboration.String()] {
		t.Fatalf("unexpected features: %v", snap.Features)
	}
	if !snap.CanCreateSpeech.Allowed {
		t.Fatalf("expected speech creation allowed")
	}
}
