package entitlement

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultTableHasEveryTier(t *testing.T) {
	table := DefaultTable()
	plans := table.Plans()
	if len(plans) != len(Tiers) {
		t.Fatalf("expected %d plans, got %d", len(Tiers), len(plans))
	}
	for i, tier := range Tiers {
		if plans[i].Tier != tier {
			t.Fatalf("expected plan %d to be %s, got %s", i, tier, plans[i].Tier)
		}
	}
	if !table.Plan(TierPro).Limits.SpeechCount.IsUnlimited() {
		t.Fatalf("expected pro speeches to be unlimited")
	}
	if got := table.Plan(TierPremium).Limits.SpeechCount; got != 3 {
		t.Fatalf("expected premium speech limit 3, got %d", got)
	}
}

func TestNewTable_RejectsMissingTier(t *testing.T) {
	plans := map[Tier]Plan{
		TierTrial:   defaultPlans[TierTrial],
		TierPremium: defaultPlans[TierPremium],
	}
	if _, err := NewTable(plans); err == nil {
		t.Fatalf("expected missing tier error")
	}
}

func TestParseTable_Overrides(t *testing.T) {
	data := []byte(`
plans:
  premium:
    display-name: Premium Plus
    limits:
      speech_count: 5
      storage_mb: unlimited
    features:
      team_collaboration: true
    export-formats: [PDF, docx, pdf, txt]
`)
	table, err := ParseTable(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	plan := table.Plan(TierPremium)
	if plan.DisplayName != "Premium Plus" {
		t.Fatalf("expected display name override, got %q", plan.DisplayName)
	}
	if plan.Limits.SpeechCount != 5 {
		t.Fatalf("expected speech limit 5, got %d", plan.Limits.SpeechCount)
	}
	if !plan.Limits.StorageMB.IsUnlimited() {
		t.Fatalf("expected unlimited storage")
	}
	if plan.Limits.TeamMembers != 1 {
		t.Fatalf("expected untouched team limit, got %d", plan.Limits.TeamMembers)
	}
	if !plan.Features.TeamCollaboration || !plan.Features.AIAnalysis {
		t.Fatalf("unexpected features: %+v", plan.Features)
	}
	if len(plan.Features.ExportFormats) != 3 || plan.Features.ExportFormats[0] != "pdf" {
		t.Fatalf("expected normalized formats, got %v", plan.Features.ExportFormats)
	}
	if table.Plan(TierTrial).DisplayName != "Free Trial" {
		t.Fatalf("expected trial to keep defaults")
	}
}

func TestParseTable_RejectsUnknownKeys(t *testing.T) {
	cases := map[string]string{
		"unknown tier":    "plans:\n  gold:\n    display-name: Gold\n",
		"unknown limit":   "plans:\n  pro:\n    limits:\n      minutes: 5\n",
		"unknown feature": "plans:\n  pro:\n    features:\n      teleport: true\n",
		"negative limit":  "plans:\n  pro:\n    limits:\n      speech_count: -4\n",
		"empty name":      "plans:\n  pro:\n    display-name: \"  \"\n",
	}
	for name, data := range cases {
		if _, err := ParseTable([]byte(data)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	_, err := ParseTable([]byte("plans:\n  gold: {}\n"))
	if !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("expected ErrUnknownTier, got %v", err)
	}
}

func TestLoadTable(t *testing.T) {
	table, err := LoadTable("")
	if err != nil || table == nil {
		t.Fatalf("expected default table, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "plans.yaml")
	if errWrite := os.WriteFile(path, []byte("plans:\n  trial:\n    limits:\n      active_days: 7\n"), 0600); errWrite != nil {
		t.Fatalf("write plans: %v", errWrite)
	}
	table, err = LoadTable(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := table.Plan(TierTrial).Limits.ActiveDays; got != 7 {
		t.Fatalf("expected active days 7, got %d", got)
	}

	if _, errMissing := LoadTable(filepath.Join(t.TempDir(), "missing.yaml")); errMissing == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" Premium ")
	if err != nil || tier != TierPremium {
		t.Fatalf("expected premium, got %q %v", tier, err)
	}
	if _, err := ParseTier("enterprise"); !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("expected ErrUnknownTier, got %v", err)
	}
}
