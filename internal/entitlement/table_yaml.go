package entitlement

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML accepts a non-negative integer, -1 or the string "unlimited".
func (l *Limit) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.ToLower(strings.TrimSpace(node.Value))
	if raw == "unlimited" {
		*l = Unlimited
		return nil
	}
	parsed, errParse := strconv.ParseInt(raw, 10, 64)
	if errParse != nil {
		return fmt.Errorf("invalid limit %q", node.Value)
	}
	if parsed < int64(Unlimited) {
		return fmt.Errorf("invalid limit %d", parsed)
	}
	*l = Limit(parsed)
	return nil
}

// MarshalYAML writes unbounded limits as "unlimited".
func (l Limit) MarshalYAML() (any, error) {
	if l.IsUnlimited() {
		return "unlimited", nil
	}
	return int64(l), nil
}

// planOverride maps one tier entry of a plans file. Omitted fields keep the default.
type planOverride struct {
	DisplayName   *string          `yaml:"display-name"`
	Limits        map[string]Limit `yaml:"limits"`
	Features      map[string]bool  `yaml:"features"`
	ExportFormats *[]string        `yaml:"export-formats"`
}

// plansFile maps the YAML layout of a plans file.
type plansFile struct {
	Plans map[string]planOverride `yaml:"plans"`
}

// LoadTable reads plan overrides from a YAML file on top of the compiled-in table.
// An empty path returns the default table.
func LoadTable(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTable(), nil
	}
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("entitlement: read plans file: %w", errRead)
	}
	return ParseTable(data)
}

// ParseTable applies YAML plan overrides to the compiled-in table and validates the result.
func ParseTable(data []byte) (*Table, error) {
	var file plansFile
	if errUnmarshal := yaml.Unmarshal(data, &file); errUnmarshal != nil {
		return nil, fmt.Errorf("entitlement: parse plans file: %w", errUnmarshal)
	}

	plans := make(map[Tier]Plan, len(defaultPlans))
	for tier, plan := range defaultPlans {
		plans[tier] = plan
	}

	for rawTier, override := range file.Plans {
		tier, errTier := ParseTier(rawTier)
		if errTier != nil {
			return nil, errTier
		}
		plan := plans[tier]
		if override.DisplayName != nil {
			plan.DisplayName = strings.TrimSpace(*override.DisplayName)
		}
		for key, value := range override.Limits {
			if errSet := setLimit(&plan.Limits, key, value); errSet != nil {
				return nil, fmt.Errorf("entitlement: plan %s: %w", tier, errSet)
			}
		}
		for key, value := range override.Features {
			kind, ok := ParseFeatureKind(key)
			if !ok {
				return nil, fmt.Errorf("entitlement: plan %s: unknown feature %q", tier, key)
			}
			setFeature(&plan.Features, kind, value)
		}
		if override.ExportFormats != nil {
			plan.Features.ExportFormats = normalizeFormats(*override.ExportFormats)
		}
		plans[tier] = plan
	}
	return NewTable(plans)
}

func setLimit(limits *Limits, key string, value Limit) error {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case LimitSpeechCount.String():
		limits.SpeechCount = value
	case LimitStorageMB.String():
		limits.StorageMB = value
	case LimitTeamMembers.String():
		limits.TeamMembers = value
	case LimitActiveDays.String():
		limits.ActiveDays = value
	default:
		return fmt.Errorf("unknown limit %q", key)
	}
	return nil
}

func setFeature(features *Features, kind FeatureKind, value bool) {
	switch kind {
	case FeatureAIAnalysis:
		features.AIAnalysis = value
	case FeatureTeamCollaboration:
		features.TeamCollaboration = value
	case FeatureCustomBranding:
		features.CustomBranding = value
	}
}

func normalizeFormats(formats []string) []string {
	seen := make(map[string]struct{}, len(formats))
	out := make([]string, 0, len(formats))
	for _, format := range formats {
		f := strings.ToLower(strings.TrimSpace(format))
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
