package ratelimit

// ResolveRule returns the rule that applies to a login step.
func ResolveRule(cfg SettingsConfig, scope Scope) Rule {
	switch scope {
	case ScopeAdminPassword, ScopeUserPassword:
		return Rule{Limit: cfg.LoginLimit, Window: cfg.LoginWindow}
	case ScopeAdminTOTP:
		return Rule{Limit: cfg.TOTPLimit, Window: cfg.LoginWindow}
	default:
		return Rule{}
	}
}
