package ratelimit

import (
	"strings"
)

// KeyFor builds a limiter key for a login step and subject.
// Subjects are lower-cased so username case does not open extra buckets.
func KeyFor(scope Scope, subject string) string {
	subject = strings.ToLower(strings.TrimSpace(subject))
	if subject == "" {
		return ""
	}
	switch scope {
	case ScopeAdminPassword:
		return "admin:pw:" + subject
	case ScopeAdminTOTP:
		return "admin:totp:" + subject
	case ScopeUserPassword:
		return "user:pw:" + subject
	default:
		return ""
	}
}
