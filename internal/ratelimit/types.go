package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
	// RetryAfter is set on rejections and is at least one second.
	RetryAfter time.Duration
}

// Rule is a fixed-window quota: at most Limit hits per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Enabled reports whether the rule throttles at all.
func (r Rule) Enabled() bool { return r.Limit > 0 }

// windowSeconds returns the window length in whole seconds, at least one.
func (r Rule) windowSeconds() int64 {
	sec := int64(r.Window / time.Second)
	if sec < 1 {
		return 1
	}
	return sec
}

// windowStart returns the index of the window containing now and the time it resets.
func (r Rule) windowStart(now time.Time) (int64, time.Time) {
	size := r.windowSeconds()
	idx := now.Unix() / size
	return idx, time.Unix((idx+1)*size, 0).UTC()
}

// Limiter provides rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule, now time.Time) (Result, error)
}

// Scope indicates which login step a limit applies to.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeAdminPassword
	ScopeAdminTOTP
	ScopeUserPassword
)

// String returns the metrics label of the scope.
func (s Scope) String() string {
	switch s {
	case ScopeAdminPassword:
		return "admin_password"
	case ScopeAdminTOTP:
		return "admin_totp"
	case ScopeUserPassword:
		return "user_password"
	default:
		return "none"
	}
}
