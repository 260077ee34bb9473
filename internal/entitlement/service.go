package entitlement

import (
	"context"
	"time"

	"github.com/speechhelp/portal/internal/metrics"
)

// DefaultCacheTTL bounds how long a snapshot may be served without re-evaluation.
const DefaultCacheTTL = 5 * time.Minute

// SubscriptionReader loads the current subscription snapshot for a user.
type SubscriptionReader interface {
	Subscription(ctx context.Context, userID string) (Subscription, error)
}

// Service evaluates entitlements for stored subscriptions through an optional cache.
type Service struct {
	table  *Table
	reader SubscriptionReader
	cache  Cache
	ttl    time.Duration
	nowFn  func() time.Time
}

// NewService constructs a Service. A nil table uses the default table; a nil cache
// disables caching.
func NewService(table *Table, reader SubscriptionReader, cache Cache, ttl time.Duration, nowFn func() time.Time) *Service {
	if table == nil {
		table = DefaultTable()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Service{table: table, reader: reader, cache: cache, ttl: ttl, nowFn: nowFn}
}

// Table returns the rule table in use.
func (s *Service) Table() *Table { return s.table }

// Now returns the service clock reading.
func (s *Service) Now() time.Time { return s.nowFn() }

// Snapshot returns the user's entitlements, from cache when fresh.
func (s *Service) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	if s.cache != nil {
		if snap, ok := s.cache.Get(ctx, userID); ok {
			metrics.EntitlementCacheTotal.WithLabelValues("hit").Inc()
			return snap, nil
		}
		metrics.EntitlementCacheTotal.WithLabelValues("miss").Inc()
	}
	sub, errLoad := s.reader.Subscription(ctx, userID)
	if errLoad != nil {
		return Snapshot{}, errLoad
	}
	now := s.nowFn()
	snap := s.table.Snapshot(sub, now)
	if s.cache != nil {
		s.cache.Set(ctx, userID, snap, s.expiry(sub, now))
	}
	return snap, nil
}

// Invalidate drops any cached snapshot for the user.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	if s == nil || s.cache == nil {
		return
	}
	s.cache.Invalidate(ctx, userID)
}

// expiry caps the cache lifetime at the end date so expiry is never served stale.
func (s *Service) expiry(sub Subscription, now time.Time) time.Time {
	expiresAt := now.Add(s.ttl)
	if sub.EndDate == nil {
		return expiresAt
	}
	// Expiry flips strictly after EndDate.
	boundary := sub.EndDate.Add(time.Nanosecond)
	if boundary.After(now) && boundary.Before(expiresAt) {
		expiresAt = boundary
	}
	return expiresAt
}
