package entitlement

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeReader struct {
	subs  map[string]Subscription
	calls int
}

func (r *fakeReader) Subscription(_ context.Context, userID string) (Subscription, error) {
	r.calls++
	sub, ok := r.subs[userID]
	if !ok {
		return Subscription{}, errors.New("not found")
	}
	return sub, nil
}

func TestServiceCachesUntilInvalidated(t *testing.T) {
	now := testNow
	clock := func() time.Time { return now }
	reader := &fakeReader{subs: map[string]Subscription{
		"u1": {UserID: "u1", Tier: TierPremium, Status: strPtr("active"), Usage: Usage{SpeechesUsed: 1}},
	}}
	svc := NewService(nil, reader, NewMemoryCache(clock), time.Minute, clock)
	ctx := context.Background()

	first, err := svc.Snapshot(ctx, "u1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if first.Quotas[LimitSpeechCount.String()].Used != 1 {
		t.Fatalf("unexpected usage: %+v", first.Quotas)
	}

	sub := reader.subs["u1"]
	sub.Usage.SpeechesUsed = 3
	reader.subs["u1"] = sub

	cached, _ := svc.Snapshot(ctx, "u1")
	if cached.Quotas[LimitSpeechCount.String()].Used != 1 || reader.calls != 1 {
		t.Fatalf("expected cached snapshot, calls=%d", reader.calls)
	}

	svc.Invalidate(ctx, "u1")
	fresh, _ := svc.Snapshot(ctx, "u1")
	if fresh.CanCreateSpeech.Allowed {
		t.Fatalf("expected fresh snapshot to deny at limit")
	}
	if reader.calls != 2 {
		t.Fatalf("expected reload after invalidation, calls=%d", reader.calls)
	}
}

func TestServiceCacheNeverOutlivesEndDate(t *testing.T) {
	now := testNow
	clock := func() time.Time { return now }
	end := testNow.Add(30 * time.Second)
	reader := &fakeReader{subs: map[string]Subscription{
		"u1": {UserID: "u1", Tier: TierPro, Status: strPtr("active"), EndDate: &end},
	}}
	svc := NewService(nil, reader, NewMemoryCache(clock), time.Hour, clock)
	ctx := context.Background()

	snap, _ := svc.Snapshot(ctx, "u1")
	if snap.Status.IsExpired || snap.Status.EffectiveTier != TierPro {
		t.Fatalf("expected active pro, got %+v", snap.Status)
	}

	now = end.Add(time.Second)
	snap, _ = svc.Snapshot(ctx, "u1")
	if !snap.Status.IsExpired || snap.Status.EffectiveTier != TierTrial {
		t.Fatalf("expected expired snapshot after end date, got %+v", snap.Status)
	}
	if reader.calls != 2 {
		t.Fatalf("expected cache miss after end date, calls=%d", reader.calls)
	}
}

func TestServicePropagatesReaderError(t *testing.T) {
	svc := NewService(nil, &fakeReader{subs: map[string]Subscription{}}, nil, 0, nil)
	if _, err := svc.Snapshot(context.Background(), "missing"); err == nil {
		t.Fatalf("expected reader error")
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := testNow
	cache := NewMemoryCache(func() time.Time { return now })
	ctx := context.Background()

	cache.Set(ctx, "u1", Snapshot{UserID: "u1"}, now.Add(time.Minute))
	if _, ok := cache.Get(ctx, "u1"); !ok {
		t.Fatalf("expected hit")
	}
	now = now.Add(time.Minute)
	if _, ok := cache.Get(ctx, "u1"); ok {
		t.Fatalf("expected miss at expiry")
	}

	cache.Set(ctx, "u2", Snapshot{UserID: "u2"}, now.Add(time.Hour))
	cache.Invalidate(ctx, "u2")
	if _, ok := cache.Get(ctx, "u2"); ok {
		t.Fatalf("expected miss after invalidate")
	}
}
