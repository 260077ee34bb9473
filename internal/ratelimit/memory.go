package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	window int64
	reset  time.Time
	count  int
}

// MemoryLimiter implements a fixed-window in-memory rate limiter.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*memoryEntry
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryEntry),
	}
}

// Allow checks whether the request should be allowed in the current window.
func (l *MemoryLimiter) Allow(_ context.Context, key string, rule Rule, now time.Time) (Result, error) {
	if !rule.Enabled() || key == "" {
		return Result{Allowed: true}, nil
	}
	window, reset := rule.windowStart(now)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)
	entry := l.counters[key]
	if entry == nil {
		entry = &memoryEntry{window: window, reset: reset}
		l.counters[key] = entry
	}
	if entry.window != window {
		entry.window = window
		entry.reset = reset
		entry.count = 0
	}
	if entry.count >= rule.Limit {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	entry.count++
	return Result{Allowed: true, Remaining: rule.Limit - entry.count, Reset: reset}, nil
}

// Reset forgets the counter for key, e.g. after a successful login.
func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.counters, key)
	l.mu.Unlock()
	return nil
}

// sweep drops stale counters once the map grows large. Caller holds mu.
func (l *MemoryLimiter) sweep(now time.Time) {
	if len(l.counters) < 4096 {
		return
	}
	for key, entry := range l.counters {
		if !now.Before(entry.reset) {
			delete(l.counters, key)
		}
	}
}
