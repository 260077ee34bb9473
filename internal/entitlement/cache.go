package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Cache memoizes snapshots per user. Entries must be invalidated whenever the
// underlying subscription changes.
type Cache interface {
	Get(ctx context.Context, userID string) (Snapshot, bool)
	Set(ctx context.Context, userID string, snap Snapshot, expiresAt time.Time)
	Invalidate(ctx context.Context, userID string)
}

type memoryCacheEntry struct {
	snap      Snapshot
	expiresAt time.Time
}

// MemoryCache is an in-process snapshot cache.
type MemoryCache struct {
	mu      sync.Mutex
	nowFn   func() time.Time
	entries map[string]memoryCacheEntry
}

// NewMemoryCache constructs a MemoryCache. A nil clock uses time.Now.
func NewMemoryCache(nowFn func() time.Time) *MemoryCache {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &MemoryCache{
		nowFn:   nowFn,
		entries: make(map[string]memoryCacheEntry),
	}
}

// Get returns a live entry for the user.
func (c *MemoryCache) Get(_ context.Context, userID string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[userID]
	if !ok {
		return Snapshot{}, false
	}
	if !c.nowFn().Before(entry.expiresAt) {
		delete(c.entries, userID)
		return Snapshot{}, false
	}
	return entry.snap, true
}

// Set stores a snapshot until expiresAt.
func (c *MemoryCache) Set(_ context.Context, userID string, snap Snapshot, expiresAt time.Time) {
	if userID == "" {
		return
	}
	c.mu.Lock()
	c.entries[userID] = memoryCacheEntry{snap: snap, expiresAt: expiresAt}
	c.mu.Unlock()
}

// Invalidate drops the user's entry.
func (c *MemoryCache) Invalidate(_ context.Context, userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}

// RedisCache stores snapshots as JSON values in Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
	nowFn  func() time.Time
}

// NewRedisCache constructs a RedisCache.
func NewRedisCache(client *redis.Client, prefix string, nowFn func() time.Time) *RedisCache {
	if nowFn == nil {
		nowFn = time.Now
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "speechhelp:ent"
	}
	return &RedisCache{client: client, prefix: prefix, nowFn: nowFn}
}

func (c *RedisCache) key(userID string) string {
	return c.prefix + ":" + userID
}

// Get loads and decodes the user's entry. Redis failures count as misses.
func (c *RedisCache) Get(ctx context.Context, userID string) (Snapshot, bool) {
	if c == nil || c.client == nil {
		return Snapshot{}, false
	}
	raw, errGet := c.client.Get(ctx, c.key(userID)).Bytes()
	if errGet != nil {
		if !errors.Is(errGet, redis.Nil) {
			log.WithError(errGet).Warn("entitlement cache: redis get failed")
		}
		return Snapshot{}, false
	}
	var snap Snapshot
	if errUnmarshal := json.Unmarshal(raw, &snap); errUnmarshal != nil {
		log.WithError(errUnmarshal).Warn("entitlement cache: drop undecodable entry")
		c.Invalidate(ctx, userID)
		return Snapshot{}, false
	}
	return snap, true
}

// Set stores the snapshot with a TTL ending at expiresAt.
func (c *RedisCache) Set(ctx context.Context, userID string, snap Snapshot, expiresAt time.Time) {
	if c == nil || c.client == nil || userID == "" {
		return
	}
	ttl := expiresAt.Sub(c.nowFn())
	if ttl <= 0 {
		return
	}
	payload, errMarshal := json.Marshal(snap)
	if errMarshal != nil {
		log.WithError(errMarshal).Warn("entitlement cache: marshal snapshot failed")
		return
	}
	if errSet := c.client.Set(ctx, c.key(userID), payload, ttl).Err(); errSet != nil {
		log.WithError(errSet).Warn("entitlement cache: redis set failed")
	}
}

// Invalidate deletes the user's entry.
func (c *RedisCache) Invalidate(ctx context.Context, userID string) {
	if c == nil || c.client == nil {
		return
	}
	if errDel := c.client.Del(ctx, c.key(userID)).Err(); errDel != nil {
		log.WithError(errDel).WithField("user_id", userID).Warn("entitlement cache: redis delete failed")
	}
}
