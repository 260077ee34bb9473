package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	redisBreakerDuration = 30 * time.Second
	redisPingTimeout     = 2 * time.Second
)

// SettingsProvider supplies the latest settings snapshot.
type SettingsProvider func() SettingsConfig

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// redisTarget identifies the Redis limiter currently in use. A settings change
// that alters any field replaces the client.
type redisTarget struct {
	addr     string
	password string
	prefix   string
	db       int
}

func targetFrom(cfg SettingsConfig) (redisTarget, error) {
	t := redisTarget{
		addr:     strings.TrimSpace(cfg.RedisAddr),
		password: strings.TrimSpace(cfg.RedisPassword),
		prefix:   strings.TrimSpace(cfg.RedisPrefix),
		db:       max(cfg.RedisDB, 0),
	}
	if t.addr == "" {
		return t, errors.New("rate limit redis: missing address")
	}
	return t, nil
}

// Manager enforces login throttling on Redis when configured and reachable,
// and on an in-process limiter otherwise. A Redis failure opens a breaker that
// keeps traffic on the memory limiter for redisBreakerDuration.
type Manager struct {
	provider  SettingsProvider
	nowFn     func() time.Time
	memory    *MemoryLimiter
	newClient RedisClientFactory

	mu           sync.Mutex
	redis        *RedisLimiter
	target       redisTarget
	breakerUntil time.Time
}

// NewManager constructs a Manager. Nil arguments select the DB-backed settings,
// time.Now and redis.NewClient.
func NewManager(provider SettingsProvider, nowFn func() time.Time, newClient RedisClientFactory) *Manager {
	if provider == nil {
		provider = LoadSettingsConfig
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if newClient == nil {
		newClient = redis.NewClient
	}
	return &Manager{
		provider:  provider,
		nowFn:     nowFn,
		memory:    NewMemoryLimiter(),
		newClient: newClient,
	}
}

// Allow counts one attempt of scope for subject.
func (m *Manager) Allow(ctx context.Context, scope Scope, subject string) (Result, error) {
	if m == nil {
		return Result{Allowed: true}, nil
	}
	cfg := m.provider()
	return m.allow(ctx, cfg, KeyFor(scope, subject), ResolveRule(cfg, scope))
}

// AllowRule counts one hit of key against an explicit rule.
func (m *Manager) AllowRule(ctx context.Context, key string, rule Rule) (Result, error) {
	if m == nil {
		return Result{Allowed: true}, nil
	}
	return m.allow(ctx, m.provider(), key, rule)
}

func (m *Manager) allow(ctx context.Context, cfg SettingsConfig, key string, rule Rule) (Result, error) {
	if !rule.Enabled() || key == "" {
		return Result{Allowed: true}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := m.nowFn()

	var (
		res Result
		err error
	)
	if limiter := m.redisFor(ctx, cfg, now); limiter != nil {
		res, err = limiter.Allow(ctx, key, rule, now)
		if err != nil {
			m.tripBreaker(err, now)
			res, err = m.memory.Allow(ctx, key, rule, now)
		}
	} else {
		res, err = m.memory.Allow(ctx, key, rule, now)
	}
	if err == nil && !res.Allowed {
		res.RetryAfter = max(res.Reset.Sub(now), time.Second)
	}
	return res, err
}

// Reset clears the counters of scope for subject, typically after a successful login.
func (m *Manager) Reset(ctx context.Context, scope Scope, subject string) {
	if m == nil {
		return
	}
	key := KeyFor(scope, subject)
	if key == "" {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_ = m.memory.Reset(ctx, key)

	m.mu.Lock()
	limiter := m.redis
	m.mu.Unlock()
	if limiter == nil {
		return
	}
	rule := ResolveRule(m.provider(), scope)
	if errReset := limiter.Reset(ctx, key, rule, m.nowFn()); errReset != nil {
		log.WithError(errReset).Debug("rate limit: redis reset failed")
	}
}

// redisFor returns the Redis limiter for cfg, or nil when Redis is disabled,
// the breaker is open, or the server cannot be reached.
func (m *Manager) redisFor(ctx context.Context, cfg SettingsConfig, now time.Time) *RedisLimiter {
	if !cfg.RedisEnabled {
		return nil
	}
	target, errTarget := targetFrom(cfg)

	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Before(m.breakerUntil) {
		return nil
	}
	if errTarget != nil {
		m.openBreakerLocked(errTarget, now)
		return nil
	}
	if m.redis != nil && m.target == target {
		return m.redis
	}
	if m.redis != nil {
		_ = m.redis.client.Close()
		m.redis = nil
	}

	client := m.newClient(&redis.Options{Addr: target.addr, Password: target.password, DB: target.db})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		_ = client.Close()
		m.openBreakerLocked(errPing, now)
		return nil
	}
	m.redis = NewRedisLimiter(client, target.prefix)
	m.target = target
	return m.redis
}

func (m *Manager) tripBreaker(err error, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openBreakerLocked(err, now)
}

func (m *Manager) openBreakerLocked(err error, now time.Time) {
	if now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("rate limit: redis unavailable, falling back to memory")
}
