package ratelimit

import (
	"strings"
	"time"

	internalsettings "github.com/speechhelp/portal/internal/settings"
)

// SettingsConfig captures rate limit settings from the config file and DB settings.
type SettingsConfig struct {
	LoginLimit    int
	LoginWindow   time.Duration
	TOTPLimit     int
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// DefaultSettingsConfig returns the compiled-in defaults.
func DefaultSettingsConfig() SettingsConfig {
	return SettingsConfig{
		LoginLimit:  internalsettings.DefaultLoginRateLimit,
		LoginWindow: time.Duration(internalsettings.DefaultLoginRateWindowSeconds) * time.Second,
		TOTPLimit:   internalsettings.DefaultTOTPRateLimit,
		RedisPrefix: internalsettings.DefaultRateLimitRedisPrefix,
	}
}

// LoadSettingsConfig loads the current settings snapshot over the defaults.
func LoadSettingsConfig() SettingsConfig {
	return overlayDBConfig(DefaultSettingsConfig())
}

// NewSettingsProvider returns a provider that overlays DB settings on base.
func NewSettingsProvider(base SettingsConfig) SettingsProvider {
	return func() SettingsConfig {
		return overlayDBConfig(base)
	}
}

// overlayDBConfig applies the runtime settings table on top of cfg and clamps
// the result to usable values.
func overlayDBConfig(cfg SettingsConfig) SettingsConfig {
	if v, ok := internalsettings.Int(internalsettings.LoginRateLimitKey); ok {
		cfg.LoginLimit = v
	}
	if v, ok := internalsettings.Int(internalsettings.LoginRateWindowSecondsKey); ok && v > 0 {
		cfg.LoginWindow = time.Duration(v) * time.Second
	}
	if v, ok := internalsettings.Int(internalsettings.TOTPRateLimitKey); ok {
		cfg.TOTPLimit = v
	}
	if v, ok := internalsettings.Bool(internalsettings.RateLimitRedisEnabledKey); ok {
		cfg.RedisEnabled = v
	}
	if v, ok := internalsettings.String(internalsettings.RateLimitRedisAddrKey); ok {
		cfg.RedisAddr = v
	}
	if v, ok := internalsettings.String(internalsettings.RateLimitRedisPasswordKey); ok {
		cfg.RedisPassword = v
	}
	if v, ok := internalsettings.Int(internalsettings.RateLimitRedisDBKey); ok {
		cfg.RedisDB = v
	}
	if v, ok := internalsettings.String(internalsettings.RateLimitRedisPrefixKey); ok {
		cfg.RedisPrefix = v
	}

	cfg.RedisAddr = strings.TrimSpace(cfg.RedisAddr)
	cfg.RedisPassword = strings.TrimSpace(cfg.RedisPassword)
	cfg.RedisPrefix = strings.TrimSpace(cfg.RedisPrefix)
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = internalsettings.DefaultRateLimitRedisPrefix
	}
	cfg.RedisDB = max(cfg.RedisDB, 0)
	cfg.LoginLimit = max(cfg.LoginLimit, 0)
	cfg.TOTPLimit = max(cfg.TOTPLimit, 0)
	if cfg.LoginWindow <= 0 {
		cfg.LoginWindow = time.Duration(internalsettings.DefaultLoginRateWindowSeconds) * time.Second
	}
	return cfg
}
