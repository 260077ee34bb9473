package settings

// DB config keys and defaults for settings.
const (
	// SiteNameKey is the DB config key for the portal site name.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback site name.
	DefaultSiteName = "SpeechHelp"
	// LoginRateLimitKey caps admin and user password attempts per window.
	LoginRateLimitKey = "LOGIN_RATE_LIMIT"
	// LoginRateWindowSecondsKey is the length of the login throttling window.
	LoginRateWindowSecondsKey = "LOGIN_RATE_WINDOW_SECONDS"
	// TOTPRateLimitKey caps second-factor attempts per admin per window.
	TOTPRateLimitKey = "TOTP_RATE_LIMIT"
	// RateLimitRedisEnabledKey toggles Redis-backed rate limiting.
	RateLimitRedisEnabledKey = "RATE_LIMIT_REDIS_ENABLED"
	// RateLimitRedisAddrKey defines the Redis address for rate limiting.
	RateLimitRedisAddrKey = "RATE_LIMIT_REDIS_ADDR"
	// RateLimitRedisPasswordKey defines the Redis password for rate limiting.
	RateLimitRedisPasswordKey = "RATE_LIMIT_REDIS_PASSWORD"
	// RateLimitRedisDBKey defines the Redis DB index for rate limiting.
	RateLimitRedisDBKey = "RATE_LIMIT_REDIS_DB"
	// RateLimitRedisPrefixKey defines the Redis key prefix for rate limiting.
	RateLimitRedisPrefixKey = "RATE_LIMIT_REDIS_PREFIX"
	// DefaultLoginRateLimit is the fallback number of password attempts (0 means unlimited).
	DefaultLoginRateLimit = 10
	// DefaultLoginRateWindowSeconds is the fallback throttling window.
	DefaultLoginRateWindowSeconds = 60
	// DefaultTOTPRateLimit is the fallback number of second-factor attempts.
	DefaultTOTPRateLimit = 5
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "speechhelp:rl"
)

// EditableKeys lists the keys admins may change through the API.
var EditableKeys = []string{
	SiteNameKey,
	LoginRateLimitKey,
	LoginRateWindowSecondsKey,
	TOTPRateLimitKey,
	RateLimitRedisEnabledKey,
	RateLimitRedisAddrKey,
	RateLimitRedisPasswordKey,
	RateLimitRedisDBKey,
	RateLimitRedisPrefixKey,
}

// IsEditable reports whether key may be changed through the API.
func IsEditable(key string) bool {
	for _, k := range EditableKeys {
		if k == key {
			return true
		}
	}
	return false
}
