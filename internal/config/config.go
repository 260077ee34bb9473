package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath          = "CONFIG_PATH"
	EnvDBConnection        = "DB_CONNECTION"
	EnvJWTSecret           = "JWT_SECRET"
	EnvJWTExpiry           = "JWT_EXPIRY"
	EnvStripeSecretKey     = "STRIPE_SECRET_KEY"
	EnvStripeWebhookSecret = "STRIPE_WEBHOOK_SECRET"
	EnvRedisAddr           = "REDIS_ADDR"
	EnvLogLevel            = "LOG_LEVEL"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// readConfigFile decodes the YAML file into out. A missing file leaves out untouched
// and reports false.
func readConfigFile(configPath string, out any) (bool, error) {
	data, errRead := os.ReadFile(configPath)
	if errRead != nil {
		if errors.Is(errRead, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read config file: %w", errRead)
	}
	if errUnmarshal := yaml.Unmarshal(data, out); errUnmarshal != nil {
		return false, fmt.Errorf("parse config file: %w", errUnmarshal)
	}
	return true, nil
}

// LoadDatabaseDSN reads the database DSN from the environment or the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// JWTConfig holds the token signing secret and the full-session expiry.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 7 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	var cfg fileConfig
	if found, errRead := readConfigFile(configPath, &cfg); errRead == nil && found {
		result = cfg.JWT
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// StripeConfig holds the Stripe credentials and the tier to price mapping.
type StripeConfig struct {
	SecretKey     string            `yaml:"secret-key"`
	WebhookSecret string            `yaml:"webhook-secret"`
	SuccessURL    string            `yaml:"success-url"`
	CancelURL     string            `yaml:"cancel-url"`
	Prices        map[string]string `yaml:"prices"` // Tier name to Stripe price ID.
}

// Enabled reports whether checkout can be offered.
func (c StripeConfig) Enabled() bool {
	return strings.TrimSpace(c.SecretKey) != ""
}

// LoadStripeConfig loads Stripe settings; secrets may come from the environment.
func LoadStripeConfig(configPath string) (StripeConfig, error) {
	type fileConfig struct {
		Stripe StripeConfig `yaml:"stripe"`
	}
	var cfg fileConfig
	if _, errRead := readConfigFile(configPath, &cfg); errRead != nil {
		return StripeConfig{}, errRead
	}
	result := cfg.Stripe
	if key := strings.TrimSpace(os.Getenv(EnvStripeSecretKey)); key != "" {
		result.SecretKey = key
	}
	if secret := strings.TrimSpace(os.Getenv(EnvStripeWebhookSecret)); secret != "" {
		result.WebhookSecret = secret
	}
	prices := make(map[string]string, len(result.Prices))
	for tier, price := range result.Prices {
		tier = strings.ToLower(strings.TrimSpace(tier))
		price = strings.TrimSpace(price)
		if tier == "" || price == "" {
			continue
		}
		prices[tier] = price
	}
	result.Prices = prices
	return result, nil
}

// RedisConfig addresses the Redis instance backing the shared entitlement cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

const defaultRedisPrefix = "speechhelp"

// LoadRedisConfig loads Redis settings. REDIS_ADDR overrides the file.
func LoadRedisConfig(configPath string) (RedisConfig, error) {
	type fileConfig struct {
		Redis RedisConfig `yaml:"redis"`
	}
	var cfg fileConfig
	if _, errRead := readConfigFile(configPath, &cfg); errRead != nil {
		return RedisConfig{}, errRead
	}
	result := cfg.Redis
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		result.Addr = addr
	}
	result.Addr = strings.TrimSpace(result.Addr)
	if strings.TrimSpace(result.Prefix) == "" {
		result.Prefix = defaultRedisPrefix
	}
	if result.DB < 0 {
		result.DB = 0
	}
	return result, nil
}

// RateLimitConfig holds the file defaults of login throttling. Database settings
// override them at runtime.
type RateLimitConfig struct {
	LoginLimit  int           `yaml:"login-limit"`
	LoginWindow time.Duration `yaml:"login-window"`
	TOTPLimit   int           `yaml:"totp-limit"`
}

// LoadRateLimitConfig loads throttling defaults. Absent values are left zero so the
// caller keeps its own defaults.
func LoadRateLimitConfig(configPath string) (RateLimitConfig, error) {
	type fileConfig struct {
		RateLimit RateLimitConfig `yaml:"rate-limit"`
	}
	var cfg fileConfig
	if _, errRead := readConfigFile(configPath, &cfg); errRead != nil {
		return RateLimitConfig{}, errRead
	}
	result := cfg.RateLimit
	if result.LoginLimit < 0 {
		result.LoginLimit = 0
	}
	if result.TOTPLimit < 0 {
		result.TOTPLimit = 0
	}
	if result.LoginWindow < 0 {
		result.LoginWindow = 0
	}
	return result, nil
}

// LoggingConfig controls the log level and optional rotated file output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// LoadLoggingConfig loads logging settings. LOG_LEVEL overrides the file.
func LoadLoggingConfig(configPath string) (LoggingConfig, error) {
	type fileConfig struct {
		Logging LoggingConfig `yaml:"logging"`
	}
	var cfg fileConfig
	if _, errRead := readConfigFile(configPath, &cfg); errRead != nil {
		return LoggingConfig{}, errRead
	}
	result := cfg.Logging
	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		result.Level = level
	}
	result.Level = strings.ToLower(strings.TrimSpace(result.Level))
	if result.Level == "" {
		result.Level = "info"
	}
	if result.MaxSizeMB <= 0 {
		result.MaxSizeMB = 100
	}
	if result.MaxBackups < 0 {
		result.MaxBackups = 0
	}
	if result.MaxAgeDays < 0 {
		result.MaxAgeDays = 0
	}
	return result, nil
}

// EntitlementConfig locates an optional plan table override and sets the cache TTL.
type EntitlementConfig struct {
	PlansFile string        `yaml:"plans-file"`
	CacheTTL  time.Duration `yaml:"cache-ttl"`
}

const defaultEntitlementCacheTTL = 5 * time.Minute

// LoadEntitlementConfig loads entitlement settings. A relative plans file resolves
// against the config file directory.
func LoadEntitlementConfig(configPath string) (EntitlementConfig, error) {
	type fileConfig struct {
		Entitlements EntitlementConfig `yaml:"entitlements"`
	}
	var cfg fileConfig
	if _, errRead := readConfigFile(configPath, &cfg); errRead != nil {
		return EntitlementConfig{}, errRead
	}
	result := cfg.Entitlements
	result.PlansFile = strings.TrimSpace(result.PlansFile)
	if result.PlansFile != "" && !filepath.IsAbs(result.PlansFile) {
		result.PlansFile = filepath.Join(filepath.Dir(configPath), result.PlansFile)
	}
	if result.CacheTTL <= 0 {
		result.CacheTTL = defaultEntitlementCacheTTL
	}
	return result, nil
}
