package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/speechhelp/portal/internal/billing"
	"github.com/speechhelp/portal/internal/config"
	"github.com/speechhelp/portal/internal/db"
	"github.com/speechhelp/portal/internal/entitlement"
	adminapi "github.com/speechhelp/portal/internal/http/api/admin"
	"github.com/speechhelp/portal/internal/http/api/front"
	"github.com/speechhelp/portal/internal/logging"
	"github.com/speechhelp/portal/internal/metrics"
	"github.com/speechhelp/portal/internal/ratelimit"
	internalsettings "github.com/speechhelp/portal/internal/settings"
	"github.com/speechhelp/portal/internal/store"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// serverConfig is every config section the main server reads.
type serverConfig struct {
	jwt          config.JWTConfig
	stripe       config.StripeConfig
	redis        config.RedisConfig
	rateLimit    config.RateLimitConfig
	logging      config.LoggingConfig
	entitlements config.EntitlementConfig
}

func loadServerConfig(configPath string) (serverConfig, error) {
	var (
		out serverConfig
		err error
	)
	if out.jwt, err = config.LoadJWTConfig(configPath); err != nil {
		return out, err
	}
	if strings.TrimSpace(out.jwt.Secret) == "" {
		return out, fmt.Errorf("app: missing jwt secret (set `jwt.secret` or %s)", config.EnvJWTSecret)
	}
	if out.stripe, err = config.LoadStripeConfig(configPath); err != nil {
		return out, err
	}
	if out.redis, err = config.LoadRedisConfig(configPath); err != nil {
		return out, err
	}
	if out.rateLimit, err = config.LoadRateLimitConfig(configPath); err != nil {
		return out, err
	}
	if out.logging, err = config.LoadLoggingConfig(configPath); err != nil {
		return out, err
	}
	if out.entitlements, err = config.LoadEntitlementConfig(configPath); err != nil {
		return out, err
	}
	return out, nil
}

// RunServer boots the portal API with database-backed components.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	srvCfg, err := loadServerConfig(configPath)
	if err != nil {
		return err
	}
	logCloser, err := logging.Setup(srvCfg.logging)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := logCloser.Close(); errClose != nil {
			log.Errorf("log file close error: %v", errClose)
		}
	}()

	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errReload := internalsettings.ReloadDBConfig(ctx, conn); errReload != nil {
		return errReload
	}

	table := entitlement.DefaultTable()
	if plansFile := strings.TrimSpace(srvCfg.entitlements.PlansFile); plansFile != "" {
		if table, err = entitlement.LoadTable(plansFile); err != nil {
			return err
		}
		log.Infof("loaded plan table from %s", plansFile)
	}

	var redisClient *redis.Client
	var cache entitlement.Cache = entitlement.NewMemoryCache(nowUTC)
	if srvCfg.redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     srvCfg.redis.Addr,
			Password: srvCfg.redis.Password,
			DB:       srvCfg.redis.DB,
		})
		defer func() {
			if errClose := redisClient.Close(); errClose != nil {
				log.Errorf("redis close error: %v", errClose)
			}
		}()
		cache = entitlement.NewRedisCache(redisClient, srvCfg.redis.Prefix, nowUTC)
	}

	subs := store.NewSubscriptionStore(conn, table, nowUTC)
	entitlements := entitlement.NewService(table, subs, cache, srvCfg.entitlements.CacheTTL, nowUTC)
	limiter := ratelimit.NewManager(ratelimit.NewSettingsProvider(rateLimitBase(srvCfg)), nil, nil)

	prices, err := billing.NewPriceMap(srvCfg.stripe.Prices)
	if err != nil {
		return err
	}
	if !srvCfg.stripe.Enabled() {
		log.Warn("stripe secret key not configured, checkout is disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logging.GinLogger())

	initialized, errInit := HasAdminInitialized(ctx, conn)
	if errInit != nil {
		return errInit
	}
	var initState atomic.Bool
	initState.Store(initialized)

	registerServiceRoutes(engine, conn, &initState)
	adminapi.RegisterAdminRoutes(engine, conn, srvCfg.jwt, adminapi.Dependencies{
		Admins:        store.NewAdminStore(conn, nowUTC),
		Subscriptions: subs,
		Entitlements:  entitlements,
		Limiter:       limiter,
	})
	front.RegisterFrontRoutes(engine, conn, srvCfg.jwt, front.Dependencies{
		Subscriptions: subs,
		Speeches:      store.NewSpeechStore(conn, table, nowUTC),
		Entitlements:  entitlements,
		Checkout:      billing.NewCheckoutService(srvCfg.stripe, prices, subs),
		Webhook: billing.NewWebhookHandler(
			srvCfg.stripe.WebhookSecret,
			prices,
			store.NewStripeEventStore(conn, nowUTC),
			subs,
			entitlements,
		),
		Limiter: limiter,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting portal on %s with config=%s", srv.Addr, configPath)
	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	return nil
}

// rateLimitBase merges the config file rate limit and Redis sections over the defaults.
// DB settings are layered on top at request time.
func rateLimitBase(cfg serverConfig) ratelimit.SettingsConfig {
	base := ratelimit.DefaultSettingsConfig()
	if cfg.rateLimit.LoginLimit > 0 {
		base.LoginLimit = cfg.rateLimit.LoginLimit
	}
	if cfg.rateLimit.LoginWindow > 0 {
		base.LoginWindow = cfg.rateLimit.LoginWindow
	}
	if cfg.rateLimit.TOTPLimit > 0 {
		base.TOTPLimit = cfg.rateLimit.TOTPLimit
	}
	if cfg.redis.Enabled() {
		base.RedisEnabled = true
		base.RedisAddr = cfg.redis.Addr
		base.RedisPassword = cfg.redis.Password
		base.RedisDB = cfg.redis.DB
		base.RedisPrefix = cfg.redis.Prefix + ":rl"
	}
	return base
}

// registerServiceRoutes adds health, metrics and first-run setup routes.
func registerServiceRoutes(engine *gin.Engine, conn *gorm.DB, initState *atomic.Bool) {
	engine.GET("/healthz", func(c *gin.Context) {
		sqlDB, errDB := conn.DB()
		if errDB != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if errPing := sqlDB.PingContext(ctx); errPing != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", metrics.Handler())

	engine.GET("/v0/init/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, InitStatusResponse{Initialized: initState.Load()})
	})
	engine.POST("/v0/init/setup", func(c *gin.Context) {
		ctx := c.Request.Context()
		if ok, errInit := HasAdminInitialized(ctx, conn); errInit != nil {
			log.WithError(errInit).Error("init: check admin status")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "check admin status failed"})
			return
		} else if ok {
			initState.Store(true)
			c.JSON(http.StatusBadRequest, gin.H{"error": "System already initialized"})
			return
		}

		var setup AdminSetup
		if errBind := c.ShouldBindJSON(&setup); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errBind.Error()})
			return
		}
		if errSetup := setup.normalize(); errSetup != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errSetup.Error()})
			return
		}
		if errSeed := SeedFirstAdmin(ctx, conn, setup); errSeed != nil {
			log.WithError(errSeed).Error("init: seed first admin")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create admin"})
			return
		}
		initState.Store(true)
		c.JSON(http.StatusOK, gin.H{"message": "Initialization successful"})
	})
}

// nowUTC returns the current UTC time.
func nowUTC() time.Time { return time.Now().UTC() }
