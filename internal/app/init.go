package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/speechhelp/portal/internal/config"
	"github.com/speechhelp/portal/internal/db"
	"github.com/speechhelp/portal/internal/security"
	"gopkg.in/yaml.v3"
)

const (
	defaultSQLitePath = "speechhelp.db"
	defaultJWTExpiry  = "168h"
	jwtSecretLength   = 48
)

// ErrInitCompleted signals that setup wrote a config file and the main server should start.
var ErrInitCompleted = errors.New("init completed")

var sqlitePragmas = []string{
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
	"_pragma=foreign_keys(1)",
	"_pragma=synchronous(NORMAL)",
}

// DatabaseTarget describes the database the setup wizard should connect to.
type DatabaseTarget struct {
	Type     string `json:"database_type"`
	Host     string `json:"database_host"`
	Port     int    `json:"database_port"`
	User     string `json:"database_user"`
	Password string `json:"database_password"`
	Name     string `json:"database_name"`
	Path     string `json:"database_path"`
	SSLMode  string `json:"database_ssl_mode"`
}

// InitRequest is the body of POST /v0/init/setup on the init server.
type InitRequest struct {
	DatabaseTarget
	AdminSetup
}

// InitStatusResponse reports whether initialization is complete.
type InitStatusResponse struct {
	Initialized bool `json:"initialized"`
}

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}

func (t *DatabaseTarget) normalize() error {
	t.Type = strings.ToLower(strings.TrimSpace(t.Type))
	switch t.Type {
	case "", db.DialectPostgres:
		t.Type = db.DialectPostgres
		switch {
		case strings.TrimSpace(t.Host) == "":
			return errors.New("Database host is required")
		case t.Port <= 0 || t.Port > 65535:
			return errors.New("Invalid database port")
		case strings.TrimSpace(t.User) == "":
			return errors.New("Database username is required")
		case strings.TrimSpace(t.Name) == "":
			return errors.New("Database name is required")
		}
	case db.DialectSQLite:
		t.Path = strings.TrimSpace(t.Path)
		if t.Path == "" {
			t.Path = defaultSQLitePath
		}
	default:
		return errors.New("Unsupported database type")
	}
	return nil
}

// DSN renders the connection string for the target.
func (t DatabaseTarget) DSN() (string, error) {
	switch strings.ToLower(strings.TrimSpace(t.Type)) {
	case "", db.DialectPostgres:
		sslMode := t.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(t.User, t.Password),
			Host:     fmt.Sprintf("%s:%d", t.Host, t.Port),
			Path:     "/" + t.Name,
			RawQuery: "sslmode=" + url.QueryEscape(sslMode),
		}
		return u.String(), nil
	case db.DialectSQLite:
		return sqliteDSN(t.Path), nil
	default:
		return "", fmt.Errorf("app: unsupported database type %q", t.Type)
	}
}

func sqliteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(sqlitePragmas, "&")
}

// pingDatabase opens the DSN once and pings it.
func pingDatabase(ctx context.Context, dsn string) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("sql db: %w", err)
	}
	defer func() {
		if errClose := sqlDB.Close(); errClose != nil {
			log.Errorf("sql db close error: %v", errClose)
		}
	}()
	return sqlDB.PingContext(ctx)
}

// bootstrapConfig is the config file written by the setup wizard.
type bootstrapConfig struct {
	DatabaseDSN string `yaml:"database-dsn"`
	JWT         struct {
		Secret string `yaml:"secret"`
		Expiry string `yaml:"expiry"`
	} `yaml:"jwt"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// WriteConfigFile writes a config file with a fresh JWT secret. The file is
// written next to its final path and renamed so a crash never leaves half a file.
func WriteConfigFile(configPath string, dsn string) error {
	secret, errSecret := security.GenerateRandomString(jwtSecretLength)
	if errSecret != nil {
		return fmt.Errorf("app: generate jwt secret: %w", errSecret)
	}
	var cfg bootstrapConfig
	cfg.DatabaseDSN = dsn
	cfg.JWT.Secret = secret
	cfg.JWT.Expiry = defaultJWTExpiry
	cfg.Logging.Level = "info"

	data, errMarshal := yaml.Marshal(&cfg)
	if errMarshal != nil {
		return fmt.Errorf("app: marshal config: %w", errMarshal)
	}
	if errMkdir := os.MkdirAll(filepath.Dir(configPath), 0o755); errMkdir != nil {
		return fmt.Errorf("app: create config dir: %w", errMkdir)
	}
	tmp := configPath + ".tmp"
	if errWrite := os.WriteFile(tmp, data, 0o600); errWrite != nil {
		return fmt.Errorf("app: write config file: %w", errWrite)
	}
	if errRename := os.Rename(tmp, configPath); errRename != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("app: install config file: %w", errRename)
	}
	return nil
}

// seedDatabase migrates a fresh database and creates the first admin.
func seedDatabase(ctx context.Context, dsn string, setup AdminSetup) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("app: open database: %w", err)
	}
	if errMigrate := db.Migrate(conn.WithContext(ctx)); errMigrate != nil {
		return fmt.Errorf("app: migrate database: %w", errMigrate)
	}
	return SeedFirstAdmin(ctx, conn, setup)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Max-Age", "86400")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// initServer serves the setup wizard API until a config file has been written.
type initServer struct {
	configPath string
	done       chan struct{}
	finish     sync.Once
}

func (s *initServer) status(c *gin.Context) {
	c.JSON(http.StatusOK, InitStatusResponse{Initialized: ConfigExists(s.configPath)})
}

func (s *initServer) setup(c *gin.Context) {
	if ConfigExists(s.configPath) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "System already initialized"})
		return
	}
	var req InitRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errBind.Error()})
		return
	}
	if errTarget := req.DatabaseTarget.normalize(); errTarget != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errTarget.Error()})
		return
	}
	if errAdmin := req.AdminSetup.normalize(); errAdmin != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errAdmin.Error()})
		return
	}
	dsn, errDSN := req.DSN()
	if errDSN != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errDSN.Error()})
		return
	}

	ctx := c.Request.Context()
	if errPing := pingDatabase(ctx, dsn); errPing != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Database connection failed: %v", errPing)})
		return
	}
	if errSeed := seedDatabase(ctx, dsn, req.AdminSetup); errSeed != nil {
		log.WithError(errSeed).Error("init: seed database")
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create admin: %v", errSeed)})
		return
	}
	if errWrite := WriteConfigFile(s.configPath, dsn); errWrite != nil {
		log.WithError(errWrite).Error("init: write config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to write config: %v", errWrite)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Initialization successful"})
	s.finish.Do(func() { close(s.done) })
}

func (s *initServer) notReady(c *gin.Context) {
	msg := "System not initialized, POST /v0/init/setup first"
	if ConfigExists(s.configPath) {
		msg = "System initializing, please retry shortly"
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": msg})
}

// RunInitServer serves the setup wizard while no config file exists. It returns
// ErrInitCompleted once setup succeeds so the caller can start the main server.
func RunInitServer(ctx context.Context, cfg config.AppConfig, port int) error {
	s := &initServer{
		configPath: config.ResolveConfigPath(cfg.ConfigPath),
		done:       make(chan struct{}),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), corsMiddleware())
	engine.GET("/v0/init/status", s.status)
	engine.POST("/v0/init/setup", s.setup)
	engine.NoRoute(s.notReady)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("init server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting init server on %s (config not found at %s)", srv.Addr, s.configPath)
	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	select {
	case <-s.done:
		return ErrInitCompleted
	default:
		return nil
	}
}
