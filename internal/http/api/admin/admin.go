package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/speechhelp/portal/internal/config"
	"github.com/speechhelp/portal/internal/entitlement"
	handlers "github.com/speechhelp/portal/internal/http/api/admin/handlers"
	"github.com/speechhelp/portal/internal/http/api/admin/permissions"
	"github.com/speechhelp/portal/internal/http/api/apiutil"
	"github.com/speechhelp/portal/internal/ratelimit"
	"github.com/speechhelp/portal/internal/security"
	"github.com/speechhelp/portal/internal/store"
	"gorm.io/gorm"
)

// Dependencies bundles the services the admin API needs.
type Dependencies struct {
	Admins        *store.AdminStore
	Subscriptions *store.SubscriptionStore
	Entitlements  *entitlement.Service
	Limiter       *ratelimit.Manager
	Now           func() time.Time
}

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, deps Dependencies) {
	if r == nil || db == nil || deps.Admins == nil {
		return
	}

	adminGroup := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(deps.Admins, jwtCfg, deps.Limiter, deps.Now)
	adminGroup.POST("/login", authHandler.Login)
	adminGroup.POST("/login/totp", authHandler.LoginTOTP)

	selfAuthed := adminGroup.Group("")
	selfAuthed.Use(adminAuthMiddleware(deps.Admins, jwtCfg))

	mfaHandler := handlers.NewMFAHandler(deps.Admins, deps.Now)
	selfAuthed.GET("/mfa/status", mfaHandler.Status)
	selfAuthed.POST("/mfa/totp/prepare", mfaHandler.PrepareTOTP)
	selfAuthed.POST("/mfa/totp/confirm", mfaHandler.ConfirmTOTP)
	selfAuthed.POST("/mfa/totp/disable", mfaHandler.DisableTOTP)
	selfAuthed.POST("/mfa/backup-codes/regenerate", mfaHandler.RegenerateBackupCodes)

	authed := adminGroup.Group("")
	authed.Use(adminAuthMiddleware(deps.Admins, jwtCfg))
	authed.Use(adminPermissionMiddleware())

	userHandler := handlers.NewUserHandler(db, deps.Subscriptions, deps.Entitlements)
	authed.GET("/users", userHandler.List)
	authed.GET("/users/:id", userHandler.Get)
	authed.POST("/users/:id/disable", userHandler.Disable)
	authed.POST("/users/:id/enable", userHandler.Enable)
	authed.GET("/users/:id/subscription", userHandler.GetSubscription)
	authed.PUT("/users/:id/subscription", userHandler.UpdateSubscription)

	planHandler := handlers.NewPlanHandler(deps.Entitlements.Table())
	authed.GET("/plans", planHandler.List)

	settingHandler := handlers.NewSettingHandler(db)
	authed.GET("/settings", settingHandler.List)
	authed.PUT("/settings/:key", settingHandler.Update)

	adminHandler := handlers.NewAdminHandler(db)
	authed.POST("/admins", adminHandler.Create)
	authed.GET("/admins", adminHandler.List)

	permissionHandler := handlers.NewPermissionHandler()
	authed.GET("/permissions", permissionHandler.List)
}

// adminAuthMiddleware validates full-stage admin JWTs and loads admin context.
func adminAuthMiddleware(admins *store.AdminStore, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := apiutil.BearerToken(c)
		if !ok {
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		admin, errFind := admins.Get(c.Request.Context(), claims.AdminID)
		if errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
			return
		}

		adminPermissions := permissions.Parse(admin.Permissions)
		c.Set(handlers.ContextAdminID, admin.ID)
		c.Set(handlers.ContextAdminUsername, admin.Username)
		c.Set(handlers.ContextAdminPermissions, adminPermissions)
		c.Set(handlers.ContextAdminSuperAdmin, admin.IsSuperAdmin)
		c.Next()
	}
}

// adminPermissionMiddleware checks the route key against the admin's permissions.
// Super admins bypass the check.
func adminPermissionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSuper, _ := c.Get(handlers.ContextAdminSuperAdmin); isSuper == true {
			c.Next()
			return
		}
		raw, _ := c.Get(handlers.ContextAdminPermissions)
		perms, _ := raw.([]string)
		key := permissions.Key(c.Request.Method, c.FullPath())
		if !permissions.Has(perms, key) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
