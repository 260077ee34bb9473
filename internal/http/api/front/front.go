package front

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/speechhelp/portal/internal/billing"
	"github.com/speechhelp/portal/internal/config"
	"github.com/speechhelp/portal/internal/entitlement"
	"github.com/speechhelp/portal/internal/http/api/apiutil"
	handlers "github.com/speechhelp/portal/internal/http/api/front/handlers"
	"github.com/speechhelp/portal/internal/models"
	"github.com/speechhelp/portal/internal/ratelimit"
	"github.com/speechhelp/portal/internal/security"
	"github.com/speechhelp/portal/internal/store"
	"gorm.io/gorm"
)

// Dependencies bundles the services the front API needs.
type Dependencies struct {
	Subscriptions *store.SubscriptionStore
	Speeches      *store.SpeechStore
	Entitlements  *entitlement.Service
	Checkout      *billing.CheckoutService
	Webhook       *billing.WebhookHandler
	Limiter       *ratelimit.Manager
	Now           func() time.Time
}

// RegisterFrontRoutes registers the user-facing routes and the Stripe webhook.
func RegisterFrontRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, deps Dependencies) {
	if r == nil || db == nil {
		return
	}

	if deps.Webhook != nil {
		r.POST("/v0/stripe/webhook", deps.Webhook.Handle)
	}

	frontGroup := r.Group("/v0/front")

	authHandler := handlers.NewAuthFrontHandler(db, deps.Subscriptions, jwtCfg, deps.Limiter, deps.Now)
	frontGroup.POST("/register", authHandler.Register)
	frontGroup.POST("/login", authHandler.Login)

	planHandler := handlers.NewPlanFrontHandler(deps.Entitlements.Table())
	frontGroup.GET("/plans", planHandler.List)

	authed := frontGroup.Group("")
	authed.Use(userAuthMiddleware(db, jwtCfg))

	accountHandler := handlers.NewAccountHandler(db, deps.Entitlements)
	authed.GET("/me", accountHandler.Me)
	authed.GET("/entitlements", accountHandler.Entitlements)
	authed.GET("/features/:feature", accountHandler.Feature)

	speechHandler := handlers.NewSpeechHandler(deps.Speeches, deps.Entitlements)
	authed.GET("/speeches", speechHandler.List)
	authed.POST("/speeches", speechHandler.Create)
	authed.GET("/speeches/:id", speechHandler.Get)

	checkoutHandler := handlers.NewCheckoutFrontHandler(db, deps.Checkout)
	authed.POST("/billing/checkout", checkoutHandler.Create)
}

// userAuthMiddleware validates user JWTs and rejects disabled accounts.
func userAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := apiutil.BearerToken(c)
		if !ok {
			return
		}
		claims, errJWT := security.ParseUserToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).
			Select("id", "username", "disabled").
			First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if user.Disabled {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user disabled"})
			return
		}

		c.Set(handlers.ContextUserID, user.ID)
		c.Set(handlers.ContextUsername, user.Username)
		c.Next()
	}
}
