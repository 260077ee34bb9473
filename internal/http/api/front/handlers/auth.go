package handlers

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/speechhelp/portal/internal/config"
	"github.com/speechhelp/portal/internal/http/api/apiutil"
	"github.com/speechhelp/portal/internal/metrics"
	"github.com/speechhelp/portal/internal/models"
	"github.com/speechhelp/portal/internal/ratelimit"
	"github.com/speechhelp/portal/internal/security"
	"github.com/speechhelp/portal/internal/store"
	"gorm.io/gorm"
)

const minUserPasswordLength = 6

// AuthFrontHandler serves user registration and login.
type AuthFrontHandler struct {
	db      *gorm.DB
	subs    *store.SubscriptionStore
	jwtCfg  config.JWTConfig
	limiter *ratelimit.Manager
	nowFn   func() time.Time
}

// NewAuthFrontHandler constructs an AuthFrontHandler.
func NewAuthFrontHandler(db *gorm.DB, subs *store.SubscriptionStore, jwtCfg config.JWTConfig, limiter *ratelimit.Manager, nowFn func() time.Time) *AuthFrontHandler {
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &AuthFrontHandler{db: db, subs: subs, jwtCfg: jwtCfg, limiter: limiter, nowFn: nowFn}
}

// registerRequest defines the sign-up payload.
type registerRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates the account and its trial subscription in one transaction.
func (h *AuthFrontHandler) Register(c *gin.Context) {
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if username == "" || email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username or email"})
		return
	}
	if _, errAddr := mail.ParseAddress(email); errAddr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		return
	}
	if len(body.Password) < minUserPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 6 characters"})
		return
	}
	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	user := models.User{
		Username: username,
		Name:     strings.TrimSpace(body.Name),
		Email:    email,
		Password: hash,
	}
	var trial *models.Subscription
	ctx := c.Request.Context()
	errTx := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&user).Error; errCreate != nil {
			return errCreate
		}
		row, errTrial := h.subs.WithTx(tx).CreateTrial(ctx, user.ID)
		if errTrial != nil {
			return errTrial
		}
		trial = row
		return nil
	})
	if errTx != nil {
		if store.IsUniqueViolation(errTx) {
			c.JSON(http.StatusConflict, gin.H{"error": "username or email already exists"})
			return
		}
		log.WithError(errTx).Error("register: create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "register failed"})
		return
	}

	token, errToken := security.IssueUserToken(h.jwtCfg.Secret, user.ID, user.Username, h.jwtCfg.Expiry)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	log.WithField("user_id", user.ID).Info("user registered")
	c.JSON(http.StatusCreated, gin.H{
		"token":    token,
		"user":     formatUser(&user),
		"tier":     trial.Tier,
		"end_date": trial.EndDate,
	})
}

// loginRequest defines the user login payload. Login accepts a username or an email.
type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Login checks the password and issues a user token.
func (h *AuthFrontHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	login := strings.TrimSpace(body.Login)
	if login == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing login or password"})
		return
	}
	if apiutil.RejectRateLimited(c, h.limiter, ratelimit.ScopeUserPassword, strings.ToLower(login)) {
		return
	}

	ctx := c.Request.Context()
	var user models.User
	errFind := h.db.WithContext(ctx).
		Where("username = ? OR email = ?", login, strings.ToLower(login)).
		First(&user).Error
	if errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}
		metrics.LoginsTotal.WithLabelValues("user", "invalid").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid login or password"})
		return
	}
	if !security.CheckPassword(user.Password, body.Password) {
		metrics.LoginsTotal.WithLabelValues("user", "invalid").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid login or password"})
		return
	}
	if user.Disabled {
		metrics.LoginsTotal.WithLabelValues("user", "disabled").Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "user disabled"})
		return
	}
	h.limiter.Reset(ctx, ratelimit.ScopeUserPassword, strings.ToLower(login))

	token, errToken := security.IssueUserToken(h.jwtCfg.Secret, user.ID, user.Username, h.jwtCfg.Expiry)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	now := h.nowFn()
	if errTouch := h.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{"last_login_at": now, "updated_at": now}).Error; errTouch != nil {
		log.WithError(errTouch).WithField("user_id", user.ID).Warn("user login: record login time")
	}
	metrics.LoginsTotal.WithLabelValues("user", "success").Inc()
	c.JSON(http.StatusOK, gin.H{"token": token, "user": formatUser(&user)})
}

func formatUser(user *models.User) gin.H {
	return gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"name":       user.Name,
		"email":      user.Email,
		"created_at": user.CreatedAt,
	}
}
