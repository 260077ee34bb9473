package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/speechhelp/portal/internal/config"
	"github.com/speechhelp/portal/internal/http/api/apiutil"
	"github.com/speechhelp/portal/internal/metrics"
	"github.com/speechhelp/portal/internal/mfa"
	"github.com/speechhelp/portal/internal/models"
	"github.com/speechhelp/portal/internal/ratelimit"
	"github.com/speechhelp/portal/internal/security"
	"github.com/speechhelp/portal/internal/store"
)

// AuthHandler serves the two-step admin login.
type AuthHandler struct {
	admins  *store.AdminStore
	jwtCfg  config.JWTConfig
	limiter *ratelimit.Manager
	nowFn   func() time.Time
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(admins *store.AdminStore, jwtCfg config.JWTConfig, limiter *ratelimit.Manager, nowFn func() time.Time) *AuthHandler {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &AuthHandler{admins: admins, jwtCfg: jwtCfg, limiter: limiter, nowFn: nowFn}
}

// loginRequest defines the request body for the password step.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login checks the password. Admins with TOTP enabled receive a short-lived pending
// token that only /login/totp accepts.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username or password"})
		return
	}
	if apiutil.RejectRateLimited(c, h.limiter, ratelimit.ScopeAdminPassword, username) {
		return
	}

	ctx := c.Request.Context()
	admin, errFind := h.admins.ByUsername(ctx, username)
	if errFind != nil {
		if !errors.Is(errFind, store.ErrNotFound) {
			log.WithError(errFind).Error("admin login: load admin")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}
		metrics.LoginsTotal.WithLabelValues("admin", "invalid").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}
	if !security.CheckPassword(admin.Password, body.Password) {
		metrics.LoginsTotal.WithLabelValues("admin", "invalid").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}
	if !admin.Active {
		metrics.LoginsTotal.WithLabelValues("admin", "disabled").Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
		return
	}
	h.limiter.Reset(ctx, ratelimit.ScopeAdminPassword, username)

	if admin.TOTPEnabled {
		token, errToken := security.IssueAdminToken(h.jwtCfg.Secret, admin.ID, admin.Username, security.StageMFAPending, 0)
		if errToken != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
			return
		}
		metrics.LoginsTotal.WithLabelValues("admin", "mfa_required").Inc()
		c.JSON(http.StatusOK, gin.H{
			"mfa_required": true,
			"mfa_token":    token,
			"expires_in":   int(security.MFAPendingExpiry.Seconds()),
		})
		return
	}

	metrics.LoginsTotal.WithLabelValues("admin", "success").Inc()
	h.issueFullToken(c, admin)
}

// loginTOTPRequest defines the request body for the second step.
type loginTOTPRequest struct {
	MFAToken string `json:"mfa_token"`
	Code     string `json:"code"`
}

// LoginTOTP verifies a time-based or backup code against the pending login. A backup
// code is consumed with a versioned write so it cannot be accepted twice.
func (h *AuthHandler) LoginTOTP(c *gin.Context) {
	var body loginTOTPRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	claims, errClaims := security.ParseMFAPendingToken(h.jwtCfg.Secret, strings.TrimSpace(body.MFAToken))
	if errClaims != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired mfa token"})
		return
	}
	if !mfa.ValidCodeFormat(strings.TrimSpace(body.Code)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code must be 6 digits"})
		return
	}
	if apiutil.RejectRateLimited(c, h.limiter, ratelimit.ScopeAdminTOTP, claims.Username) {
		return
	}

	ctx := c.Request.Context()
	admin, errFind := h.admins.Get(ctx, claims.AdminID)
	if errFind != nil {
		if errors.Is(errFind, store.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if !admin.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
		return
	}

	credential := mfa.Credential{
		Secret:      admin.TOTPSecret,
		Enabled:     admin.TOTPEnabled,
		BackupCodes: admin.BackupCodeList(),
	}
	result, errVerify := credential.Verify(body.Code, h.nowFn())
	switch {
	case errors.Is(errVerify, mfa.ErrNotEnabled):
		c.JSON(http.StatusBadRequest, gin.H{"error": "two-factor authentication is not enabled"})
		return
	case errors.Is(errVerify, mfa.ErrInvalidCodeFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": "code must be 6 digits"})
		return
	case errors.Is(errVerify, mfa.ErrInvalidSecret):
		log.WithField("admin_id", admin.ID).Error("admin login: stored totp secret is malformed")
		metrics.TOTPVerificationsTotal.WithLabelValues("totp", "bad_secret").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "two-factor configuration is invalid, contact a super admin"})
		return
	case errVerify != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verify code failed"})
		return
	}

	method := "totp"
	if result.UsedBackupCode {
		method = "backup_code"
	}
	if !result.Verified {
		metrics.TOTPVerificationsTotal.WithLabelValues(method, "invalid").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}
	if result.UsedBackupCode {
		errReplace := h.admins.ReplaceBackupCodes(ctx, admin.ID, admin.MFAVersion, result.RemainingBackupCodes)
		if errReplace != nil {
			if errors.Is(errReplace, store.ErrConflict) {
				metrics.TOTPVerificationsTotal.WithLabelValues(method, "conflict").Inc()
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "consume backup code failed"})
			return
		}
	}
	metrics.TOTPVerificationsTotal.WithLabelValues(method, "success").Inc()
	h.limiter.Reset(ctx, ratelimit.ScopeAdminTOTP, claims.Username)

	response := h.fullTokenResponse(c, admin)
	if response == nil {
		return
	}
	if result.UsedBackupCode {
		response["backup_codes_remaining"] = len(result.RemainingBackupCodes)
	}
	c.JSON(http.StatusOK, response)
}

func (h *AuthHandler) issueFullToken(c *gin.Context, admin *models.Admin) {
	if response := h.fullTokenResponse(c, admin); response != nil {
		c.JSON(http.StatusOK, response)
	}
}

// fullTokenResponse signs a full session token and records the login. It answers the
// request itself and returns nil on failure.
func (h *AuthHandler) fullTokenResponse(c *gin.Context, admin *models.Admin) gin.H {
	token, errToken := security.IssueAdminToken(h.jwtCfg.Secret, admin.ID, admin.Username, security.StageFull, h.jwtCfg.Expiry)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return nil
	}
	if errTouch := h.admins.TouchLogin(c.Request.Context(), admin.ID); errTouch != nil {
		log.WithError(errTouch).WithField("admin_id", admin.ID).Warn("admin login: record login time")
	}
	return gin.H{
		"token":    token,
		"admin_id": admin.ID,
		"username": admin.Username,
	}
}
