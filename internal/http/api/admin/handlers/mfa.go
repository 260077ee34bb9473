package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/speechhelp/portal/internal/mfa"
	internalsettings "github.com/speechhelp/portal/internal/settings"
	"github.com/speechhelp/portal/internal/store"
)

// MFAHandler lets an authenticated admin manage their own second factor.
type MFAHandler struct {
	admins *store.AdminStore
	nowFn  func() time.Time
}

// NewMFAHandler constructs an MFAHandler.
func NewMFAHandler(admins *store.AdminStore, nowFn func() time.Time) *MFAHandler {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &MFAHandler{admins: admins, nowFn: nowFn}
}

// Status reports whether TOTP is enabled and how many backup codes remain.
func (h *MFAHandler) Status(c *gin.Context) {
	adminID, ok := adminIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	admin, errFind := h.admins.Get(c.Request.Context(), adminID)
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load admin failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"totp_enabled":           admin.TOTPEnabled,
		"totp_pending":           strings.TrimSpace(admin.PendingTOTPSecret) != "",
		"backup_codes_remaining": len(admin.BackupCodeList()),
	})
}

// PrepareTOTP generates a new secret and stores it as pending until confirmed.
func (h *MFAHandler) PrepareTOTP(c *gin.Context) {
	adminID, ok := adminIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	ctx := c.Request.Context()
	admin, errFind := h.admins.Get(ctx, adminID)
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load admin failed"})
		return
	}
	if admin.TOTPEnabled {
		c.JSON(http.StatusConflict, gin.H{"error": "two-factor authentication is already enabled"})
		return
	}

	enrollment, errEnroll := mfa.NewEnrollment(internalsettings.SiteName(), admin.Username)
	if errEnroll != nil {
		log.WithError(errEnroll).Error("mfa: generate enrollment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate secret failed"})
		return
	}
	if errStore := h.admins.SetPendingSecret(ctx, admin.ID, enrollment.Secret); errStore != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store secret failed"})
		return
	}
	c.JSON(http.StatusOK, enrollment)
}

// confirmTOTPRequest carries the first code produced by the authenticator.
type confirmTOTPRequest struct {
	Code string `json:"code"`
}

// ConfirmTOTP verifies a code against the pending secret, enables TOTP and returns
// the backup codes. The codes are shown only once.
func (h *MFAHandler) ConfirmTOTP(c *gin.Context) {
	adminID, ok := adminIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body confirmTOTPRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	code := strings.TrimSpace(body.Code)
	if !mfa.ValidCodeFormat(code) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code must be 6 digits"})
		return
	}

	ctx := c.Request.Context()
	admin, errFind := h.admins.Get(ctx, adminID)
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load admin failed"})
		return
	}
	pending := strings.TrimSpace(admin.PendingTOTPSecret)
	if pending == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no pending two-factor setup"})
		return
	}

	valid, errVerify := mfa.VerifyTimeBasedCode(pending, code, mfa.DefaultWindow, h.nowFn())
	if errVerify != nil {
		if errors.Is(errVerify, mfa.ErrInvalidSecret) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "pending secret is invalid, prepare again"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verify code failed"})
		return
	}
	if !valid {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}

	codes, errCodes := mfa.GenerateBackupCodes(mfa.BackupCodeCount)
	if errCodes != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate backup codes failed"})
		return
	}
	if errEnable := h.admins.EnableTOTP(ctx, admin.ID, admin.MFAVersion, pending, codes); errEnable != nil {
		if errors.Is(errEnable, store.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "two-factor setup changed, try again"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enable two-factor failed"})
		return
	}
	log.WithField("admin_id", admin.ID).Info("mfa: totp enabled")
	c.JSON(http.StatusOK, gin.H{"enabled": true, "backup_codes": codes})
}

// DisableTOTP removes the second factor of the current admin.
func (h *MFAHandler) DisableTOTP(c *gin.Context) {
	adminID, ok := adminIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if errDisable := h.admins.DisableTOTP(c.Request.Context(), adminID); errDisable != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "disable two-factor failed"})
		return
	}
	log.WithField("admin_id", adminID).Info("mfa: totp disabled")
	c.JSON(http.StatusOK, gin.H{"enabled": false})
}

// RegenerateBackupCodes replaces every backup code of the current admin.
func (h *MFAHandler) RegenerateBackupCodes(c *gin.Context) {
	adminID, ok := adminIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	ctx := c.Request.Context()
	admin, errFind := h.admins.Get(ctx, adminID)
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load admin failed"})
		return
	}
	if !admin.TOTPEnabled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "two-factor authentication is not enabled"})
		return
	}
	codes, errCodes := mfa.GenerateBackupCodes(mfa.BackupCodeCount)
	if errCodes != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate backup codes failed"})
		return
	}
	if errStore := h.admins.RegenerateBackupCodes(ctx, admin.ID, codes); errStore != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store backup codes failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"backup_codes": codes})
}
