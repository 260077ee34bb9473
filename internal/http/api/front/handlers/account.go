package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/speechhelp/portal/internal/entitlement"
	"github.com/speechhelp/portal/internal/models"
	"github.com/speechhelp/portal/internal/store"
	"gorm.io/gorm"
)

// AccountHandler serves the current user's profile and entitlements.
type AccountHandler struct {
	db           *gorm.DB
	entitlements *entitlement.Service
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(db *gorm.DB, entitlements *entitlement.Service) *AccountHandler {
	return &AccountHandler{db: db, entitlements: entitlements}
}

// Me returns the profile and entitlement snapshot of the current user.
func (h *AccountHandler) Me(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	snap, ok := h.snapshot(c, userID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": formatUser(&user), "entitlements": snap})
}

// Entitlements returns the evaluated entitlement snapshot.
func (h *AccountHandler) Entitlements(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	snap, ok := h.snapshot(c, userID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Feature reports whether one feature is available on the effective tier.
func (h *AccountHandler) Feature(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	feature, known := entitlement.ParseFeatureKind(c.Param("feature"))
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown feature"})
		return
	}
	snap, ok := h.snapshot(c, userID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"feature":        feature.String(),
		"available":      snap.Features[feature.String()],
		"effective_tier": snap.Status.EffectiveTier,
	})
}

func (h *AccountHandler) snapshot(c *gin.Context, userID uint64) (entitlement.Snapshot, bool) {
	snap, errSnap := h.entitlements.Snapshot(c.Request.Context(), strconv.FormatUint(userID, 10))
	if errSnap != nil {
		if errors.Is(errSnap, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return entitlement.Snapshot{}, false
		}
		log.WithError(errSnap).WithField("user_id", userID).Error("entitlements: evaluate")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "evaluate entitlements failed"})
		return entitlement.Snapshot{}, false
	}
	return snap, true
}
