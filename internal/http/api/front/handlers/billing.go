package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/speechhelp/portal/internal/billing"
	"github.com/speechhelp/portal/internal/entitlement"
	"github.com/speechhelp/portal/internal/models"
	"gorm.io/gorm"
)

// CheckoutFrontHandler starts Stripe checkouts for the current user.
type CheckoutFrontHandler struct {
	db       *gorm.DB
	checkout *billing.CheckoutService
}

// NewCheckoutFrontHandler constructs a CheckoutFrontHandler.
func NewCheckoutFrontHandler(db *gorm.DB, checkout *billing.CheckoutService) *CheckoutFrontHandler {
	return &CheckoutFrontHandler{db: db, checkout: checkout}
}

// checkoutRequest defines the tier the user wants to buy.
type checkoutRequest struct {
	Tier string `json:"tier"`
}

// Create returns the Stripe checkout URL for the requested tier.
func (h *CheckoutFrontHandler) Create(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body checkoutRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	tier, errTier := entitlement.ParseTier(body.Tier)
	if errTier != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tier"})
		return
	}

	ctx := c.Request.Context()
	var user models.User
	if errFind := h.db.WithContext(ctx).First(&user, userID).Error; errFind != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	session, errCreate := h.checkout.Create(ctx, &user, tier)
	if errCreate != nil {
		switch {
		case errors.Is(errCreate, billing.ErrCheckoutDisabled):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "billing is not available"})
		case errors.Is(errCreate, billing.ErrTierNotPurchasable):
			c.JSON(http.StatusBadRequest, gin.H{"error": "tier cannot be purchased"})
		default:
			log.WithError(errCreate).WithField("user_id", userID).Error("checkout: create session")
			c.JSON(http.StatusBadGateway, gin.H{"error": "create checkout session failed"})
		}
		return
	}
	c.JSON(http.StatusOK, session)
}
