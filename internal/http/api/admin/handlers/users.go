package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	dbutil "github.com/speechhelp/portal/internal/db"
	"github.com/speechhelp/portal/internal/entitlement"
	"github.com/speechhelp/portal/internal/http/api/apiutil"
	"github.com/speechhelp/portal/internal/models"
	"github.com/speechhelp/portal/internal/store"
	"gorm.io/gorm"
)

// UserHandler manages end-user accounts and their subscriptions.
type UserHandler struct {
	db           *gorm.DB
	subs         *store.SubscriptionStore
	entitlements *entitlement.Service
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(db *gorm.DB, subs *store.SubscriptionStore, entitlements *entitlement.Service) *UserHandler {
	return &UserHandler{db: db, subs: subs, entitlements: entitlements}
}

// List returns users with optional filters and pagination.
func (h *UserHandler) List(c *gin.Context) {
	var (
		usernameQ = strings.TrimSpace(c.Query("username"))
		emailQ    = strings.TrimSpace(c.Query("email"))
		searchQ   = strings.TrimSpace(c.Query("search"))
		tierQ     = strings.TrimSpace(c.Query("tier"))
	)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	q := h.db.WithContext(c.Request.Context()).Model(&models.User{})
	for _, filter := range []struct {
		needle  string
		columns []string
	}{
		{usernameQ, []string{"username"}},
		{emailQ, []string{"email"}},
		{searchQ, []string{"username", "email"}},
	} {
		if filter.needle == "" {
			continue
		}
		expr, args := dbutil.ContainsFold(h.db, filter.needle, filter.columns...)
		q = q.Where(expr, args...)
	}
	if tierQ != "" {
		tier, errTier := entitlement.ParseTier(tierQ)
		if errTier != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tier"})
			return
		}
		q = q.Where("id IN (?)", h.db.Model(&models.Subscription{}).Select("user_id").Where("tier = ?", string(tier)))
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count users failed"})
		return
	}
	var rows []models.User
	if errFind := q.Preload("Subscription").
		Order("created_at DESC, id DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list users failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatUser(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"users": out, "total": total, "page": page, "page_size": pageSize})
}

// Get returns a user by ID.
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).Preload("Subscription").First(&user, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatUser(&user))
}

// Disable deactivates a user account.
func (h *UserHandler) Disable(c *gin.Context) {
	h.setDisabled(c, true)
}

// Enable reactivates a user account.
func (h *UserHandler) Enable(c *gin.Context) {
	h.setDisabled(c, false)
}

func (h *UserHandler) setDisabled(c *gin.Context, disabled bool) {
	id, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"disabled": disabled, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GetSubscription returns the stored subscription and its evaluated entitlements.
func (h *UserHandler) GetSubscription(c *gin.Context) {
	id, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	row, errGet := h.subs.Get(ctx, id)
	if errGet != nil {
		if errors.Is(errGet, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	table := h.entitlements.Table()
	snapshot := table.Snapshot(store.ToEntitlement(row), h.entitlements.Now())
	c.JSON(http.StatusOK, gin.H{
		"subscription": formatSubscription(row),
		"entitlements": snapshot,
	})
}

// updateSubscriptionRequest defines an administrative subscription override.
type updateSubscriptionRequest struct {
	Tier        *string    `json:"tier"`
	Status      *string    `json:"status"`
	ClearStatus bool       `json:"clear_status"`
	EndDate     *time.Time `json:"end_date"`
	ClearEnd    bool       `json:"clear_end_date"`
	ResetUsage  bool       `json:"reset_usage"`
}

// UpdateSubscription overrides tier, status, end date or usage, then drops the cached
// entitlements of the user.
func (h *UserHandler) UpdateSubscription(c *gin.Context) {
	id, ok := apiutil.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var body updateSubscriptionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	change := store.SubscriptionOverride{
		Status:      body.Status,
		ClearStatus: body.ClearStatus,
		EndDate:     body.EndDate,
		ClearEnd:    body.ClearEnd,
		ResetUsage:  body.ResetUsage,
	}
	if body.Tier != nil {
		tier, errTier := entitlement.ParseTier(*body.Tier)
		if errTier != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tier"})
			return
		}
		change.Tier = &tier
	}

	ctx := c.Request.Context()
	row, errOverride := h.subs.Override(ctx, id, change)
	if errOverride != nil {
		switch {
		case errors.Is(errOverride, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		case errors.Is(errOverride, entitlement.ErrUnknownTier):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tier"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		}
		return
	}
	h.entitlements.Invalidate(ctx, strconv.FormatUint(id, 10))

	adminUsername, _ := c.Get(ContextAdminUsername)
	log.WithFields(log.Fields{
		"admin":   adminUsername,
		"user_id": id,
		"tier":    row.Tier,
	}).Info("subscription overridden")

	c.JSON(http.StatusOK, gin.H{"subscription": formatSubscription(row)})
}

func formatUser(user *models.User) gin.H {
	out := gin.H{
		"id":            user.ID,
		"username":      user.Username,
		"name":          user.Name,
		"email":         user.Email,
		"disabled":      user.Disabled,
		"last_login_at": user.LastLoginAt,
		"created_at":    user.CreatedAt,
		"updated_at":    user.UpdatedAt,
	}
	if user.Subscription != nil {
		out["tier"] = user.Subscription.Tier
		out["status"] = user.Subscription.Status
	}
	return out
}

func formatSubscription(row *models.Subscription) gin.H {
	return gin.H{
		"user_id":                row.UserID,
		"tier":                   row.Tier,
		"status":                 row.Status,
		"start_date":             row.StartDate,
		"end_date":               row.EndDate,
		"speeches_used":          row.SpeechesUsed,
		"storage_used_mb":        row.StorageUsedMB,
		"team_members_added":     row.TeamMembersAdded,
		"stripe_customer_id":     row.StripeCustomerID,
		"stripe_subscription_id": row.StripeSubscriptionID,
		"cancel_at_period_end":   row.CancelAtPeriodEnd,
		"updated_at":             row.UpdatedAt,
	}
}
