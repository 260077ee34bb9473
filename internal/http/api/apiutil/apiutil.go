// Package apiutil holds request helpers shared by the admin and front APIs.
package apiutil

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/speechhelp/portal/internal/entitlement"
	"github.com/speechhelp/portal/internal/metrics"
	"github.com/speechhelp/portal/internal/ratelimit"
)

// ParseIDParam parses a numeric path parameter and answers 400 when invalid.
func ParseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// BearerToken extracts the token of an "Authorization: Bearer" header. It answers 401
// and returns false when the header is missing or malformed.
func BearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
		return "", false
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
		return "", false
	}
	return token, true
}

// RejectRateLimited counts one attempt and answers 429 when the limiter refuses it.
// Limiter errors fail open.
func RejectRateLimited(c *gin.Context, limiter *ratelimit.Manager, scope ratelimit.Scope, subject string) bool {
	if limiter == nil {
		return false
	}
	res, errAllow := limiter.Allow(c.Request.Context(), scope, subject)
	if errAllow != nil || res.Allowed {
		return false
	}
	metrics.RateLimitRejectionsTotal.WithLabelValues(scope.String()).Inc()
	retryAfter := int(res.RetryAfter.Seconds())
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts", "retry_after": retryAfter})
	return true
}

// FormatPlans renders the rule table for API responses.
func FormatPlans(table *entitlement.Table) []gin.H {
	plans := table.Plans()
	out := make([]gin.H, 0, len(plans))
	for _, plan := range plans {
		limits := make(gin.H, len(entitlement.LimitKinds))
		for _, kind := range entitlement.LimitKinds {
			limit := plan.Limits.Of(kind)
			if limit.IsUnlimited() {
				limits[kind.String()] = nil
				continue
			}
			limits[kind.String()] = int64(limit)
		}
		features := make(gin.H, len(entitlement.FeatureKinds))
		for _, kind := range entitlement.FeatureKinds {
			features[kind.String()] = plan.Features.Has(kind)
		}
		out = append(out, gin.H{
			"tier":           plan.Tier,
			"name":           plan.DisplayName,
			"limits":         limits,
			"features":       features,
			"export_formats": plan.Features.ExportFormats,
		})
	}
	return out
}
