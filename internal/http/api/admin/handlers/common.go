package handlers

import "github.com/gin-gonic/gin"

// Context keys set by the admin auth middleware.
const (
	ContextAdminID          = "adminID"
	ContextAdminUsername    = "adminUsername"
	ContextAdminPermissions = "adminPermissions"
	ContextAdminSuperAdmin  = "adminIsSuperAdmin"
)

// adminIDFromContext returns the authenticated admin ID.
func adminIDFromContext(c *gin.Context) (uint64, bool) {
	raw, ok := c.Get(ContextAdminID)
	if !ok {
		return 0, false
	}
	id, ok := raw.(uint64)
	return id, ok && id != 0
}
