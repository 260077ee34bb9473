package handlers

import (
	"github.com/gin-gonic/gin"
)

// Context keys set by the user auth middleware.
const (
	ContextUserID   = "userID"
	ContextUsername = "username"
)

// getUserID returns the authenticated user ID or 0.
func getUserID(c *gin.Context) uint64 {
	raw, ok := c.Get(ContextUserID)
	if !ok {
		return 0
	}
	id, _ := raw.(uint64)
	return id
}
