package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/speechhelp/portal/internal/entitlement"
	"github.com/speechhelp/portal/internal/http/api/apiutil"
)

// PlanHandler exposes the rule table in use.
type PlanHandler struct {
	table *entitlement.Table
}

// NewPlanHandler constructs a plan handler.
func NewPlanHandler(table *entitlement.Table) *PlanHandler {
	if table == nil {
		table = entitlement.DefaultTable()
	}
	return &PlanHandler{table: table}
}

// List returns every plan. Unlimited ceilings are rendered as null.
func (h *PlanHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": apiutil.FormatPlans(h.table)})
}
