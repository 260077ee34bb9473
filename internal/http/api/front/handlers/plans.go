package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/speechhelp/portal/internal/entitlement"
	"github.com/speechhelp/portal/internal/http/api/apiutil"
)

// PlanFrontHandler serves plan-related front endpoints.
type PlanFrontHandler struct {
	table *entitlement.Table
}

// NewPlanFrontHandler constructs a PlanFrontHandler.
func NewPlanFrontHandler(table *entitlement.Table) *PlanFrontHandler {
	if table == nil {
		table = entitlement.DefaultTable()
	}
	return &PlanFrontHandler{table: table}
}

// List returns every plan with its limits and features.
func (h *PlanFrontHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": apiutil.FormatPlans(h.table)})
}
