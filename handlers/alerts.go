package handlers

import (
	"net/http"

	"leakwatch-api/services"

	"github.com/gin-gonic/gin"
)

type AlertsHandler struct {
	alerts *services.AlertService
	query  *services.QueryService
	limit  int
}

func NewAlertsHandler(alerts *services.AlertService, query *services.QueryService, limit int) *AlertsHandler {
	if limit <= 0 || limit > services.DefaultAlertFeedLimit {
		limit = services.DefaultAlertFeedLimit
	}
	return &AlertsHandler{alerts: alerts, query: query, limit: limit}
}

type ResolveAlertRequest struct {
	AlertID *uint `json:"alert_id" binding:"required"`
}

func (h *AlertsHandler) Unresolved(c *gin.Context) {
	limit := ParseLimit(c, h.limit, services.DefaultAlertFeedLimit)

	alerts, err := h.query.UnresolvedAlerts(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (h *AlertsHandler) Resolve(c *gin.Context) {
	var req ResolveAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "alert_id is required"})
		return
	}

	if err := h.alerts.Resolve(c.Request.Context(), *req.AlertID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Alert resolved successfully"})
}
