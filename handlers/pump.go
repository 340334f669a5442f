package handlers

import (
	"net/http"

	"leakwatch-api/services"

	"github.com/gin-gonic/gin"
)

type PumpHandler struct {
	pump *services.PumpService
}

func NewPumpHandler(pump *services.PumpService) *PumpHandler {
	return &PumpHandler{pump: pump}
}

type PumpStatusRequest struct {
	Status string `json:"status"`
}

func (h *PumpHandler) SetStatus(c *gin.Context) {
	var req PumpStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status value. Must be ON or OFF."})
		return
	}

	if _, err := h.pump.SetStatus(c.Request.Context(), req.Status); err != nil {
		if services.IsExternal(err) {
			c.JSON(http.StatusBadGateway, gin.H{
				"error":           "Pump status recorded but the relay did not respond",
				"status_recorded": true,
			})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Pump status updated successfully"})
}

// RecordRelayStatus stores a status reported by the relay itself. Responses
// are plain text.
func (h *PumpHandler) RecordRelayStatus(c *gin.Context) {
	var req PumpStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "Invalid status value.")
		return
	}

	if _, err := h.pump.Record(c.Request.Context(), req.Status); err != nil {
		if services.IsValidation(err) {
			c.String(http.StatusBadRequest, "Invalid status value.")
			return
		}
		c.String(http.StatusInternalServerError, "Error updating relay status.")
		return
	}
	c.String(http.StatusOK, "Relay status updated successfully.")
}

func (h *PumpHandler) Status(c *gin.Context) {
	status, err := h.pump.CurrentStatus(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
