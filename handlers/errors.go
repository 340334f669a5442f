package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"leakwatch-api/services"

	"github.com/gin-gonic/gin"
)

// respondError maps the service error taxonomy onto HTTP.
func respondError(c *gin.Context, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrPartialFailure):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             services.ErrPartialFailure.Error(),
			"readings_recorded": true,
		})
	case services.IsExternal(err):
		slog.Error("external dependency failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
	}
}
