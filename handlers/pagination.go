package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// ParseLimit reads ?limit=, falling back to def and never exceeding max.
func ParseLimit(c *gin.Context, def, max int) int {
	limit := def
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}
