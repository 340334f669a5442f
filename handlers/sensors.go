package handlers

import (
	"context"
	"net/http"
	"time"

	"leakwatch-api/models"
	"leakwatch-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type SensorsHandler struct {
	db    *gorm.DB
	cache *services.CacheService
}

func NewSensorsHandler(db *gorm.DB, cache *services.CacheService) *SensorsHandler {
	return &SensorsHandler{db: db, cache: cache}
}

func (h *SensorsHandler) List(c *gin.Context) {
	const cacheKey = "sensors:all"

	var cached []models.Sensor
	if ok, err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	var sensors []models.Sensor
	if err := h.db.WithContext(c.Request.Context()).Order("sensor_id").Find(&sensors).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}

	go h.cache.Set(context.Background(), cacheKey, sensors, 10*time.Minute)
	c.JSON(http.StatusOK, sensors)
}
