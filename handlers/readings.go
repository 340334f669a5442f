package handlers

import (
	"context"
	"net/http"
	"time"

	"leakwatch-api/models"
	"leakwatch-api/services"

	"github.com/gin-gonic/gin"
)

type ReadingsHandler struct {
	ingest *services.IngestService
	query  *services.QueryService
	cache  *services.CacheService
}

func NewReadingsHandler(ingest *services.IngestService, query *services.QueryService, cache *services.CacheService) *ReadingsHandler {
	return &ReadingsHandler{ingest: ingest, query: query, cache: cache}
}

func (h *ReadingsHandler) Ingest(c *gin.Context) {
	var batch models.ReadingBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	res, err := h.ingest.Ingest(c.Request.Context(), batch)
	if err != nil {
		respondError(c, err)
		return
	}

	message := "Sensor data inserted successfully, no alerts"
	if len(res.Alerts) > 0 {
		message = "Sensor data and alerts processed successfully"
	}
	c.JSON(http.StatusCreated, gin.H{"message": message, "alerts_created": len(res.Alerts)})
}

func (h *ReadingsHandler) Latest(c *gin.Context) {
	ctx := c.Request.Context()
	key, cacheable := generationKey(ctx, h.cache, services.SnapshotCacheKey)

	var cached models.Snapshot
	if cacheable {
		if ok, err := h.cache.Get(ctx, key, &cached); err == nil && ok {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	snap, err := h.query.CurrentSnapshot(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	if cacheable {
		go h.cache.Set(context.Background(), key, snap, 5*time.Second)
	}
	c.JSON(http.StatusOK, snap)
}

func (h *ReadingsHandler) History(c *gin.Context) {
	rows, err := h.query.History(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *ReadingsHandler) Analytics(c *gin.Context) {
	ctx := c.Request.Context()
	key, cacheable := generationKey(ctx, h.cache, services.AnalyticsCacheKey)

	var cached []models.SensorStats
	if cacheable {
		if ok, err := h.cache.Get(ctx, key, &cached); err == nil && ok {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	stats, err := h.query.Analytics(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	if cacheable {
		go h.cache.Set(context.Background(), key, stats, 60*time.Second)
	}
	c.JSON(http.StatusOK, stats)
}
