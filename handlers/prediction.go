package handlers

import (
	"context"
	"net/http"
	"time"

	"leakwatch-api/models"
	"leakwatch-api/services"

	"github.com/gin-gonic/gin"
)

type PredictionHandler struct {
	predictor services.Predictor
	trends    *services.TrendService
	cache     *services.CacheService
}

func NewPredictionHandler(predictor services.Predictor, trends *services.TrendService, cache *services.CacheService) *PredictionHandler {
	return &PredictionHandler{predictor: predictor, trends: trends, cache: cache}
}

// PredictLeak forwards the predictor's stdout verbatim.
func (h *PredictionHandler) PredictLeak(c *gin.Context) {
	out, err := h.predictor.PredictLeak(c.Request.Context())
	if err != nil {
		c.String(http.StatusBadGateway, "Error running prediction")
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(out))
}

func (h *PredictionHandler) LeakageTrend(c *gin.Context) {
	h.serveTrend(c, services.LeakageTrendCacheKey, h.trends.LeakageTrend)
}

func (h *PredictionHandler) FlowRateTrend(c *gin.Context) {
	h.serveTrend(c, services.FlowTrendCacheKey, h.trends.FlowRateTrend)
}

func (h *PredictionHandler) serveTrend(c *gin.Context, cacheKey string, compute func(context.Context) (models.TrendReport, error)) {
	ctx := c.Request.Context()
	key, cacheable := generationKey(ctx, h.cache, cacheKey)

	var cached models.TrendReport
	if cacheable {
		if ok, err := h.cache.Get(ctx, key, &cached); err == nil && ok {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	report, err := compute(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	if cacheable {
		go h.cache.Set(context.Background(), key, report, 30*time.Second)
	}
	c.JSON(http.StatusOK, report)
}
