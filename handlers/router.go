package handlers

import (
	"net/http"

	"leakwatch-api/config"
	"leakwatch-api/middleware"
	"leakwatch-api/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	DB        *gorm.DB
	Cache     *services.CacheService
	Ingest    *services.IngestService
	Query     *services.QueryService
	Alerts    *services.AlertService
	Pump      *services.PumpService
	Trends    *services.TrendService
	Predictor services.Predictor
}

func NewRouter(cfg *config.Config, d Deps) *gin.Engine {
	router := gin.Default()
	router.Use(middleware.SetupCORS(cfg.CORS))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "UP",
			"message": "Leak monitoring API is running",
			"cache":   d.Cache.Available(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	readings := NewReadingsHandler(d.Ingest, d.Query, d.Cache)
	alerts := NewAlertsHandler(d.Alerts, d.Query, cfg.Alerting.FeedLimit)
	pump := NewPumpHandler(d.Pump)
	prediction := NewPredictionHandler(d.Predictor, d.Trends, d.Cache)
	sensors := NewSensorsHandler(d.DB, d.Cache)

	api := router.Group("/api")
	{
		api.POST("/sensor-readings", readings.Ingest)
		api.GET("/sensor-readings", readings.Latest)
		api.GET("/sensor-historical", readings.History)
		api.GET("/analytics", readings.Analytics)
		api.GET("/analytics/leakage", prediction.LeakageTrend)
		api.GET("/analytics/flow-rate", prediction.FlowRateTrend)

		api.GET("/alerts", alerts.Unresolved)
		api.POST("/resolve-alert", alerts.Resolve)

		api.POST("/pump-status", pump.SetStatus)
		api.GET("/pump-status", pump.Status)
		api.POST("/relay-status", pump.RecordRelayStatus)

		api.GET("/predict-leak", prediction.PredictLeak)
		api.GET("/sensors", sensors.List)
		api.GET("/live", LiveWebSocket(d.Cache))
	}

	return router
}
