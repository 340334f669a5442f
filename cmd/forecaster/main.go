package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leakwatch-api/config"
	"leakwatch-api/database"
	"leakwatch-api/models"
	"leakwatch-api/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	kindLeakage  = "leakage"
	kindFlowRate = "flow_rate"
)

// Forecast is the payload of a forecast live event.
type Forecast struct {
	Kind        string             `json:"kind"`
	GeneratedAt time.Time          `json:"generated_at"`
	Report      models.TrendReport `json:"report"`
}

// sink is where each cycle's reports go; *services.CacheService in production.
type sink interface {
	Generation(ctx context.Context) (int64, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Publish(ctx context.Context, channel string, message interface{}) error
}

var (
	forecastsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leakwatch_forecaster_forecasts_generated_total",
		Help: "Total number of trend reports computed.",
	})
	forecastsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leakwatch_forecaster_forecasts_failed_total",
		Help: "Total number of trend computations that failed.",
	})
	forecastsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leakwatch_forecaster_forecasts_published_total",
		Help: "Total number of trend reports published to Redis.",
	})
	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "leakwatch_forecaster_cycle_duration_seconds",
		Help:    "Duration of a full forecast cycle.",
		Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0},
	})
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	config.SetupLogging(cfg.LogLevel)

	db, err := database.Open(cfg.Database)
	if err != nil {
		slog.Error("db open failed", "error", err)
		os.Exit(1)
	}
	defer database.Close(db)
	slog.Info("db connected", "driver", cfg.Database.Driver)

	// Redis is required: the forecaster has no other output.
	if !cfg.Redis.Enabled() {
		slog.Error("REDIS_HOST is required for the forecaster")
		os.Exit(1)
	}
	cache, err := services.NewCacheService(ctx, cfg.Redis)
	if err != nil {
		slog.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	defer cache.Close()

	go serveHTTP(cfg.Server.MetricsAddr)

	trends := services.NewTrendService(db)
	interval := time.Duration(cfg.Forecast.IntervalSec) * time.Second

	slog.Info("forecaster running", "interval", interval)

	// Run first cycle immediately
	runCycle(ctx, trends, cache, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runCycle(ctx, trends, cache, interval)
		case <-ctx.Done():
			slog.Info("forecaster shutting down")
			return
		}
	}
}

// runCycle recomputes both trend reports, caches each for two intervals under
// the current cache generation and publishes it on the live channel. It
// returns how many reports were produced.
func runCycle(ctx context.Context, trends *services.TrendService, out sink, interval time.Duration) int {
	start := time.Now()
	defer func() {
		cycleDuration.Observe(time.Since(start).Seconds())
	}()

	now := time.Now().UTC().Truncate(time.Second)
	jobs := []struct {
		kind     string
		cacheKey string
		compute  func(context.Context) (models.TrendReport, error)
	}{
		{kindLeakage, services.LeakageTrendCacheKey, trends.LeakageTrend},
		{kindFlowRate, services.FlowTrendCacheKey, trends.FlowRateTrend},
	}

	// The generation is read before computing so a batch stored mid-cycle
	// retires these reports instead of being masked by them.
	gen, err := out.Generation(ctx)
	cacheable := err == nil
	if err != nil {
		slog.Warn("cache generation unavailable, reports will not be cached", "error", err)
	}

	produced := 0
	for _, job := range jobs {
		report, err := job.compute(ctx)
		if err != nil {
			forecastsFailed.Inc()
			slog.Error("trend computation failed", "kind", job.kind, "error", err)
			continue
		}
		forecastsGenerated.Inc()
		produced++

		if cacheable {
			if err := out.Set(ctx, services.VersionedKey(job.cacheKey, gen), report, 2*interval); err != nil {
				slog.Warn("cache forecast failed", "kind", job.kind, "error", err)
			}
		}

		event := services.LiveEvent{
			Type: services.EventForecast,
			Data: Forecast{Kind: job.kind, GeneratedAt: now, Report: report},
		}
		if err := out.Publish(ctx, services.LiveChannel, event); err != nil {
			slog.Warn("publish forecast failed", "kind", job.kind, "error", err)
			continue
		}
		forecastsPublished.Inc()
	}

	slog.Info("cycle complete", "forecasts", produced, "duration", time.Since(start))
	return produced
}

func serveHTTP(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("metrics server listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server failed", "error", err)
		os.Exit(1)
	}
}
