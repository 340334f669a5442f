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
	"leakwatch-api/handlers"
	"leakwatch-api/services"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	config.SetupLogging(cfg.LogLevel)

	// Connect to database
	db, err := database.Open(cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer database.Close(db)

	if err := database.Migrate(ctx, db); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	// Redis is optional; without it caching and the live feed are disabled.
	cache := services.NewCacheServiceFromClient(nil)
	if cfg.Redis.Enabled() {
		cache, err = services.NewCacheService(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, continuing without cache", "error", err)
		} else {
			slog.Info("redis connected", "host", cfg.Redis.Host, "port", cfg.Redis.Port)
		}
	}
	defer cache.Close()

	relay, mqttClient, err := buildRelay(cfg.Relay, cfg.MQTT)
	if err != nil {
		slog.Error("failed to set up relay", "error", err)
		os.Exit(1)
	}
	if mqttClient != nil {
		defer mqttClient.Disconnect(250)
	}

	predictor, err := services.NewExecPredictor(cfg.Predictor.Command, time.Duration(cfg.Predictor.TimeoutSec)*time.Second)
	if err != nil {
		slog.Error("invalid predictor command", "error", err)
		os.Exit(1)
	}

	deps := handlers.Deps{
		DB:    db,
		Cache: cache,
		Ingest: services.NewIngestService(db,
			services.WithCriticalFlowDifference(cfg.Alerting.CriticalFlowDifference),
			services.WithAtomicIngest(cfg.Alerting.AtomicIngest),
			services.WithPublisher(cache),
		),
		Query:     services.NewQueryService(db),
		Alerts:    services.NewAlertService(db),
		Pump:      services.NewPumpService(db, relay, cache),
		Trends:    services.NewTrendService(db),
		Predictor: predictor,
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(cfg, deps)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("starting server", "addr", server.Addr, "db_driver", cfg.Database.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}

// buildRelay picks the pump relay transport: HTTP when RELAY_URL is set,
// otherwise MQTT when both a broker and RELAY_MQTT_TOPIC are set, otherwise a
// no-op relay that only records commands.
func buildRelay(relayCfg config.RelayConfig, mqttCfg config.MQTTConfig) (services.RelayClient, mqtt.Client, error) {
	switch {
	case relayCfg.URL != "":
		slog.Info("pump relay over http", "url", relayCfg.URL)
		return services.NewHTTPRelay(relayCfg.URL, nil), nil, nil
	case relayCfg.MQTTTopic != "" && mqttCfg.URL != "":
		client, err := services.ConnectMQTT(mqttCfg.URL, mqttCfg.ClientID+"-relay", nil)
		if err != nil {
			return nil, nil, fmt.Errorf("connect relay broker: %w", err)
		}
		slog.Info("pump relay over mqtt", "broker", mqttCfg.URL, "topic", relayCfg.MQTTTopic)
		return services.NewMQTTRelay(client, relayCfg.MQTTTopic), client, nil
	default:
		slog.Warn("no pump relay configured, commands are recorded only")
		return services.NoopRelay{}, nil, nil
	}
}
