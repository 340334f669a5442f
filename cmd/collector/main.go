package main

import (
	"context"
	"encoding/json"
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

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	msgsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leakwatch_collector_messages_received_total",
		Help: "Total number of MQTT reading batches received by the collector.",
	})
	msgsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leakwatch_collector_messages_stored_total",
		Help: "Total number of batches whose readings were stored.",
	})
	msgsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leakwatch_collector_messages_failed_total",
		Help: "Total number of batches rejected or failed to store.",
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

	if cfg.MQTT.URL == "" {
		slog.Error("MQTT_URL is required for the collector")
		os.Exit(1)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		slog.Error("db open failed", "error", err)
		os.Exit(1)
	}
	defer database.Close(db)

	if err := database.Migrate(ctx, db); err != nil {
		slog.Error("db migrate failed", "error", err)
		os.Exit(1)
	}

	cache := services.NewCacheServiceFromClient(nil)
	if cfg.Redis.Enabled() {
		if cache, err = services.NewCacheService(ctx, cfg.Redis); err != nil {
			slog.Warn("redis unavailable, live events disabled", "error", err)
		}
	}
	defer cache.Close()

	ingest := services.NewIngestService(db,
		services.WithCriticalFlowDifference(cfg.Alerting.CriticalFlowDifference),
		services.WithAtomicIngest(cfg.Alerting.AtomicIngest),
		services.WithPublisher(cache),
	)

	go serveHTTP(cfg.Server.MetricsAddr)

	client, err := services.ConnectMQTT(cfg.MQTT.URL, cfg.MQTT.ClientID, func(c mqtt.Client) {
		token := c.Subscribe(cfg.MQTT.Topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			processMessage(ctx, ingest, msg.Payload())
		})
		token.Wait()
		if token.Error() != nil {
			slog.Error("mqtt subscribe error", "topic", cfg.MQTT.Topic, "error", token.Error())
			return
		}
		slog.Info("collector subscribed", "topic", cfg.MQTT.Topic)
	})
	if err != nil {
		slog.Error("mqtt connection failed", "broker", cfg.MQTT.URL, "error", err)
		os.Exit(1)
	}

	slog.Info("collector running", "mqtt", cfg.MQTT.URL, "db_driver", cfg.Database.Driver, "metrics", cfg.Server.MetricsAddr)

	<-ctx.Done()
	slog.Info("collector shutting down")
	client.Disconnect(250)
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

// processMessage decodes one batch and runs it through the same ingest path
// as the HTTP API. It reports whether the readings were stored.
func processMessage(ctx context.Context, ingest *services.IngestService, payloadRaw []byte) bool {
	msgsReceived.Inc()

	var batch models.ReadingBatch
	if err := json.Unmarshal(payloadRaw, &batch); err != nil {
		msgsFailed.Inc()
		slog.Warn("invalid payload", "error", err)
		return false
	}

	res, err := ingest.Ingest(ctx, batch)
	switch {
	case errors.Is(err, services.ErrPartialFailure):
		msgsStored.Inc()
		slog.Error("batch stored without alerts", "ts", res.Timestamp, "error", err)
		return true
	case err != nil:
		msgsFailed.Inc()
		slog.Warn("batch rejected", "error", err)
		return false
	}

	msgsStored.Inc()
	slog.Debug("batch stored", "ts", res.Timestamp, "alerts", len(res.Alerts))
	return true
}
