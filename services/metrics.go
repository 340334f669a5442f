package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leakwatch_batches_ingested_total",
		Help: "Total number of reading batches stored.",
	})
	ingestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leakwatch_ingest_failures_total",
		Help: "Total number of rejected or failed reading batches, by kind.",
	}, []string{"kind"})
	alertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leakwatch_alerts_created_total",
		Help: "Total number of leak alerts stored, by location and severity.",
	}, []string{"location", "severity"})
	alertsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leakwatch_alerts_resolved_total",
		Help: "Total number of alerts moved to resolved.",
	})
	pumpCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leakwatch_pump_commands_total",
		Help: "Total number of pump commands recorded, by status.",
	}, []string{"status"})
	relayFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leakwatch_relay_failures_total",
		Help: "Total number of pump commands the relay device did not acknowledge.",
	})
	trendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "leakwatch_trend_duration_seconds",
		Help:    "Duration of a trend report computation.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0},
	})
)
