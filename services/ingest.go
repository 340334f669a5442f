package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"leakwatch-api/models"

	"gorm.io/gorm"
)

// DefaultCriticalFlowDifference is the flow differential (L/s) above which a
// leak alert is Critical instead of Warning.
const DefaultCriticalFlowDifference = 1.0

// Publisher receives cache invalidations and live events after a batch is stored.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Invalidate(ctx context.Context) error
}

type IngestService struct {
	db           *gorm.DB
	publisher    Publisher
	criticalDiff float64
	atomic       bool
	now          func() time.Time
}

type IngestOption func(*IngestService)

func WithCriticalFlowDifference(diff float64) IngestOption {
	return func(s *IngestService) { s.criticalDiff = diff }
}

// WithAtomicIngest stores readings and alerts in one transaction, so an alert
// failure also discards the readings.
func WithAtomicIngest(atomic bool) IngestOption {
	return func(s *IngestService) { s.atomic = atomic }
}

func WithPublisher(p Publisher) IngestOption {
	return func(s *IngestService) { s.publisher = p }
}

func WithClock(now func() time.Time) IngestOption {
	return func(s *IngestService) { s.now = now }
}

func NewIngestService(db *gorm.DB, opts ...IngestOption) *IngestService {
	s := &IngestService{
		db:           db,
		criticalDiff: DefaultCriticalFlowDifference,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type IngestResult struct {
	InsertedReadings int
	Alerts           []models.Alert
	Timestamp        time.Time
}

type batchValues struct {
	flow1, flow2, leak1, leak2 float64
}

func validateBatch(b models.ReadingBatch) (batchValues, error) {
	fields := []struct {
		name    string
		value   *float64
		leakage bool
	}{
		{"flow_rate_1", b.FlowRate1, false},
		{"flow_rate_2", b.FlowRate2, false},
		{"leakage_1", b.Leakage1, true},
		{"leakage_2", b.Leakage2, true},
	}
	for _, f := range fields {
		if f.value == nil {
			return batchValues{}, invalid(f.name, "is required")
		}
		v := *f.value
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return batchValues{}, invalid(f.name, "must be a finite number")
		}
		if f.leakage && v != 0 && v != 1 {
			return batchValues{}, invalid(f.name, "must be 0 or 1")
		}
		if !f.leakage && v < 0 {
			return batchValues{}, invalid(f.name, "must not be negative")
		}
	}
	return batchValues{flow1: *b.FlowRate1, flow2: *b.FlowRate2, leak1: *b.Leakage1, leak2: *b.Leakage2}, nil
}

// FlowDifference is the absolute differential between the two flow sensors.
func FlowDifference(flow1, flow2 float64) float64 {
	return math.Abs(flow1 - flow2)
}

func LeakDescription(location string, diff float64) string {
	return fmt.Sprintf("Leakage detected at %s! Flow rate difference: %s L/s.", location, strconv.FormatFloat(diff, 'f', -1, 64))
}

// EvaluateLeakRule returns one unresolved alert per location whose leak flag
// is raised. Both locations are evaluated independently.
func EvaluateLeakRule(leak1, leak2, diff, criticalDiff float64, ts time.Time) []models.Alert {
	severity := models.SeverityWarning
	if diff > criticalDiff {
		severity = models.SeverityCritical
	}

	var alerts []models.Alert
	for _, site := range []struct {
		flag     float64
		location string
	}{
		{leak1, models.LocationRuiru},
		{leak2, models.LocationJuja},
	} {
		if site.flag != 1 {
			continue
		}
		alerts = append(alerts, models.Alert{
			Description: LeakDescription(site.location, diff),
			Severity:    severity,
			Location:    site.location,
			Resolved:    false,
			Timestamp:   ts,
		})
	}
	return alerts
}

// Ingest stores the four readings of a batch under one timestamp, then applies
// the leak rule and stores any resulting alerts in a single insert. When the
// alert insert fails after the readings were stored, the result is returned
// together with ErrPartialFailure.
func (s *IngestService) Ingest(ctx context.Context, batch models.ReadingBatch) (IngestResult, error) {
	vals, err := validateBatch(batch)
	if err != nil {
		ingestFailures.WithLabelValues("validation").Inc()
		return IngestResult{}, err
	}

	ts := s.now().UTC().Truncate(time.Second)
	readings := []models.SensorReading{
		{SensorID: models.SensorLeakage1, Value: vals.leak1, Timestamp: ts},
		{SensorID: models.SensorLeakage2, Value: vals.leak2, Timestamp: ts},
		{SensorID: models.SensorFlow1, Value: vals.flow1, Timestamp: ts},
		{SensorID: models.SensorFlow2, Value: vals.flow2, Timestamp: ts},
	}

	if s.atomic {
		return s.ingestAtomic(ctx, readings, vals, ts)
	}

	if err := s.db.WithContext(ctx).Create(&readings).Error; err != nil {
		ingestFailures.WithLabelValues("storage").Inc()
		slog.Error("insert sensor readings failed", "error", err)
		return IngestResult{}, storageErr("insert sensor readings", err)
	}
	batchesIngested.Inc()
	result := IngestResult{InsertedReadings: len(readings), Timestamp: ts}

	diff := FlowDifference(vals.flow1, vals.flow2)
	alerts := EvaluateLeakRule(vals.leak1, vals.leak2, diff, s.criticalDiff, ts)
	if len(alerts) > 0 {
		if err := s.db.WithContext(ctx).Create(&alerts).Error; err != nil {
			ingestFailures.WithLabelValues("partial").Inc()
			slog.Error("insert alerts failed after readings were stored", "ts", ts, "alerts", len(alerts), "error", err)
			s.notify(ctx, vals, nil, ts)
			return result, fmt.Errorf("%w: %v", ErrPartialFailure, err)
		}
	}
	result.Alerts = alerts

	s.recordAlerts(alerts)
	s.notify(ctx, vals, alerts, ts)
	slog.Debug("reading batch stored", "ts", ts, "flow_difference", diff, "alerts", len(alerts))
	return result, nil
}

func (s *IngestService) ingestAtomic(ctx context.Context, readings []models.SensorReading, vals batchValues, ts time.Time) (IngestResult, error) {
	diff := FlowDifference(vals.flow1, vals.flow2)
	var alerts []models.Alert

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&readings).Error; err != nil {
			return storageErr("insert sensor readings", err)
		}
		alerts = EvaluateLeakRule(vals.leak1, vals.leak2, diff, s.criticalDiff, ts)
		if len(alerts) == 0 {
			return nil
		}
		if err := tx.Create(&alerts).Error; err != nil {
			return storageErr("insert alerts", err)
		}
		return nil
	})
	if err != nil {
		ingestFailures.WithLabelValues("storage").Inc()
		slog.Error("atomic ingest failed", "ts", ts, "error", err)
		if IsStorage(err) {
			return IngestResult{}, err
		}
		return IngestResult{}, storageErr("ingest transaction", err)
	}

	batchesIngested.Inc()
	s.recordAlerts(alerts)
	s.notify(ctx, vals, alerts, ts)
	return IngestResult{InsertedReadings: len(readings), Alerts: alerts, Timestamp: ts}, nil
}

func (s *IngestService) recordAlerts(alerts []models.Alert) {
	for _, a := range alerts {
		alertsCreated.WithLabelValues(a.Location, string(a.Severity)).Inc()
	}
}

// notify is best effort; dashboards fall back to polling.
func (s *IngestService) notify(ctx context.Context, vals batchValues, alerts []models.Alert, ts time.Time) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Invalidate(ctx); err != nil {
		slog.Warn("cache invalidation failed", "error", err)
	}

	snapshot := models.Snapshot{FlowRate1: vals.flow1, FlowRate2: vals.flow2, Leakage1: vals.leak1, Leakage2: vals.leak2}
	if err := s.publisher.Publish(ctx, LiveChannel, LiveEvent{Type: EventReading, Data: snapshot}); err != nil {
		slog.Warn("live reading publish failed", "ts", ts, "error", err)
	}
	for _, a := range alerts {
		if err := s.publisher.Publish(ctx, LiveChannel, LiveEvent{Type: EventAlert, Data: a}); err != nil {
			slog.Warn("live alert publish failed", "alert_id", a.AlertID, "error", err)
		}
	}
}
