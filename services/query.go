package services

import (
	"context"
	"errors"

	"leakwatch-api/models"

	"gorm.io/gorm"
)

// DefaultAlertFeedLimit caps the unresolved alert feed.
const DefaultAlertFeedLimit = 10

type QueryService struct {
	db *gorm.DB
}

func NewQueryService(db *gorm.DB) *QueryService {
	return &QueryService{db: db}
}

// CurrentSnapshot returns the newest reading per sensor. Readings sharing a
// timestamp resolve to the highest reading_id. Sensors without readings are 0.
func (s *QueryService) CurrentSnapshot(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot
	targets := map[uint]*float64{
		models.SensorLeakage1: &snap.Leakage1,
		models.SensorLeakage2: &snap.Leakage2,
		models.SensorFlow1:    &snap.FlowRate1,
		models.SensorFlow2:    &snap.FlowRate2,
	}

	for sensorID, dest := range targets {
		var reading models.SensorReading
		err := s.db.WithContext(ctx).
			Where("sensor_id = ?", sensorID).
			Order("timestamp DESC").
			Order("reading_id DESC").
			Take(&reading).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return models.Snapshot{}, storageErr("query latest reading", err)
		}
		*dest = reading.Value
	}
	return snap, nil
}

// UnresolvedAlerts returns at most limit open alerts, newest first.
func (s *QueryService) UnresolvedAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > DefaultAlertFeedLimit {
		limit = DefaultAlertFeedLimit
	}

	alerts := make([]models.Alert, 0, limit)
	err := s.db.WithContext(ctx).
		Where("resolved = ?", false).
		Order("timestamp DESC").
		Order("alert_id DESC").
		Limit(limit).
		Find(&alerts).Error
	if err != nil {
		return nil, storageErr("query unresolved alerts", err)
	}
	return alerts, nil
}

// History joins every reading to its sensor name and to the pump command
// recorded at exactly the same timestamp, if any.
func (s *QueryService) History(ctx context.Context) ([]models.HistoryRow, error) {
	rows := make([]models.HistoryRow, 0)
	err := s.db.WithContext(ctx).
		Table("sensorreadings AS sr").
		Select("sr.timestamp AS timestamp, s.sensor_name AS sensor_name, sr.value AS value, pr.status AS pump_status").
		Joins("JOIN sensors s ON sr.sensor_id = s.sensor_id").
		Joins("LEFT JOIN pumprelaystatus pr ON sr.timestamp = pr.timestamp").
		Order("sr.timestamp ASC").
		Order("sr.reading_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr("query history", err)
	}
	return rows, nil
}

// Analytics aggregates the full reading history per sensor.
func (s *QueryService) Analytics(ctx context.Context) ([]models.SensorStats, error) {
	stats := make([]models.SensorStats, 0, len(models.DefaultSensors))
	err := s.db.WithContext(ctx).
		Model(&models.SensorReading{}).
		Select("sensor_id, AVG(value) AS average, MAX(value) AS max, MIN(value) AS min").
		Group("sensor_id").
		Order("sensor_id").
		Scan(&stats).Error
	if err != nil {
		return nil, storageErr("query analytics", err)
	}
	return stats, nil
}

// CurrentPumpStatus is the status of the newest pump command, OFF when none exists.
func (s *QueryService) CurrentPumpStatus(ctx context.Context) (string, error) {
	var cmd models.PumpCommand
	err := s.db.WithContext(ctx).
		Order("timestamp DESC").
		Order("id DESC").
		Take(&cmd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.PumpOff, nil
	}
	if err != nil {
		return "", storageErr("query pump status", err)
	}
	return cmd.Status, nil
}
