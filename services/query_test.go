package services

import (
	"context"
	"testing"
	"time"

	"leakwatch-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentSnapshotDefaultsToZero(t *testing.T) {
	db := openTestDB(t)
	snap, err := NewQueryService(db).CurrentSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Snapshot{}, snap)
}

func TestCurrentSnapshotReflectsLatestBatchOnly(t *testing.T) {
	db := openTestDB(t)
	ingest := NewIngestService(db, WithClock(stepClock(baseTime)))
	ctx := context.Background()

	_, err := ingest.Ingest(ctx, batch(10, 8, 1, 0))
	require.NoError(t, err)
	_, err = ingest.Ingest(ctx, batch(4, 4.5, 0, 1))
	require.NoError(t, err)

	snap, err := NewQueryService(db).CurrentSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Snapshot{FlowRate1: 4, FlowRate2: 4.5, Leakage1: 0, Leakage2: 1}, snap)
}

func TestCurrentSnapshotTieBreaksOnHighestReadingID(t *testing.T) {
	db := openTestDB(t)
	ingest := NewIngestService(db, WithClock(func() time.Time { return baseTime }))
	ctx := context.Background()

	_, err := ingest.Ingest(ctx, batch(1, 1, 0, 0))
	require.NoError(t, err)
	_, err = ingest.Ingest(ctx, batch(7, 6, 1, 1))
	require.NoError(t, err)

	snap, err := NewQueryService(db).CurrentSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Snapshot{FlowRate1: 7, FlowRate2: 6, Leakage1: 1, Leakage2: 1}, snap)
}

func TestUnresolvedAlertsCappedAndNewestFirst(t *testing.T) {
	db := openTestDB(t)
	ingest := NewIngestService(db, WithClock(stepClock(baseTime)))
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := ingest.Ingest(ctx, batch(float64(i), 0, 1, 0))
		require.NoError(t, err)
	}
	// The newest alert is resolved and must drop out of the feed.
	var newest models.Alert
	require.NoError(t, db.Order("alert_id DESC").Take(&newest).Error)
	require.NoError(t, NewAlertService(db).Resolve(ctx, newest.AlertID))

	q := NewQueryService(db)
	alerts, err := q.UnresolvedAlerts(ctx, DefaultAlertFeedLimit)
	require.NoError(t, err)
	require.Len(t, alerts, 10)

	for i, a := range alerts {
		assert.False(t, a.Resolved)
		assert.NotEqual(t, newest.AlertID, a.AlertID)
		if i > 0 {
			assert.False(t, a.Timestamp.After(alerts[i-1].Timestamp), "alerts must be sorted newest first")
		}
	}
	assert.Contains(t, alerts[0].Description, "10 L/s")

	capped, err := q.UnresolvedAlerts(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, capped, 10)

	few, err := q.UnresolvedAlerts(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, few, 3)
}

func TestHistoryJoinsSensorNamesAndPumpStatus(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	clock := stepClock(baseTime)
	ingest := NewIngestService(db, WithClock(clock))

	_, err := ingest.Ingest(ctx, batch(2, 1, 0, 0))
	require.NoError(t, err)

	// A pump command recorded in the same second as the second batch.
	second := baseTime.Add(time.Second)
	require.NoError(t, db.Create(&models.PumpCommand{Status: models.PumpOn, Timestamp: second}).Error)
	_, err = ingest.Ingest(ctx, batch(3, 1, 1, 0))
	require.NoError(t, err)

	rows, err := NewQueryService(db).History(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 8)

	for i, row := range rows {
		if i > 0 {
			assert.False(t, row.Timestamp.Before(rows[i-1].Timestamp), "history must be ascending")
		}
		if i < 4 {
			assert.Nil(t, row.PumpStatus)
			continue
		}
		require.NotNil(t, row.PumpStatus)
		assert.Equal(t, models.PumpOn, *row.PumpStatus)
	}

	names := []string{rows[0].SensorName, rows[1].SensorName, rows[2].SensorName, rows[3].SensorName}
	assert.Equal(t, []string{"Leakage Sensor 1", "Leakage Sensor 2", "Flow Sensor 1", "Flow Sensor 2"}, names)
	assert.Equal(t, 2.0, rows[2].Value)
}

func TestAnalyticsAggregatesPerSensorAndIsStable(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	ingest := NewIngestService(db, WithClock(stepClock(baseTime)))

	_, err := ingest.Ingest(ctx, batch(2, 4, 0, 0))
	require.NoError(t, err)
	_, err = ingest.Ingest(ctx, batch(6, 4, 1, 0))
	require.NoError(t, err)

	q := NewQueryService(db)
	first, err := q.Analytics(ctx)
	require.NoError(t, err)
	second, err := q.Analytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.Len(t, first, 4)
	assert.Equal(t, models.SensorStats{SensorID: models.SensorLeakage1, Average: 0.5, Max: 1, Min: 0}, first[0])
	assert.Equal(t, models.SensorStats{SensorID: models.SensorFlow1, Average: 4, Max: 6, Min: 2}, first[2])
	assert.Equal(t, models.SensorStats{SensorID: models.SensorFlow2, Average: 4, Max: 4, Min: 4}, first[3])
}

func TestAnalyticsEmpty(t *testing.T) {
	db := openTestDB(t)
	stats, err := NewQueryService(db).Analytics(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestCurrentPumpStatus(t *testing.T) {
	db := openTestDB(t)
	q := NewQueryService(db)
	ctx := context.Background()

	status, err := q.CurrentPumpStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PumpOff, status)

	require.NoError(t, db.Create(&models.PumpCommand{Status: models.PumpOn, Timestamp: baseTime}).Error)
	require.NoError(t, db.Create(&models.PumpCommand{Status: models.PumpOff, Timestamp: baseTime.Add(-time.Minute)}).Error)

	status, err = q.CurrentPumpStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PumpOn, status, "newest by timestamp wins, not newest by insertion")
}
