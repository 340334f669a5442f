package services

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"leakwatch-api/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gorm.io/gorm"
)

const (
	trendTimeLayout = "2006-01-02 15:04:05"

	// Forecast thresholds for the leakage trend.
	leakLikelyThreshold   = 0.25
	leakDetectedThreshold = 0.5
	// Per-sample flow differential (L/s) reported as an ongoing leak.
	flowLeakThreshold = 2.0
)

type TrendService struct {
	db *gorm.DB
}

func NewTrendService(db *gorm.DB) *TrendService {
	return &TrendService{db: db}
}

type trendSample struct {
	SensorName string    `gorm:"column:sensor_name"`
	Timestamp  time.Time `gorm:"column:timestamp"`
	Value      float64   `gorm:"column:value"`
}

func (s *TrendService) samples(ctx context.Context, sensorType string) ([]trendSample, error) {
	var rows []trendSample
	err := s.db.WithContext(ctx).
		Table("sensorreadings AS sr").
		Select("s.sensor_name AS sensor_name, sr.timestamp AS timestamp, sr.value AS value").
		Joins("JOIN sensors s ON sr.sensor_id = s.sensor_id").
		Where("s.sensor_type = ?", sensorType).
		Order("sr.timestamp ASC").
		Order("sr.reading_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr("query "+sensorType+" samples", err)
	}
	return rows, nil
}

// alignSeries buckets samples per second and returns one aligned series per
// sensor name; a sensor with no sample in a bucket reads 0.
func alignSeries(rows []trendSample, names [2]string) ([]string, [2][]float64) {
	seen := make(map[string]struct{})
	for _, r := range rows {
		seen[r.Timestamp.UTC().Format(trendTimeLayout)] = struct{}{}
	}
	timestamps := make([]string, 0, len(seen))
	for ts := range seen {
		timestamps = append(timestamps, ts)
	}
	sort.Strings(timestamps)

	index := make(map[string]int, len(timestamps))
	for i, ts := range timestamps {
		index[ts] = i
	}

	var series [2][]float64
	series[0] = make([]float64, len(timestamps))
	series[1] = make([]float64, len(timestamps))
	for _, r := range rows {
		i := index[r.Timestamp.UTC().Format(trendTimeLayout)]
		switch r.SensorName {
		case names[0]:
			series[0][i] = r.Value
		case names[1]:
			series[1][i] = r.Value
		}
	}
	return timestamps, series
}

// PredictNextValue fits a least-squares line over the sample index and
// extrapolates one step. Fewer than two samples return the last value, or 0.
func PredictNextValue(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(values) < 2 {
		return values[len(values)-1]
	}
	xs := make([]float64, len(values))
	floats.Span(xs, 0, float64(len(values)-1))
	alpha, beta := stat.LinearRegression(xs, values, nil, false)
	return round2(alpha + beta*float64(len(values)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return round2(floats.Sum(values) / float64(len(values)))
}

func maxOrZero(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Max(values)
}

func leakageOutlook(prediction float64, sensor int) string {
	switch {
	case prediction < leakLikelyThreshold:
		return "No Leakage"
	case prediction < leakDetectedThreshold:
		return "Leakage likely soon"
	default:
		return "Leakage detected at Sensor " + strconv.Itoa(sensor)
	}
}

// LeakageTrend reports both leakage sensors with the last leak event and a
// next-sample forecast.
func (s *TrendService) LeakageTrend(ctx context.Context) (models.TrendReport, error) {
	start := time.Now()
	defer func() { trendDuration.Observe(time.Since(start).Seconds()) }()

	rows, err := s.samples(ctx, models.SensorTypeLeakage)
	if err != nil {
		return models.TrendReport{}, err
	}
	timestamps, series := alignSeries(rows, [2]string{"Leakage Sensor 1", "Leakage Sensor 2"})
	leak1, leak2 := series[0], series[1]

	last := &models.LastLeakage{}
	for i := len(timestamps) - 1; i >= 0; i-- {
		if leak1[i] > 0 || leak2[i] > 0 {
			ts := timestamps[i]
			last = &models.LastLeakage{Timestamp: &ts, Leakage1: leak1[i], Leakage2: leak2[i]}
			break
		}
	}

	predictions := map[string]float64{
		"leakage1": PredictNextValue(leak1),
		"leakage2": PredictNextValue(leak2),
	}

	return models.TrendReport{
		Timestamps:  timestamps,
		Values1:     leak1,
		Values2:     leak2,
		LastLeakage: last,
		Statistics: map[string]float64{
			"total_events":     float64(len(rows)),
			"average_leakage1": average(leak1),
			"average_leakage2": average(leak2),
			"max_leakage1":     maxOrZero(leak1),
			"max_leakage2":     maxOrZero(leak2),
		},
		Predictions: predictions,
		Alerts: map[string]string{
			"sensor1": leakageOutlook(predictions["leakage1"], 1),
			"sensor2": leakageOutlook(predictions["leakage2"], 2),
		},
	}, nil
}

// FlowRateTrend reports both flow sensors, their per-sample differential and
// a next-sample forecast.
func (s *TrendService) FlowRateTrend(ctx context.Context) (models.TrendReport, error) {
	start := time.Now()
	defer func() { trendDuration.Observe(time.Since(start).Seconds()) }()

	rows, err := s.samples(ctx, models.SensorTypeFlowRate)
	if err != nil {
		return models.TrendReport{}, err
	}
	if len(rows) == 0 {
		return models.TrendReport{
			Message:     "No data available for flow rate sensors.",
			Statistics:  map[string]float64{},
			Predictions: map[string]float64{"flowrate1": 0, "flowrate2": 0},
		}, nil
	}

	timestamps, series := alignSeries(rows, [2]string{"Flow Sensor 1", "Flow Sensor 2"})
	flow1, flow2 := series[0], series[1]

	diffs := make([]float64, len(flow1))
	notes := make([]string, len(flow1))
	for i := range flow1 {
		diffs[i] = FlowDifference(flow1[i], flow2[i])
		if diffs[i] > flowLeakThreshold {
			notes[i] = "Leakage is occurring with " + strconv.FormatFloat(diffs[i], 'f', -1, 64) + " L/s"
		} else {
			notes[i] = "Flow rate difference normal"
		}
	}

	return models.TrendReport{
		Timestamps:  timestamps,
		Values1:     flow1,
		Values2:     flow2,
		Differences: diffs,
		Statistics: map[string]float64{
			"total_events":      float64(len(rows)),
			"average_flowrate1": average(flow1),
			"average_flowrate2": average(flow2),
			"max_flowrate1":     maxOrZero(flow1),
			"max_flowrate2":     maxOrZero(flow2),
		},
		Predictions: map[string]float64{
			"flowrate1": PredictNextValue(flow1),
			"flowrate2": PredictNextValue(flow2),
		},
		Alerts: notes,
	}, nil
}
