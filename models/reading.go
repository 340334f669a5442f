package models

import "time"

type SensorReading struct {
	ReadingID uint      `gorm:"column:reading_id;primaryKey" json:"reading_id"`
	SensorID  uint      `gorm:"column:sensor_id;index:idx_sensor_ts,priority:1" json:"sensor_id"`
	Value     float64   `gorm:"column:value" json:"value"`
	Timestamp time.Time `gorm:"column:timestamp;index:idx_sensor_ts,priority:2" json:"timestamp"`
}

func (SensorReading) TableName() string { return "sensorreadings" }

// ReadingBatch is one sampling instant pushed by the sensor agent. Fields are
// pointers so a missing value can be told apart from a zero.
type ReadingBatch struct {
	FlowRate1 *float64 `json:"flow_rate_1"`
	FlowRate2 *float64 `json:"flow_rate_2"`
	Leakage1  *float64 `json:"leakage_1"`
	Leakage2  *float64 `json:"leakage_2"`
}

// Snapshot is the latest known value per sensor.
type Snapshot struct {
	FlowRate1 float64 `json:"flow_rate_1"`
	FlowRate2 float64 `json:"flow_rate_2"`
	Leakage1  float64 `json:"leakage_1"`
	Leakage2  float64 `json:"leakage_2"`
}

type HistoryRow struct {
	Timestamp  time.Time `gorm:"column:timestamp" json:"timestamp"`
	SensorName string    `gorm:"column:sensor_name" json:"sensor_name"`
	Value      float64   `gorm:"column:value" json:"value"`
	PumpStatus *string   `gorm:"column:pump_status" json:"pump_status"`
}

type SensorStats struct {
	SensorID uint    `gorm:"column:sensor_id" json:"sensor_id"`
	Average  float64 `gorm:"column:average" json:"average"`
	Max      float64 `gorm:"column:max" json:"max"`
	Min      float64 `gorm:"column:min" json:"min"`
}
