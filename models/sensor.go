package models

// Fixed sensor ids. Every reading batch writes one row for each.
const (
	SensorLeakage1 uint = 1
	SensorLeakage2 uint = 2
	SensorFlow1    uint = 3
	SensorFlow2    uint = 4
)

const (
	SensorTypeLeakage  = "Leakage"
	SensorTypeFlowRate = "FlowRate"
)

type Sensor struct {
	SensorID   uint   `gorm:"column:sensor_id;primaryKey;autoIncrement:false" json:"sensor_id"`
	SensorName string `gorm:"column:sensor_name;size:64" json:"sensor_name"`
	SensorType string `gorm:"column:sensor_type;size:32" json:"sensor_type"`
	Location   string `gorm:"column:location;size:32" json:"location"`
}

func (Sensor) TableName() string { return "sensors" }

// DefaultSensors is the catalogue seeded on startup.
var DefaultSensors = []Sensor{
	{SensorID: SensorLeakage1, SensorName: "Leakage Sensor 1", SensorType: SensorTypeLeakage, Location: LocationRuiru},
	{SensorID: SensorLeakage2, SensorName: "Leakage Sensor 2", SensorType: SensorTypeLeakage, Location: LocationJuja},
	{SensorID: SensorFlow1, SensorName: "Flow Sensor 1", SensorType: SensorTypeFlowRate, Location: LocationRuiru},
	{SensorID: SensorFlow2, SensorName: "Flow Sensor 2", SensorType: SensorTypeFlowRate, Location: LocationJuja},
}
