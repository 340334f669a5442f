package models

import "time"

const (
	PumpOn  = "ON"
	PumpOff = "OFF"
)

type PumpCommand struct {
	ID        uint      `gorm:"column:id;primaryKey" json:"id"`
	Status    string    `gorm:"column:status;size:8" json:"status"`
	Timestamp time.Time `gorm:"column:timestamp;index" json:"timestamp"`
}

func (PumpCommand) TableName() string { return "pumprelaystatus" }

func ValidPumpStatus(status string) bool {
	return status == PumpOn || status == PumpOff
}
