package models

import "time"

type Severity string

const (
	SeverityWarning  Severity = "Warning"
	SeverityCritical Severity = "Critical"
)

const (
	LocationRuiru = "Ruiru"
	LocationJuja  = "Juja"
)

type Alert struct {
	AlertID     uint      `gorm:"column:alert_id;primaryKey" json:"alert_id"`
	Description string    `gorm:"column:description" json:"description"`
	Severity    Severity  `gorm:"column:severity;size:16" json:"severity"`
	Location    string    `gorm:"column:location;size:32" json:"location"`
	Resolved    bool      `gorm:"column:resolved;not null;default:false;index" json:"resolved"`
	Timestamp   time.Time `gorm:"column:timestamp;index" json:"timestamp"`
}

func (Alert) TableName() string { return "alerts" }
