package models

// TrendReport is the per-sensor-pair series with a next-value forecast.
type TrendReport struct {
	Timestamps  []string           `json:"timestamps"`
	Values1     []float64          `json:"values1"`
	Values2     []float64          `json:"values2"`
	Differences []float64          `json:"differences,omitempty"`
	LastLeakage *LastLeakage       `json:"last_leakage,omitempty"`
	Statistics  map[string]float64 `json:"statistics"`
	Predictions map[string]float64 `json:"predictions"`
	Alerts      interface{}        `json:"alerts"`
	Message     string             `json:"message,omitempty"`
}

type LastLeakage struct {
	Timestamp *string `json:"timestamp"`
	Leakage1  float64 `json:"leakage1"`
	Leakage2  float64 `json:"leakage2"`
}
