// FilePath: server/sensorlog/internal/models/models.composite.go
package models

// Threshold states reported by SensorStatus
const (
	StatusOK       = "ok"
	StatusBelowMin = "below_min"
	StatusAboveMax = "above_max"
	StatusNoData   = "no_data"
)

// SensorStatus combines a sensor with its current reading and threshold state
type SensorStatus struct {
	Sensor  *Sensor  `json:"sensor"`
	Reading *Reading `json:"reading,omitempty"`
	Status  string   `json:"status"`
}

// SensorHealthReport summarises threshold state across all sensors
type SensorHealthReport struct {
	Total   int            `json:"total"`
	Healthy int            `json:"healthy"`
	Warning int            `json:"warning"`
	NoData  int            `json:"no_data"`
	Sensors []SensorStatus `json:"sensors"`
}
