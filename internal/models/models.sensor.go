// FilePath: server/sensorlog/internal/models/models.sensor.go
package models

import (
	"math"
	"strings"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/errors"
)

// SensorType is a free-form category string; the constants are the common ones.
type SensorType = string

const (
	Temperature SensorType = "temperature"
	Humidity    SensorType = "humidity"
	Pressure    SensorType = "pressure"
	Power       SensorType = "power"
	Flow        SensorType = "flow"
	Level       SensorType = "level"
	Digital     SensorType = "digital"
	Other       SensorType = "other"
)

// Sensor is a named, typed measurement source. Timestamps are unix seconds.
type Sensor struct {
	ID              int64    `json:"id" db:"id"`
	Name            string   `json:"name" db:"name"`
	Type            string   `json:"type" db:"type"`
	Location        *string  `json:"location,omitempty" db:"location"`
	Unit            *string  `json:"unit,omitempty" db:"unit"`
	ThresholdMin    *float64 `json:"threshold_min,omitempty" db:"threshold_min"`
	ThresholdMax    *float64 `json:"threshold_max,omitempty" db:"threshold_max"`
	CalibrationDate *int64   `json:"calibration_date,omitempty" db:"calibration_date"`
	Notes           *string  `json:"notes,omitempty" db:"notes"`
	CreatedAt       int64    `json:"created_at" db:"created_at"`
	UpdatedAt       int64    `json:"updated_at" db:"updated_at"`
}

// Validate checks the fields a caller controls
func (s *Sensor) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.NewValidationError("sensor name is required", nil)
	}
	if strings.TrimSpace(s.Type) == "" {
		return errors.NewValidationError("sensor type is required", nil)
	}
	for _, th := range []*float64{s.ThresholdMin, s.ThresholdMax} {
		if th != nil && (math.IsNaN(*th) || math.IsInf(*th, 0)) {
			return errors.NewValidationError("sensor thresholds must be finite", nil)
		}
	}
	if s.ThresholdMin != nil && s.ThresholdMax != nil && *s.ThresholdMin > *s.ThresholdMax {
		return errors.NewValidationError("threshold_min must not exceed threshold_max", nil)
	}
	return nil
}

// UnitOrEmpty returns the unit or "" when unset
func (s *Sensor) UnitOrEmpty() string {
	if s.Unit == nil {
		return ""
	}
	return *s.Unit
}
