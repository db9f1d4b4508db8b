// FilePath: server/sensorlog/internal/models/models.sensor_data.go
package models

import (
	"math"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/errors"
)

// Reading is a single immutable observation. Producers set Value for analog
// sensors and State for digital ones.
type Reading struct {
	ID         int64    `json:"id" db:"id"`
	Timestamp  int64    `json:"timestamp" db:"timestamp"`
	SensorID   int64    `json:"sensor_id" db:"sensor_id"`
	Value      *float64 `json:"value,omitempty" db:"value"`
	State      *int64   `json:"state,omitempty" db:"state"`
	ChangeType *string  `json:"change_type,omitempty" db:"change_type"`
}

// Validate rejects values the store cannot represent
func (r *Reading) Validate() error {
	if r.SensorID <= 0 {
		return errors.NewValidationError("reading sensor_id must be positive", nil)
	}
	if r.Value != nil && (math.IsNaN(*r.Value) || math.IsInf(*r.Value, 0)) {
		return errors.NewValidationError("reading value must be finite", nil)
	}
	return nil
}

// Numeric returns the value used for aggregation: Value when present,
// otherwise State as a number. ok is false when the reading carries neither.
func (r *Reading) Numeric() (v float64, ok bool) {
	if r.Value != nil {
		return *r.Value, true
	}
	if r.State != nil {
		return float64(*r.State), true
	}
	return 0, false
}

// Bucket summarises the readings whose timestamps fall in
// [BucketStart, BucketStart+width).
type Bucket struct {
	BucketStart int64   `json:"bucket_start"`
	Avg         float64 `json:"avg"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Count       int64   `json:"count"`
}

// TimeSeriesData is the chart-ready multi-sensor aggregation result. Every
// dataset's Data is aligned to Labels; a nil entry means no bucket.
type TimeSeriesData struct {
	Interval     string              `json:"interval"`
	BucketWidth  int64               `json:"bucket_width"`
	Start        int64               `json:"start"`
	End          int64               `json:"end"`
	BucketStarts []int64             `json:"bucket_starts"`
	Labels       []string            `json:"labels"`
	Datasets     []TimeSeriesDataset `json:"datasets"`
}

// TimeSeriesDataset is one sensor's series within TimeSeriesData
type TimeSeriesDataset struct {
	SensorID      int64      `json:"sensor_id"`
	SensorName    string     `json:"sensor_name"`
	Unit          string     `json:"unit"`
	Data          []*float64 `json:"data"`
	Counts        []int64    `json:"counts"`
	MovingAverage []*float64 `json:"moving_average,omitempty"`
}
