package service

import (
	"context"
	"io"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/csvio"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/models"
)

// CreateSensor registers a sensor and returns the stored record
func (s *Service) CreateSensor(ctx context.Context, sensor *models.Sensor) (*models.Sensor, error) {
	id, err := s.sensors.Create(ctx, sensor)
	if err != nil {
		return nil, err
	}
	return s.sensors.Get(ctx, id)
}

func (s *Service) GetSensor(ctx context.Context, id int64) (*models.Sensor, error) {
	return s.sensors.Get(ctx, id)
}

func (s *Service) ListSensors(ctx context.Context, filters models.SensorFilters) ([]*models.Sensor, error) {
	return s.sensors.GetAll(ctx, filters)
}

// UpdateSensor overwrites every mutable field of the sensor and returns the result
func (s *Service) UpdateSensor(ctx context.Context, id int64, sensor *models.Sensor) (*models.Sensor, error) {
	if err := s.sensors.Update(ctx, id, sensor); err != nil {
		return nil, err
	}
	return s.sensors.Get(ctx, id)
}

// DeleteSensor removes the sensor with its readings and sessions
func (s *Service) DeleteSensor(ctx context.Context, id int64) error {
	return s.cleanup.DeleteSensor(ctx, id)
}

// SensorHealth compares each sensor's current reading against its thresholds
func (s *Service) SensorHealth(ctx context.Context) (*models.SensorHealthReport, error) {
	sensors, err := s.sensors.GetAll(ctx, models.SensorFilters{})
	if err != nil {
		return nil, err
	}
	current, err := s.readings.Current(ctx)
	if err != nil {
		return nil, err
	}
	bySensor := make(map[int64]*models.Reading, len(current))
	for i := range current {
		bySensor[current[i].SensorID] = &current[i]
	}

	report := &models.SensorHealthReport{Total: len(sensors), Sensors: make([]models.SensorStatus, 0, len(sensors))}
	for _, sensor := range sensors {
		st := models.SensorStatus{Sensor: sensor, Reading: bySensor[sensor.ID]}
		st.Status = thresholdStatus(sensor, st.Reading)
		switch st.Status {
		case models.StatusOK:
			report.Healthy++
		case models.StatusNoData:
			report.NoData++
		default:
			report.Warning++
		}
		report.Sensors = append(report.Sensors, st)
	}
	return report, nil
}

func thresholdStatus(sensor *models.Sensor, r *models.Reading) string {
	if r == nil {
		return models.StatusNoData
	}
	v, ok := r.Numeric()
	if !ok {
		return models.StatusNoData
	}
	if sensor.ThresholdMin != nil && v < *sensor.ThresholdMin {
		return models.StatusBelowMin
	}
	if sensor.ThresholdMax != nil && v > *sensor.ThresholdMax {
		return models.StatusAboveMax
	}
	return models.StatusOK
}

// ExportSensorsCSV writes every sensor as CSV
func (s *Service) ExportSensorsCSV(ctx context.Context, w io.Writer) error {
	sensors, err := s.sensors.GetAll(ctx, models.SensorFilters{})
	if err != nil {
		return err
	}
	return csvio.WriteSensors(w, sensors)
}
