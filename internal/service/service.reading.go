package service

import (
	"context"
	"io"
	"strconv"

	nuts "github.com/vaudience/go-nuts"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/aggregation"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/csvio"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/errors"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/models"
)

// RecordReading appends one reading and returns its id
func (s *Service) RecordReading(ctx context.Context, reading *models.Reading) (int64, error) {
	id, err := s.readings.Insert(ctx, reading)
	if err != nil {
		return 0, err
	}
	logCacheError("invalidate", s.latest.Invalidate(ctx, reading.SensorID))
	return id, nil
}

// RecordReadings appends a batch atomically and returns how many were stored
func (s *Service) RecordReadings(ctx context.Context, readings []models.Reading) (int, error) {
	n, err := s.readings.BulkInsert(ctx, readings)
	if err != nil {
		return 0, err
	}
	logCacheError("invalidate", s.latest.Invalidate(ctx, sensorIDs(readings)...))
	return n, nil
}

// LatestReading returns the newest reading of a sensor, served from the
// latest cache when possible
func (s *Service) LatestReading(ctx context.Context, sensorID int64) (*models.Reading, error) {
	if r, ok, err := s.latest.Get(ctx, sensorID); err != nil {
		logCacheError("get", err)
	} else if ok {
		return r, nil
	}
	gen, genErr := s.latest.Generation(ctx, sensorID)
	logCacheError("generation", genErr)
	r, err := s.readings.Latest(ctx, sensorID)
	if err != nil {
		return nil, err
	}
	if genErr == nil {
		_, err := s.latest.Set(ctx, r, gen)
		logCacheError("set", err)
	}
	return r, nil
}

func (s *Service) ReadingsInRange(ctx context.Context, sensorID int64, tr models.TimeRange) ([]models.Reading, error) {
	return s.readings.Range(ctx, sensorID, tr.Start, tr.End)
}

func (s *Service) ReadingsForAll(ctx context.Context, tr models.TimeRange) ([]models.Reading, error) {
	return s.readings.GlobalRange(ctx, tr.Start, tr.End)
}

func (s *Service) CurrentReadings(ctx context.Context) ([]models.Reading, error) {
	return s.readings.Current(ctx)
}

// Aggregate buckets one sensor's readings. interval is a label such as
// "15min"; an empty interval is chosen from the span.
func (s *Service) Aggregate(ctx context.Context, sensorID int64, tr models.TimeRange, interval string) ([]models.Bucket, error) {
	if interval == "" {
		interval = aggregation.DefaultInterval(tr.Start, tr.End)
	}
	iv, err := aggregation.ParseInterval(interval)
	if err != nil {
		return nil, err
	}
	return s.engine.Aggregate(ctx, sensorID, tr.Start, tr.End, iv.Width)
}

// AggregateMulti builds a chart-ready series for several sensors. A positive
// window adds a trailing moving average to each dataset.
func (s *Service) AggregateMulti(ctx context.Context, sensorIDs []int64, tr models.TimeRange, interval string, window int) (*models.TimeSeriesData, error) {
	if window < 0 {
		return nil, errors.NewValidationError("moving average window must not be negative", nil)
	}
	data, err := s.engine.AggregateMulti(ctx, sensorIDs, tr.Start, tr.End, interval)
	if err != nil {
		return nil, err
	}
	if window > 0 {
		for i := range data.Datasets {
			data.Datasets[i].MovingAverage = aggregation.MovingAverage(data.Datasets[i].Data, window)
		}
	}
	return data, nil
}

// ImportReadingsCSV parses CSV readings and stores them all or none
func (s *Service) ImportReadingsCSV(ctx context.Context, r io.Reader) (int, error) {
	readings, err := csvio.ReadReadings(r, s.now().Unix())
	if err != nil {
		return 0, err
	}
	if len(readings) == 0 {
		return 0, errors.NewValidationError("csv contains no readings", nil)
	}
	n, err := s.RecordReadings(ctx, readings)
	if err != nil {
		return 0, err
	}
	nuts.L.Infof("[Service] Imported %d readings from csv", n)
	s.record(EventReadingsImported, map[string]string{"count": strconv.Itoa(n)})
	return n, nil
}

// ExportReadingsCSV writes readings in the range as CSV. A sensorID of 0
// exports all sensors.
func (s *Service) ExportReadingsCSV(ctx context.Context, w io.Writer, sensorID int64, tr models.TimeRange) error {
	var (
		readings []models.Reading
		err      error
	)
	if sensorID == 0 {
		readings, err = s.readings.GlobalRange(ctx, tr.Start, tr.End)
	} else {
		readings, err = s.readings.Range(ctx, sensorID, tr.Start, tr.End)
	}
	if err != nil {
		return err
	}
	return csvio.WriteReadings(w, readings)
}

func sensorIDs(readings []models.Reading) []int64 {
	seen := make(map[int64]bool)
	ids := make([]int64, 0)
	for i := range readings {
		if id := readings[i].SensorID; !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
