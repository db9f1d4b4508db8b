// Package aggregation buckets readings into fixed-width time windows.
//
// A reading at timestamp t belongs to the bucket starting at floor(t/w)*w.
// Buckets without readings are not produced.
package aggregation

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/errors"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/models"
	"golang.org/x/sync/errgroup"
)

// RangeReader is the part of the reading repository the engine needs
type RangeReader interface {
	Range(ctx context.Context, sensorID, start, end int64) ([]models.Reading, error)
}

// SensorReader resolves sensor metadata for multi-sensor aggregation
type SensorReader interface {
	Get(ctx context.Context, id int64) (*models.Sensor, error)
}

// Engine aggregates readings fetched from the store
type Engine struct {
	readings    RangeReader
	sensors     SensorReader
	parallelism int
}

// New returns an Engine. parallelism bounds how many sensors AggregateMulti
// reads at once and is normally the pool size.
func New(readings RangeReader, sensors SensorReader, parallelism int) *Engine {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Engine{readings: readings, sensors: sensors, parallelism: parallelism}
}

// BucketStart floors ts to a multiple of width, also for negative timestamps.
// Timestamps whose floor lies below math.MinInt64 land in the bucket
// starting at math.MinInt64.
func BucketStart(ts, width int64) int64 {
	b := ts / width * width
	if ts%width != 0 && ts < 0 {
		if b < math.MinInt64+width {
			return math.MinInt64
		}
		b -= width
	}
	return b
}

type acc struct {
	sum, min, max float64
	count         int64
}

// Buckets groups readings by bucket and returns the non-empty buckets in
// ascending order. Readings carrying neither value nor state are skipped.
func Buckets(readings []models.Reading, width int64) []models.Bucket {
	accs := make(map[int64]*acc)
	for i := range readings {
		v, ok := readings[i].Numeric()
		if !ok {
			continue
		}
		b := BucketStart(readings[i].Timestamp, width)
		a, seen := accs[b]
		if !seen {
			accs[b] = &acc{sum: v, min: v, max: v, count: 1}
			continue
		}
		a.sum += v
		a.count++
		if v < a.min {
			a.min = v
		}
		if v > a.max {
			a.max = v
		}
	}

	out := make([]models.Bucket, 0, len(accs))
	for start, a := range accs {
		out = append(out, models.Bucket{
			BucketStart: start,
			Avg:         a.sum / float64(a.count),
			Min:         a.min,
			Max:         a.max,
			Count:       a.count,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketStart < out[j].BucketStart })
	return out
}

// Aggregate buckets one sensor's readings in [start, end] into windows of width seconds
func (e *Engine) Aggregate(ctx context.Context, sensorID, start, end, width int64) ([]models.Bucket, error) {
	if width <= 0 {
		return nil, errors.NewValidationError(fmt.Sprintf("bucket width must be positive, got %d", width), nil)
	}
	readings, err := e.readings.Range(ctx, sensorID, start, end)
	if err != nil {
		return nil, err
	}
	return Buckets(readings, width), nil
}

// AggregateMulti aggregates several sensors on a shared label axis. Each
// dataset holds the bucket average per label, or nil where that sensor has
// no readings in the bucket.
func (e *Engine) AggregateMulti(ctx context.Context, sensorIDs []int64, start, end int64, interval string) (*models.TimeSeriesData, error) {
	ids := dedupe(sensorIDs)
	if len(ids) == 0 {
		return nil, errors.NewValidationError("at least one sensor id is required", nil)
	}
	if interval == "" {
		interval = DefaultInterval(start, end)
	}
	iv, err := ParseInterval(interval)
	if err != nil {
		return nil, err
	}

	sensors := make([]*models.Sensor, len(ids))
	buckets := make([][]models.Bucket, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, id := range ids {
		g.Go(func() error {
			s, err := e.sensors.Get(gctx, id)
			if err != nil {
				return err
			}
			b, err := e.Aggregate(gctx, id, start, end, iv.Width)
			if err != nil {
				return err
			}
			sensors[i], buckets[i] = s, b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	axis := unionStarts(buckets)
	pos := make(map[int64]int, len(axis))
	labels := make([]string, len(axis))
	for i, s := range axis {
		pos[s] = i
		labels[i] = FormatLabel(s, iv.Width)
	}

	datasets := make([]models.TimeSeriesDataset, len(ids))
	for i := range ids {
		ds := models.TimeSeriesDataset{
			SensorID:   sensors[i].ID,
			SensorName: sensors[i].Name,
			Unit:       sensors[i].UnitOrEmpty(),
			Data:       make([]*float64, len(axis)),
			Counts:     make([]int64, len(axis)),
		}
		for _, b := range buckets[i] {
			avg := b.Avg
			ds.Data[pos[b.BucketStart]] = &avg
			ds.Counts[pos[b.BucketStart]] = b.Count
		}
		datasets[i] = ds
	}

	return &models.TimeSeriesData{
		Interval:     iv.Label,
		BucketWidth:  iv.Width,
		Start:        start,
		End:          end,
		BucketStarts: axis,
		Labels:       labels,
		Datasets:     datasets,
	}, nil
}

// MovingAverage smooths a series over a trailing window. Nil points are
// skipped; a position whose window holds no values stays nil.
func MovingAverage(series []*float64, window int) []*float64 {
	out := make([]*float64, len(series))
	if window < 1 {
		window = 1
	}
	for i := range series {
		var (
			sum float64
			n   int
		)
		for j := i - window + 1; j <= i; j++ {
			if j < 0 || series[j] == nil {
				continue
			}
			sum += *series[j]
			n++
		}
		if n > 0 {
			avg := sum / float64(n)
			out[i] = &avg
		}
	}
	return out
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func unionStarts(buckets [][]models.Bucket) []int64 {
	seen := make(map[int64]bool)
	var axis []int64
	for _, bs := range buckets {
		for _, b := range bs {
			if !seen[b.BucketStart] {
				seen[b.BucketStart] = true
				axis = append(axis, b.BucketStart)
			}
		}
	}
	sort.Slice(axis, func(i, j int) bool { return axis[i] < axis[j] })
	if axis == nil {
		axis = []int64{}
	}
	return axis
}
