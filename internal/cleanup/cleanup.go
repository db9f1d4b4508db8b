package cleanup

import (
	"context"
	"fmt"
	"strconv"

	nuts "github.com/vaudience/go-nuts"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/cache"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/repository"
)

// Events emitted after a successful cleanup
const (
	EventSensorDeleted = "sensor.deleted"
	EventCacheFailed   = "cache.invalidate_failed"
)

// CleanupService coordinates deletion of a sensor and everything derived from it
type CleanupService struct {
	sensors repository.SensorRepository
	latest  cache.LatestCache
	events  *nuts.EventEmitter
}

// New creates a new CleanupService
func New(sensors repository.SensorRepository, latest cache.LatestCache) *CleanupService {
	if latest == nil {
		latest = cache.Noop{}
	}
	return &CleanupService{
		sensors: sensors,
		latest:  latest,
		events:  nuts.NewEventEmitter(),
	}
}

// DeleteSensor deletes a sensor with its readings and sessions, then drops its
// cached latest reading. A cache failure does not fail the deletion.
func (s *CleanupService) DeleteSensor(ctx context.Context, sensorID int64) error {
	if err := s.sensors.Delete(ctx, sensorID); err != nil {
		return err
	}

	id := strconv.FormatInt(sensorID, 10)
	if err := s.latest.Invalidate(ctx, sensorID); err != nil {
		nuts.L.Warnf("[Cleanup] Failed to invalidate cached reading for sensor %s: %v", id, err)
		s.emit(EventCacheFailed, id)
	}

	// Emit event after successful deletion
	s.emit(EventSensorDeleted, id)
	return nil
}

func (s *CleanupService) emit(event, id string) {
	if err := s.events.Emit(event, id); err != nil {
		nuts.L.Warnf("[Cleanup] Failed to emit %s for sensor %s: %v", event, id, err)
	}
}

// OnCleanup registers a callback for cleanup events. Handlers run
// synchronously inside DeleteSensor.
func (s *CleanupService) OnCleanup(event string, handler func(id string)) error {
	if _, err := s.events.On(event, nuts.NID("cln", 8), handler); err != nil {
		return fmt.Errorf("failed to register %s handler: %w", event, err)
	}
	return nil
}
