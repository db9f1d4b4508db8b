package service

import (
	"time"

	nuts "github.com/vaudience/go-nuts"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/aggregation"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/cache"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/cleanup"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/errors"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/monitoring"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/repository"
)

// Domain events recorded by the service
const (
	EventReadingsImported = "readings.imported"
	EventSessionStarted   = "session.started"
	EventSessionStopped   = "session.stopped"
	EventMaintenanceRun   = "maintenance.run"
)

// Repositories groups the stores the service is built on
type Repositories struct {
	Sensors     repository.SensorRepository
	Readings    repository.ReadingRepository
	Sessions    repository.SessionRepository
	Maintenance repository.MaintenanceRepository
}

// Service contains all repositories and service-wide dependencies
type Service struct {
	sensors     repository.SensorRepository
	readings    repository.ReadingRepository
	sessions    repository.SessionRepository
	maintenance repository.MaintenanceRepository

	latest  cache.LatestCache
	engine  *aggregation.Engine
	cleanup *cleanup.CleanupService
	metrics *monitoring.Service
	now     func() time.Time
}

// New creates a new service instance. latest and metrics may be nil.
// parallelism bounds multi-sensor aggregation and is normally the pool size.
func New(repos Repositories, latest cache.LatestCache, metrics *monitoring.Service, parallelism int) *Service {
	if latest == nil {
		latest = cache.Noop{}
	}
	s := &Service{
		sensors:     repos.Sensors,
		readings:    repos.Readings,
		sessions:    repos.Sessions,
		maintenance: repos.Maintenance,
		latest:      latest,
		metrics:     metrics,
		now:         time.Now,
	}
	if repos.Readings != nil && repos.Sensors != nil {
		s.engine = aggregation.New(repos.Readings, repos.Sensors, parallelism)
	}
	if repos.Sensors != nil {
		s.cleanup = cleanup.New(repos.Sensors, latest)
		for _, ev := range []string{cleanup.EventSensorDeleted, cleanup.EventCacheFailed} {
			err := s.cleanup.OnCleanup(ev, func(id string) {
				s.record(ev, map[string]string{"sensor_id": id})
			})
			if err != nil {
				nuts.L.Errorf("[Service] %v", err)
			}
		}
	}
	return s
}

// Validate checks if all required repositories are initialized
func (s *Service) Validate() error {
	if s.sensors == nil {
		return ErrMissingRepository("sensors")
	}
	if s.readings == nil {
		return ErrMissingRepository("readings")
	}
	if s.sessions == nil {
		return ErrMissingRepository("sessions")
	}
	if s.maintenance == nil {
		return ErrMissingRepository("maintenance")
	}
	return nil
}

func ErrMissingRepository(name string) error {
	return errors.NewInternalError("missing repository: "+name, nil)
}

func (s *Service) record(event string, labels map[string]string) {
	if s.metrics != nil {
		s.metrics.RecordEvent(event, labels)
	}
}

func logCacheError(op string, err error) {
	if err != nil {
		nuts.L.Warnf("[Service] Latest cache %s failed: %v", op, err)
	}
}
