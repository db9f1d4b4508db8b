// FilePath: server/sensorlog/internal/repository/repository.go
package repository

import (
	"context"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/models"
)

// SensorRepository defines the interface for sensor registry operations
type SensorRepository interface {
	Create(ctx context.Context, sensor *models.Sensor) (int64, error)
	Get(ctx context.Context, id int64) (*models.Sensor, error)
	GetAll(ctx context.Context, filters models.SensorFilters) ([]*models.Sensor, error)
	Update(ctx context.Context, id int64, sensor *models.Sensor) error
	// Delete closes the sensor's active sessions, then removes the sensor
	// together with its readings and sessions, all in one transaction.
	Delete(ctx context.Context, id int64) error
}

// ReadingRepository defines the interface for the append-only readings log
type ReadingRepository interface {
	Insert(ctx context.Context, reading *models.Reading) (int64, error)
	// BulkInsert commits all readings or none of them
	BulkInsert(ctx context.Context, readings []models.Reading) (int, error)
	Range(ctx context.Context, sensorID, start, end int64) ([]models.Reading, error)
	Latest(ctx context.Context, sensorID int64) (*models.Reading, error)
	GlobalRange(ctx context.Context, start, end int64) ([]models.Reading, error)
	Current(ctx context.Context) ([]models.Reading, error)
}

// SessionRepository defines the interface for logging session operations
type SessionRepository interface {
	Start(ctx context.Context, start models.SessionStart) (int64, error)
	Stop(ctx context.Context, sessionID int64) error
	StopForSensor(ctx context.Context, sensorID int64) (int64, error)
	Get(ctx context.Context, sessionID int64) (*models.LoggingSession, error)
	ActiveFor(ctx context.Context, sensorID int64) ([]*models.LoggingSession, error)
	ListBySensor(ctx context.Context, sensorID int64) ([]*models.LoggingSession, error)
	ListActive(ctx context.Context) ([]*models.LoggingSession, error)
}

// MaintenanceRepository defines the interface for store upkeep and inspection
type MaintenanceRepository interface {
	RefreshStatistics(ctx context.Context) error
	Checkpoint(ctx context.Context) (*models.CheckpointResult, error)
	Vacuum(ctx context.Context) error
	// IntegrityCheck reports problems in the returned report instead of failing
	IntegrityCheck(ctx context.Context) *models.IntegrityReport
	Health(ctx context.Context) (*models.DatabaseHealth, error)
}
