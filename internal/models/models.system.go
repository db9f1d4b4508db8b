// FilePath: server/sensorlog/internal/models/models.system.go
package models

// DatabaseHealth is a snapshot of store size and ingestion rates
type DatabaseHealth struct {
	Status          string  `json:"status"`
	ReadingsCount   int64   `json:"readings_count"`
	SensorsCount    int64   `json:"sensors_count"`
	ActiveSessions  int64   `json:"active_sessions"`
	OldestTimestamp *int64  `json:"oldest_timestamp,omitempty"`
	NewestTimestamp *int64  `json:"newest_timestamp,omitempty"`
	AvgInsertRate   float64 `json:"avg_insert_rate_per_second"`
	PeakInsertRate  float64 `json:"peak_insert_rate_per_second"`
	DatabaseBytes   int64   `json:"database_bytes"`
	WALBytes        int64   `json:"wal_bytes"`
	SchemaVersion   uint    `json:"schema_version"`
	PoolSize        int     `json:"pool_size"`
	PoolInUse       int     `json:"pool_in_use"`
	PoolWaitCount   int64   `json:"pool_wait_count"`
}

// CheckpointResult mirrors the row returned by PRAGMA wal_checkpoint
type CheckpointResult struct {
	Busy         bool  `json:"busy"`
	LogFrames    int64 `json:"log_frames"`
	Checkpointed int64 `json:"checkpointed_frames"`
}

// IntegrityReport is never an error; failures are described by OK and Messages
type IntegrityReport struct {
	OK                   bool     `json:"ok"`
	Messages             []string `json:"messages"`
	ForeignKeyViolations int      `json:"foreign_key_violations"`
	CheckedAt            int64    `json:"checked_at"`
}

// Maintenance task names
const (
	TaskAnalyze    = "analyze"
	TaskCheckpoint = "checkpoint"
	TaskVacuum     = "vacuum"
	TaskIntegrity  = "integrity"
)

// MaintenanceResult records the outcome of one maintenance task
type MaintenanceResult struct {
	Task       string            `json:"task"`
	Success    bool              `json:"success"`
	DurationMS int64             `json:"duration_ms"`
	Error      string            `json:"error,omitempty"`
	Checkpoint *CheckpointResult `json:"checkpoint,omitempty"`
	Integrity  *IntegrityReport  `json:"integrity,omitempty"`
}
