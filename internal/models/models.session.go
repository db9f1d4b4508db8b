// FilePath: server/sensorlog/internal/models/models.session.go
package models

// LoggingSession is a period during which a sensor is being logged.
// A session with a nil EndTime is Active.
type LoggingSession struct {
	ID         int64   `json:"id" db:"id"`
	SensorID   int64   `json:"sensor_id" db:"sensor_id"`
	StartTime  int64   `json:"start_time" db:"start_time"`
	EndTime    *int64  `json:"end_time,omitempty" db:"end_time"`
	SampleRate *int64  `json:"sample_rate,omitempty" db:"sample_rate"`
	Notes      *string `json:"notes,omitempty" db:"notes"`
	IsActive   bool    `json:"is_active" db:"-"`
}

// Active reports whether the session is still open
func (s *LoggingSession) Active() bool {
	return s.EndTime == nil
}

// SessionStart carries the optional fields of a new session
type SessionStart struct {
	SensorID   int64   `json:"sensor_id"`
	SampleRate *int64  `json:"sample_rate,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}
