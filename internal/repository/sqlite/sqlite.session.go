// FilePath: server/sensorlog/internal/repository/sqlite/sqlite.session.go
package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/database"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/errors"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/models"
	"github.com/jmoiron/sqlx"
)

const sessionColumns = `id, sensor_id, start_time, end_time, sample_rate, notes`

type SessionRepo struct {
	SQLiteBaseRepo
	allowConcurrent bool
}

// NewSessionRepository returns a session repository. Unless allowConcurrent
// is set, a sensor may have at most one active session.
func NewSessionRepository(pool *database.Pool, allowConcurrent bool) *SessionRepo {
	return &SessionRepo{SQLiteBaseRepo: newBaseRepo(pool), allowConcurrent: allowConcurrent}
}

func (r *SessionRepo) Start(ctx context.Context, start models.SessionStart) (int64, error) {
	if start.SensorID <= 0 {
		return 0, errors.NewValidationError("session sensor_id must be positive", nil)
	}
	if start.SampleRate != nil && *start.SampleRate <= 0 {
		return 0, errors.NewValidationError("sample_rate must be positive", nil)
	}

	var id int64
	err := r.write(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if !r.allowConcurrent {
			var active int64
			err := tx.GetContext(ctx, &active,
				`SELECT count(*) FROM logging_sessions WHERE sensor_id = ? AND end_time IS NULL`, start.SensorID)
			if err != nil {
				return database.Classify(err, "failed to check active sessions")
			}
			if active > 0 {
				return errors.NewConflictError(fmt.Sprintf("sensor %d already has an active logging session", start.SensorID), nil)
			}
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO logging_sessions (sensor_id, start_time, sample_rate, notes) VALUES (?, ?, ?, ?)`,
			start.SensorID, r.unixNow(), start.SampleRate, start.Notes)
		if err != nil {
			return database.Classify(err, fmt.Sprintf("failed to start session for sensor %d", start.SensorID))
		}
		id, err = res.LastInsertId()
		return database.Classify(err, "failed to read session id")
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Stop closes an active session. Stopping a closed session is a conflict.
func (r *SessionRepo) Stop(ctx context.Context, sessionID int64) error {
	return r.write(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		var end sql.NullInt64
		err := tx.GetContext(ctx, &end, `SELECT end_time FROM logging_sessions WHERE id = ?`, sessionID)
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NewNotFoundError(fmt.Sprintf("logging session %d not found", sessionID), err)
		}
		if err != nil {
			return database.Classify(err, "failed to get logging session")
		}
		if end.Valid {
			return errors.NewConflictError(fmt.Sprintf("logging session %d is already closed", sessionID), nil)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE logging_sessions SET end_time = MAX(?, start_time) WHERE id = ? AND end_time IS NULL`,
			r.unixNow(), sessionID)
		return database.Classify(err, "failed to stop logging session")
	})
}

// StopForSensor closes every active session of a sensor and returns how many were closed
func (r *SessionRepo) StopForSensor(ctx context.Context, sensorID int64) (int64, error) {
	var closed int64
	err := r.write(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE logging_sessions SET end_time = MAX(?, start_time) WHERE sensor_id = ? AND end_time IS NULL`,
			r.unixNow(), sensorID)
		if err != nil {
			return database.Classify(err, "failed to stop logging sessions")
		}
		if closed, err = res.RowsAffected(); err != nil {
			return database.Classify(err, "failed to get rows affected")
		}
		if closed == 0 {
			return errors.NewNotFoundError(fmt.Sprintf("no active logging session for sensor %d", sensorID), nil)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return closed, nil
}

func (r *SessionRepo) Get(ctx context.Context, sessionID int64) (*models.LoggingSession, error) {
	session := &models.LoggingSession{}
	query := `SELECT ` + sessionColumns + ` FROM logging_sessions WHERE id = ?`
	err := r.read(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		return conn.GetContext(ctx, session, query, sessionID)
	})
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError(fmt.Sprintf("logging session %d not found", sessionID), err)
		}
		return nil, database.Classify(err, "failed to get logging session")
	}
	session.IsActive = session.Active()
	return session, nil
}

// ActiveFor returns the sensor's open sessions, oldest first
func (r *SessionRepo) ActiveFor(ctx context.Context, sensorID int64) ([]*models.LoggingSession, error) {
	return r.list(ctx, `
		SELECT `+sessionColumns+` FROM logging_sessions
		WHERE sensor_id = ? AND end_time IS NULL
		ORDER BY start_time ASC, id ASC`, sensorID)
}

// ListBySensor returns every session of a sensor, newest first
func (r *SessionRepo) ListBySensor(ctx context.Context, sensorID int64) ([]*models.LoggingSession, error) {
	return r.list(ctx, `
		SELECT `+sessionColumns+` FROM logging_sessions
		WHERE sensor_id = ?
		ORDER BY start_time DESC, id DESC`, sensorID)
}

// ListActive returns open sessions across all sensors
func (r *SessionRepo) ListActive(ctx context.Context) ([]*models.LoggingSession, error) {
	return r.list(ctx, `
		SELECT `+sessionColumns+` FROM logging_sessions
		WHERE end_time IS NULL
		ORDER BY sensor_id ASC, start_time ASC, id ASC`)
}

func (r *SessionRepo) list(ctx context.Context, query string, args ...interface{}) ([]*models.LoggingSession, error) {
	sessions := []*models.LoggingSession{}
	err := r.read(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		return database.Classify(conn.SelectContext(ctx, &sessions, query, args...), "failed to list logging sessions")
	})
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		s.IsActive = s.Active()
	}
	return sessions, nil
}
