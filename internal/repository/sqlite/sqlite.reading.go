// FilePath: server/sensorlog/internal/repository/sqlite/sqlite.reading.go
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
	nuts "github.com/vaudience/go-nuts"
)

const readingColumns = `id, timestamp, sensor_id, value, state, change_type`

const insertReading = `
	INSERT INTO readings (timestamp, sensor_id, value, state, change_type)
	VALUES (?, ?, ?, ?, ?)`

type ReadingRepo struct {
	SQLiteBaseRepo
}

func NewReadingRepository(pool *database.Pool) *ReadingRepo {
	return &ReadingRepo{SQLiteBaseRepo: newBaseRepo(pool)}
}

// Insert appends one reading. A reading for an unknown sensor is a validation error.
func (r *ReadingRepo) Insert(ctx context.Context, reading *models.Reading) (int64, error) {
	if err := reading.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := r.write(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, insertReading,
			reading.Timestamp, reading.SensorID, reading.Value, reading.State, reading.ChangeType)
		if err != nil {
			return database.Classify(err, fmt.Sprintf("failed to insert reading for sensor %d", reading.SensorID))
		}
		id, err = res.LastInsertId()
		return database.Classify(err, "failed to read reading id")
	})
	if err != nil {
		return 0, err
	}
	reading.ID = id
	return id, nil
}

// BulkInsert appends every reading in one transaction with a single prepared
// statement. If any row fails the whole batch is rolled back.
func (r *ReadingRepo) BulkInsert(ctx context.Context, readings []models.Reading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}
	for i := range readings {
		if err := readings[i].Validate(); err != nil {
			return 0, withIndex(err, i)
		}
	}

	ids := make([]int64, len(readings))
	err := r.write(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, insertReading)
		if err != nil {
			return database.Classify(err, "failed to prepare bulk insert")
		}
		defer stmt.Close()

		for i := range readings {
			rd := &readings[i]
			res, err := stmt.ExecContext(ctx, rd.Timestamp, rd.SensorID, rd.Value, rd.State, rd.ChangeType)
			if err != nil {
				return withIndex(database.Classify(err, fmt.Sprintf("failed to insert reading %d for sensor %d", i, rd.SensorID)), i)
			}
			if ids[i], err = res.LastInsertId(); err != nil {
				return database.Classify(err, "failed to read reading id")
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for i := range readings {
		readings[i].ID = ids[i]
	}
	nuts.L.Debugf("[ReadingRepo] Bulk inserted %d readings", len(readings))
	return len(readings), nil
}

// Range returns one sensor's readings with start <= timestamp <= end,
// ordered by timestamp then id.
func (r *ReadingRepo) Range(ctx context.Context, sensorID, start, end int64) ([]models.Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM readings INDEXED BY idx_readings_sensor_timestamp
		WHERE sensor_id = ? AND timestamp BETWEEN ? AND ?
		ORDER BY timestamp ASC, id ASC`

	readings := []models.Reading{}
	err := r.read(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		return database.Classify(conn.SelectContext(ctx, &readings, query, sensorID, start, end), "failed to get readings")
	})
	if err != nil {
		return nil, err
	}
	return readings, nil
}

// Latest returns the reading with the greatest timestamp, ties broken by the greatest id
func (r *ReadingRepo) Latest(ctx context.Context, sensorID int64) (*models.Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM readings INDEXED BY idx_readings_sensor_timestamp
		WHERE sensor_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`

	reading := &models.Reading{}
	err := r.read(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		return conn.GetContext(ctx, reading, query, sensorID)
	})
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError(fmt.Sprintf("no readings for sensor %d", sensorID), err)
		}
		return nil, database.Classify(err, "failed to get latest reading")
	}
	return reading, nil
}

// GlobalRange returns readings of all sensors with start <= timestamp <= end
func (r *ReadingRepo) GlobalRange(ctx context.Context, start, end int64) ([]models.Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM readings INDEXED BY idx_readings_timestamp
		WHERE timestamp BETWEEN ? AND ?
		ORDER BY timestamp ASC, id ASC`

	readings := []models.Reading{}
	err := r.read(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		return database.Classify(conn.SelectContext(ctx, &readings, query, start, end), "failed to get readings")
	})
	if err != nil {
		return nil, err
	}
	return readings, nil
}

// Current returns the newest reading of every sensor that has one
func (r *ReadingRepo) Current(ctx context.Context) ([]models.Reading, error) {
	query := `SELECT ` + readingColumns + ` FROM current_readings ORDER BY sensor_id ASC`

	readings := []models.Reading{}
	err := r.read(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		return database.Classify(conn.SelectContext(ctx, &readings, query), "failed to get current readings")
	})
	if err != nil {
		return nil, err
	}
	return readings, nil
}

// withIndex records which batch row failed
func withIndex(err error, i int) error {
	var typed *errors.Error
	if errors.As(err, &typed) {
		typed.WithDetails(map[string]int{"index": i})
	}
	return err
}
