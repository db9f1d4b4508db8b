// FilePath: server/sensorlog/internal/repository/sqlite/sqlite.sensor.go
package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/database"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/errors"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/models"
	"github.com/jmoiron/sqlx"
	nuts "github.com/vaudience/go-nuts"
)

const sensorColumns = `id, name, type, location, unit, threshold_min, threshold_max,
	calibration_date, notes, created_at, updated_at`

// sortable columns for GetAll; anything else is rejected
var sensorSortColumns = map[string]bool{
	"id": true, "name": true, "type": true, "location": true, "created_at": true, "updated_at": true,
}

type SensorRepo struct {
	SQLiteBaseRepo
}

func NewSensorRepository(pool *database.Pool) *SensorRepo {
	return &SensorRepo{SQLiteBaseRepo: newBaseRepo(pool)}
}

func (r *SensorRepo) Create(ctx context.Context, sensor *models.Sensor) (int64, error) {
	if err := sensor.Validate(); err != nil {
		return 0, err
	}
	query := `
		INSERT INTO sensors (
			name, type, location, unit, threshold_min, threshold_max,
			calibration_date, notes, created_at, updated_at
		) VALUES (
			:name, :type, :location, :unit, :threshold_min, :threshold_max,
			:calibration_date, :notes, :created_at, :updated_at
		)`

	now := r.unixNow()
	row := *sensor
	row.CreatedAt, row.UpdatedAt = now, now

	var id int64
	err := r.write(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		result, err := tx.NamedExecContext(ctx, query, &row)
		if err != nil {
			return database.Classify(err, "failed to create sensor")
		}
		id, err = result.LastInsertId()
		return database.Classify(err, "failed to read sensor id")
	})
	if err != nil {
		return 0, err
	}

	sensor.ID, sensor.CreatedAt, sensor.UpdatedAt = id, now, now
	return id, nil
}

func (r *SensorRepo) Get(ctx context.Context, id int64) (*models.Sensor, error) {
	sensor := &models.Sensor{}
	query := `SELECT ` + sensorColumns + ` FROM sensors WHERE id = ?`

	err := r.read(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		return conn.GetContext(ctx, sensor, query, id)
	})
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("sensor not found", err)
		}
		return nil, database.Classify(err, "failed to get sensor")
	}
	return sensor, nil
}

// GetAll lists sensors matching every set filter, in insertion order unless
// filters.Sort names a column.
func (r *SensorRepo) GetAll(ctx context.Context, filters models.SensorFilters) ([]*models.Sensor, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filters.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, filters.Type)
	}
	if filters.Location != "" {
		conds = append(conds, "location = ?")
		args = append(args, filters.Location)
	}

	order, err := sensorOrder(filters.Sort)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + sensorColumns + ` FROM sensors`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY ` + order

	sensors := []*models.Sensor{}
	err = r.read(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		return database.Classify(conn.SelectContext(ctx, &sensors, query, args...), "failed to list sensors")
	})
	if err != nil {
		return nil, err
	}
	return sensors, nil
}

func sensorOrder(sort string) (string, error) {
	if sort == "" {
		return "id ASC", nil
	}
	dir := "ASC"
	col := sort
	if strings.HasPrefix(sort, "-") {
		dir, col = "DESC", sort[1:]
	}
	if !sensorSortColumns[col] {
		return "", errors.NewValidationError("unsupported sort column: "+col, nil)
	}
	if col == "id" {
		return "id " + dir, nil
	}
	return col + " " + dir + ", id ASC", nil
}

// Update overwrites every mutable field. updated_at always moves forward,
// even for two updates within the same second.
func (r *SensorRepo) Update(ctx context.Context, id int64, sensor *models.Sensor) error {
	if err := sensor.Validate(); err != nil {
		return err
	}
	query := `
		UPDATE sensors SET
			name = :name,
			type = :type,
			location = :location,
			unit = :unit,
			threshold_min = :threshold_min,
			threshold_max = :threshold_max,
			calibration_date = :calibration_date,
			notes = :notes,
			updated_at = MAX(:updated_at, updated_at + 1)
		WHERE id = :id`

	row := *sensor
	row.ID = id
	row.UpdatedAt = r.unixNow()

	return r.write(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		result, err := tx.NamedExecContext(ctx, query, &row)
		if err != nil {
			return database.Classify(err, "failed to update sensor")
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return database.Classify(err, "failed to get rows affected")
		}
		if rows == 0 {
			return errors.NewNotFoundError("sensor not found", nil)
		}
		return nil
	})
}

// Delete removes a sensor. Its readings and sessions go with it through the
// foreign key cascade; active sessions are closed first.
func (r *SensorRepo) Delete(ctx context.Context, id int64) error {
	var closed int64
	err := r.write(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE logging_sessions SET end_time = MAX(?, start_time) WHERE sensor_id = ? AND end_time IS NULL`,
			r.unixNow(), id)
		if err != nil {
			return database.Classify(err, "failed to close sensor sessions")
		}
		closed, _ = res.RowsAffected()

		res, err = tx.ExecContext(ctx, `DELETE FROM sensors WHERE id = ?`, id)
		if err != nil {
			return database.Classify(err, "failed to delete sensor")
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return database.Classify(err, "failed to get rows affected")
		}
		if rows == 0 {
			return errors.NewNotFoundError("sensor not found", nil)
		}
		return nil
	})
	if err != nil {
		return err
	}

	nuts.L.Infof("[SensorRepo] Deleted sensor %d (closed %d active sessions)", id, closed)
	return nil
}
