// FilePath: server/sensorlog/internal/repository/sqlite/sqlite.maintenance.go
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/database"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/models"
	"github.com/jmoiron/sqlx"
	nuts "github.com/vaudience/go-nuts"
)

type MaintenanceRepo struct {
	SQLiteBaseRepo
}

func NewMaintenanceRepository(pool *database.Pool) *MaintenanceRepo {
	return &MaintenanceRepo{SQLiteBaseRepo: newBaseRepo(pool)}
}

// RefreshStatistics updates the query planner statistics
func (r *MaintenanceRepo) RefreshStatistics(ctx context.Context) error {
	return r.read(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		if _, err := conn.ExecContext(ctx, "ANALYZE"); err != nil {
			return database.Classify(err, "failed to analyze database")
		}
		if _, err := conn.ExecContext(ctx, "PRAGMA optimize"); err != nil {
			return database.Classify(err, "failed to optimize database")
		}
		nuts.L.Infof("[MaintenanceRepo] Planner statistics refreshed")
		return nil
	})
}

// Checkpoint copies the write-ahead log into the main file and truncates it
func (r *MaintenanceRepo) Checkpoint(ctx context.Context) (*models.CheckpointResult, error) {
	var busy int
	result := &models.CheckpointResult{}
	err := r.read(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		err := conn.QueryRowxContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)").
			Scan(&busy, &result.LogFrames, &result.Checkpointed)
		return database.Classify(err, "failed to checkpoint write-ahead log")
	})
	if err != nil {
		return nil, err
	}
	result.Busy = busy != 0
	nuts.L.Infof("[MaintenanceRepo] WAL checkpoint: busy=%v log=%d checkpointed=%d",
		result.Busy, result.LogFrames, result.Checkpointed)
	return result, nil
}

// Vacuum rebuilds the database file. It cannot run inside a transaction.
func (r *MaintenanceRepo) Vacuum(ctx context.Context) error {
	return r.read(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		_, err := conn.ExecContext(ctx, "VACUUM")
		return database.Classify(err, "failed to vacuum database")
	})
}

// IntegrityCheck runs integrity_check and foreign_key_check. Any failure,
// including failing to reach the store, is reported rather than returned.
func (r *MaintenanceRepo) IntegrityCheck(ctx context.Context) *models.IntegrityReport {
	report := &models.IntegrityReport{Messages: []string{}, CheckedAt: r.unixNow()}
	err := r.read(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		var lines []string
		if err := conn.SelectContext(ctx, &lines, "PRAGMA integrity_check"); err != nil {
			return err
		}
		for _, l := range lines {
			if l != "ok" {
				report.Messages = append(report.Messages, l)
			}
		}

		rows, err := conn.QueryxContext(ctx, "PRAGMA foreign_key_check")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				table, parent string
				rowid, fkid   sql.NullInt64
			)
			if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
				return err
			}
			report.ForeignKeyViolations++
			report.Messages = append(report.Messages,
				fmt.Sprintf("foreign key violation: %s row %d references missing %s", table, rowid.Int64, parent))
		}
		return rows.Err()
	})
	if err != nil {
		report.Messages = append(report.Messages, "integrity check failed: "+err.Error())
	}
	report.OK = err == nil && len(report.Messages) == 0
	if !report.OK {
		nuts.L.Warnf("[MaintenanceRepo] Integrity check reported %d problems", len(report.Messages))
	}
	return report
}

// Health summarises store contents, ingestion rates and file sizes
func (r *MaintenanceRepo) Health(ctx context.Context) (*models.DatabaseHealth, error) {
	h := &models.DatabaseHealth{}
	err := r.read(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		var span struct {
			Count  int64         `db:"n"`
			Oldest sql.NullInt64 `db:"oldest"`
			Newest sql.NullInt64 `db:"newest"`
		}
		err := conn.GetContext(ctx, &span,
			`SELECT count(*) AS n, min(timestamp) AS oldest, max(timestamp) AS newest FROM readings`)
		if err != nil {
			return database.Classify(err, "failed to read readings span")
		}
		h.ReadingsCount = span.Count
		if span.Oldest.Valid {
			h.OldestTimestamp = &span.Oldest.Int64
			h.NewestTimestamp = &span.Newest.Int64
		}

		if err := conn.GetContext(ctx, &h.SensorsCount, `SELECT count(*) FROM sensors`); err != nil {
			return database.Classify(err, "failed to count sensors")
		}
		if err := conn.GetContext(ctx, &h.ActiveSessions,
			`SELECT count(*) FROM logging_sessions WHERE end_time IS NULL`); err != nil {
			return database.Classify(err, "failed to count active sessions")
		}

		if h.ReadingsCount > 0 {
			seconds := span.Newest.Int64 - span.Oldest.Int64
			if seconds < 1 {
				seconds = 1
			}
			h.AvgInsertRate = float64(h.ReadingsCount) / float64(seconds)

			var peak int64
			err := conn.GetContext(ctx, &peak, `
				SELECT COALESCE(MAX(n), 0) FROM (
					SELECT count(*) AS n FROM readings GROUP BY timestamp / 3600
				)`)
			if err != nil {
				return database.Classify(err, "failed to compute peak insert rate")
			}
			h.PeakInsertRate = float64(peak) / 3600.0
		}

		var version sql.NullInt64
		err = conn.GetContext(ctx, &version, `SELECT version FROM schema_migrations LIMIT 1`)
		if err == nil && version.Valid && version.Int64 > 0 {
			h.SchemaVersion = uint(version.Int64)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.DatabaseBytes = fileSize(r.pool.Path())
	h.WALBytes = fileSize(r.pool.Path() + "-wal")
	stats := r.pool.Stats()
	h.PoolSize, h.PoolInUse, h.PoolWaitCount = stats.Size, stats.InUse, stats.WaitCount

	h.Status = "healthy"
	if h.ReadingsCount == 0 {
		h.Status = "empty"
	}
	return h, nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
