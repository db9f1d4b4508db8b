package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/config"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/database"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/database/migrate"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/models"
)

func newTestPool(t *testing.T) *database.Pool {
	t.Helper()
	pool, err := database.Open(context.Background(), config.DatabaseConfig{
		Path:           filepath.Join(t.TempDir(), "sensorlog.db"),
		PoolSize:       4,
		AcquireTimeout: 2 * time.Second,
		BusyTimeout:    2 * time.Second,
		Synchronous:    "NORMAL",
	})
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	if err := migrate.New(pool).Up(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func fixedClock(sec int64) func() time.Time {
	return func() time.Time { return time.Unix(sec, 0) }
}

func ptr[T any](v T) *T { return &v }

func mustCreateSensor(t *testing.T, repo *SensorRepo, name, typ string) int64 {
	t.Helper()
	id, err := repo.Create(context.Background(), &models.Sensor{Name: name, Type: typ})
	if err != nil {
		t.Fatalf("create sensor %s: %v", name, err)
	}
	return id
}

func value(t *testing.T, r models.Reading) float64 {
	t.Helper()
	if r.Value == nil {
		t.Fatalf("reading %d has no value", r.ID)
	}
	return *r.Value
}
