package migrate

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/config"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/database"
)

func openPool(t *testing.T) *database.Pool {
	t.Helper()
	pool, err := database.Open(context.Background(), config.DatabaseConfig{
		Path:           filepath.Join(t.TempDir(), "migrate.db"),
		PoolSize:       2,
		AcquireTimeout: time.Second,
		BusyTimeout:    time.Second,
		Synchronous:    "NORMAL",
	})
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

func objectExists(t *testing.T, pool *database.Pool, kind, name string) bool {
	t.Helper()
	var n int
	err := pool.DB().Get(&n, "SELECT count(*) FROM sqlite_master WHERE type = ? AND name = ?", kind, name)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return n > 0
}

func TestUpAppliesEmbeddedMigrations(t *testing.T) {
	pool := openPool(t)
	m := New(pool)

	if _, ok, err := m.Version(); err != nil || ok {
		t.Fatalf("fresh store Version() = ok %v, err %v; want no version", ok, err)
	}
	if err := m.Up(); err != nil {
		t.Fatalf("Up: %v", err)
	}

	v, ok, err := m.Version()
	if err != nil || !ok {
		t.Fatalf("Version() after Up: ok %v, err %v", ok, err)
	}
	if v != 4 {
		t.Errorf("version = %d, want 4", v)
	}

	for _, tbl := range []string{"sensors", "readings", "logging_sessions"} {
		if !objectExists(t, pool, "table", tbl) {
			t.Errorf("table %s missing", tbl)
		}
	}
	for _, idx := range []string{
		"idx_readings_sensor_timestamp",
		"idx_readings_timestamp",
		"idx_sensors_type",
		"idx_sensors_location",
		"idx_logging_sessions_sensor_end",
	} {
		if !objectExists(t, pool, "index", idx) {
			t.Errorf("index %s missing", idx)
		}
	}
	if !objectExists(t, pool, "view", "current_readings") {
		t.Errorf("view current_readings missing")
	}
}

func TestUpIsIdempotent(t *testing.T) {
	pool := openPool(t)
	if err := Run(pool, "up"); err != nil {
		t.Fatalf("first Up: %v", err)
	}
	if err := Run(pool, "up"); err != nil {
		t.Fatalf("second Up should be a no-op, got %v", err)
	}
}

func TestRunRejectsUnknownDirection(t *testing.T) {
	pool := openPool(t)
	if err := Run(pool, "sideways"); err == nil {
		t.Fatalf("expected error for unknown direction")
	}
}

func TestFailedMigrationKeepsLastCommittedVersion(t *testing.T) {
	pool := openPool(t)
	fsys := fstest.MapFS{
		"m/000001_first.up.sql":    {Data: []byte("CREATE TABLE first (id INTEGER PRIMARY KEY);")},
		"m/000001_first.down.sql":  {Data: []byte("DROP TABLE first;")},
		"m/000002_broken.up.sql":   {Data: []byte("CREATE TABLE partial (id INTEGER);\nINSERT INTO no_such_table VALUES (1);")},
		"m/000002_broken.down.sql": {Data: []byte("DROP TABLE partial;")},
	}
	m := NewWithSource(pool, fsys, "m")

	if err := m.Up(); err == nil {
		t.Fatalf("expected Up to fail on the broken migration")
	}

	v, ok, err := m.Version()
	if err != nil {
		t.Fatalf("Version() after failure: %v", err)
	}
	if !ok || v != 1 {
		t.Errorf("version = %d (ok %v), want 1", v, ok)
	}
	if !objectExists(t, pool, "table", "first") {
		t.Errorf("table from committed migration missing")
	}
	if objectExists(t, pool, "table", "partial") {
		t.Errorf("table from failed migration survived rollback")
	}
}

func TestFailedFirstMigrationLeavesNoVersion(t *testing.T) {
	pool := openPool(t)
	fsys := fstest.MapFS{
		"m/000001_broken.up.sql":   {Data: []byte("CREATE TABLE oops (id INTEGER);\nSELECT * FROM nowhere;")},
		"m/000001_broken.down.sql": {Data: []byte("DROP TABLE oops;")},
	}
	m := NewWithSource(pool, fsys, "m")
	if err := m.Up(); err == nil {
		t.Fatalf("expected Up to fail")
	}
	if _, ok, err := m.Version(); err != nil || ok {
		t.Fatalf("Version() = ok %v, err %v; want no version", ok, err)
	}
}

func TestDownRevertsEverything(t *testing.T) {
	pool := openPool(t)
	m := New(pool)
	if err := m.Up(); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := m.Down(); err != nil {
		t.Fatalf("Down: %v", err)
	}
	if _, ok, err := m.Version(); err != nil || ok {
		t.Fatalf("Version() after Down = ok %v, err %v", ok, err)
	}
	if objectExists(t, pool, "table", "sensors") {
		t.Errorf("sensors table still present after Down")
	}
}

func TestStepsMovesOneVersion(t *testing.T) {
	pool := openPool(t)
	m := New(pool)
	if err := m.Steps(2); err != nil {
		t.Fatalf("Steps(2): %v", err)
	}
	if v, _, _ := m.Version(); v != 2 {
		t.Fatalf("version = %d, want 2", v)
	}
	if err := m.Steps(-1); err != nil {
		t.Fatalf("Steps(-1): %v", err)
	}
	if v, _, _ := m.Version(); v != 1 {
		t.Fatalf("version = %d, want 1", v)
	}
}
