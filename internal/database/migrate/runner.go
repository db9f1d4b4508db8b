// Package migrate applies the embedded schema migrations with golang-migrate.
// Every migration runs in its own transaction; a failed migration leaves the
// store at the last migration that committed.
package migrate

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/database"
	nuts "github.com/vaudience/go-nuts"
)

// MigrationsTable records the applied schema version
const MigrationsTable = "schema_migrations"

// ErrNoChange is returned when Up/Down has nothing to do (already at target version).
var ErrNoChange = migrate.ErrNoChange

// Manager runs versioned migrations against a pool's database
type Manager struct {
	pool *database.Pool
	fsys fs.FS
	dir  string
}

// New returns a Manager over the embedded migrations
func New(pool *database.Pool) *Manager {
	return NewWithSource(pool, database.MigrationFS, "migrations")
}

// NewWithSource returns a Manager reading migrations from dir within fsys
func NewWithSource(pool *database.Pool, fsys fs.FS, dir string) *Manager {
	return &Manager{pool: pool, fsys: fsys, dir: dir}
}

// Run applies migrations in the given direction: "up" or "down".
// Already being at the target version is not an error.
func Run(pool *database.Pool, direction string) error {
	m := New(pool)
	switch direction {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	default:
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}
}

// Up applies every pending migration in ascending version order
func (m *Manager) Up() error {
	return m.run("up", func(mg *migrate.Migrate) error { return mg.Up() })
}

// Down reverts every applied migration
func (m *Manager) Down() error {
	return m.run("down", func(mg *migrate.Migrate) error { return mg.Down() })
}

// Steps applies n migrations forward, or -n backward when n is negative
func (m *Manager) Steps(n int) error {
	return m.run(fmt.Sprintf("steps(%d)", n), func(mg *migrate.Migrate) error { return mg.Steps(n) })
}

// Version returns the applied schema version. ok is false when no migration
// has been applied yet.
func (m *Manager) Version() (version uint, ok bool, err error) {
	mg, src, err := m.open()
	if err != nil {
		return 0, false, err
	}
	defer src.Close()

	v, dirty, err := mg.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return v, true, fmt.Errorf("schema version %d is dirty", v)
	}
	return v, true, nil
}

func (m *Manager) run(op string, fn func(mg *migrate.Migrate) error) error {
	mg, src, err := m.open()
	if err != nil {
		return err
	}
	// mg.Close would close the pool's *sql.DB; only the source is released here.
	defer src.Close()

	if err := m.clearDirty(mg, src); err != nil {
		return err
	}

	if err := fn(mg); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			nuts.L.Debugf("[Migrate] %s: schema already at target version", op)
			return nil
		}
		if rerr := m.clearDirty(mg, src); rerr != nil {
			nuts.L.Errorf("[Migrate] %s: failed to restore last committed version: %v", op, rerr)
		}
		return fmt.Errorf("migrate %s: %w", op, err)
	}

	if v, _, err := mg.Version(); err == nil {
		nuts.L.Infof("[Migrate] %s: schema at version %d", op, v)
	}
	return nil
}

// clearDirty resets a dirty version flag to the previous migration. The body
// of the failed migration was rolled back with its transaction, so the
// previous version is what the store actually holds.
func (m *Manager) clearDirty(mg *migrate.Migrate, src source.Driver) error {
	v, dirty, err := mg.Version()
	if errors.Is(err, migrate.ErrNilVersion) || (err == nil && !dirty) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	target := migratedb.NilVersion
	prev, err := src.Prev(v)
	switch {
	case err == nil:
		target = int(prev)
	case errors.Is(err, fs.ErrNotExist):
	default:
		return fmt.Errorf("find migration before %d: %w", v, err)
	}

	nuts.L.Warnf("[Migrate] Version %d is dirty, forcing back to %d", v, target)
	if err := mg.Force(target); err != nil {
		return fmt.Errorf("force version %d: %w", target, err)
	}
	return nil
}

func (m *Manager) open() (*migrate.Migrate, source.Driver, error) {
	src, err := iofs.New(m.fsys, m.dir)
	if err != nil {
		return nil, nil, fmt.Errorf("migrate source: %w", err)
	}
	drv, err := sqlitemigrate.WithInstance(m.pool.DB().DB, &sqlitemigrate.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		src.Close()
		return nil, nil, database.Classify(err, "failed to prepare migration driver")
	}
	mg, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	mg.Log = logger{}
	return mg, src, nil
}

type logger struct{}

func (logger) Printf(format string, v ...interface{}) {
	nuts.L.Debugf("[Migrate] "+format, v...)
}

func (logger) Verbose() bool { return false }
