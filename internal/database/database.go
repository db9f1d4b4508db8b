// FilePath: server/sensorlog/internal/database/database.go
package database

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/config"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/errors"
	"github.com/jmoiron/sqlx"
	nuts "github.com/vaudience/go-nuts"
	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite
const DriverName = "sqlite"

func init() {
	sqlx.BindDriver(DriverName, sqlx.QUESTION)
}

// Pool is a fixed-size set of connections to one SQLite file. Connections
// are handed out as Guards and must be released after use.
type Pool struct {
	db             *sqlx.DB
	path           string
	size           int
	acquireTimeout time.Duration
	inUse          atomic.Int64
	closed         atomic.Bool
	closeOnce      sync.Once
}

// PoolStats is a point-in-time view of pool usage
type PoolStats struct {
	Size         int           `json:"size"`
	Open         int           `json:"open"`
	InUse        int           `json:"in_use"`
	Idle         int           `json:"idle"`
	WaitCount    int64         `json:"wait_count"`
	WaitDuration time.Duration `json:"wait_duration"`
}

// DSN builds the modernc connection string. Every pragma is applied to each
// new connection, so all pooled connections share the same settings.
func DSN(cfg config.DatabaseConfig) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("synchronous(%s)", cfg.Synchronous))
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	if cfg.CacheSizeKB > 0 {
		// negative cache_size is in KiB rather than pages
		q.Add("_pragma", fmt.Sprintf("cache_size(-%d)", cfg.CacheSizeKB))
	}
	q.Add("_pragma", "temp_store(MEMORY)")
	q.Set("_txlock", "immediate")
	return cfg.Path + "?" + q.Encode()
}

// Open creates the pool and verifies the store is reachable and in WAL mode
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	if cfg.Path == "" {
		return nil, errors.NewValidationError("database path is required", nil)
	}
	if cfg.PoolSize < 1 {
		return nil, errors.NewValidationError(fmt.Sprintf("pool size must be at least 1, got %d", cfg.PoolSize), nil)
	}
	if cfg.Synchronous == "" {
		cfg.Synchronous = "NORMAL"
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.NewUnavailableError("failed to create database directory", err)
		}
	}

	db, err := sqlx.Open(DriverName, DSN(cfg))
	if err != nil {
		return nil, errors.NewUnavailableError("failed to open database", err)
	}
	db.SetMaxOpenConns(cfg.PoolSize)
	db.SetMaxIdleConns(cfg.PoolSize)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.NewUnavailableError(fmt.Sprintf("failed to reach database %s", cfg.Path), err)
	}

	var mode string
	if err := db.GetContext(pingCtx, &mode, "PRAGMA journal_mode"); err != nil {
		db.Close()
		return nil, Classify(err, "failed to read journal mode")
	}
	if mode != "wal" {
		db.Close()
		return nil, errors.NewUnavailableError(fmt.Sprintf("database %s is in %s mode, WAL is required", cfg.Path, mode), nil)
	}

	timeout := cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	nuts.L.Infof("[Database] Opened %s (pool size %d, acquire timeout %s)", cfg.Path, cfg.PoolSize, timeout)
	return &Pool{
		db:             db,
		path:           cfg.Path,
		size:           cfg.PoolSize,
		acquireTimeout: timeout,
	}, nil
}

// Acquire obtains a connection within the configured acquire timeout
func (p *Pool) Acquire(ctx context.Context) (*Guard, error) {
	return p.AcquireWithin(ctx, p.acquireTimeout)
}

// AcquireWithin obtains a connection, failing with ResourceExhausted when
// none becomes available before timeout elapses.
func (p *Pool) AcquireWithin(ctx context.Context, timeout time.Duration) (*Guard, error) {
	if p.closed.Load() {
		return nil, errors.NewUnavailableError("connection pool is closed", nil)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := p.db.Connx(actx)
	if err != nil {
		return nil, classifyAcquire(err, timeout)
	}
	p.inUse.Add(1)
	return &Guard{conn: conn, pool: p}, nil
}

func classifyAcquire(err error, timeout time.Duration) error {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewResourceExhaustedError(fmt.Sprintf("no connection available within %s", timeout), err)
	case stderrors.Is(err, context.Canceled):
		return errors.NewResourceExhaustedError("connection acquisition cancelled", err)
	}
	return Classify(err, "failed to acquire connection")
}

// WithConn runs fn on a pooled connection and releases it afterwards, also on panic.
func (p *Pool) WithConn(ctx context.Context, fn func(ctx context.Context, conn *sqlx.Conn) error) error {
	g, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer g.Release()
	return fn(ctx, g.Conn())
}

// WithTx runs fn inside a write transaction on a pooled connection. The
// transaction context is detached from ctx cancellation: once begun, the
// transaction runs until fn returns and is then committed or rolled back.
func (p *Pool) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	g, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer g.Release()
	return g.WithTx(ctx, fn)
}

// Stats reports pool usage
func (p *Pool) Stats() PoolStats {
	s := p.db.Stats()
	return PoolStats{
		Size:         p.size,
		Open:         s.OpenConnections,
		InUse:        int(p.inUse.Load()),
		Idle:         s.Idle,
		WaitCount:    s.WaitCount,
		WaitDuration: s.WaitDuration,
	}
}

// Size returns the fixed pool size
func (p *Pool) Size() int {
	return p.size
}

// Path returns the database file path
func (p *Pool) Path() string {
	return p.path
}

// DB exposes the underlying handle for schema tooling
func (p *Pool) DB() *sqlx.DB {
	return p.db
}

// Close tears the pool down. Connections still held are closed when released.
func (p *Pool) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		err = p.db.Close()
		nuts.L.Infof("[Database] Closed %s", p.path)
	})
	return err
}

// Guard is a scoped handle to one pooled connection
type Guard struct {
	conn     *sqlx.Conn
	pool     *Pool
	released atomic.Bool
}

// Conn returns the guarded connection
func (g *Guard) Conn() *sqlx.Conn {
	return g.conn
}

// Release returns the connection to the pool. It is safe to call more than once.
func (g *Guard) Release() {
	if !g.released.CompareAndSwap(false, true) {
		return
	}
	g.pool.inUse.Add(-1)
	if err := g.conn.Close(); err != nil && !stderrors.Is(err, sql.ErrConnDone) {
		nuts.L.Warnf("[Database] Failed to release connection: %v", err)
	}
}

// WithTx runs fn in a BEGIN IMMEDIATE transaction on the guarded connection
func (g *Guard) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) (err error) {
	txCtx := context.WithoutCancel(ctx)
	tx, err := g.conn.BeginTxx(txCtx, nil)
	if err != nil {
		return Classify(err, "failed to begin transaction")
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !stderrors.Is(rbErr, sql.ErrTxDone) {
				nuts.L.Warnf("[Database] Rollback failed: %v", rbErr)
			}
		}
	}()

	if err = fn(txCtx, tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return Classify(err, "failed to commit transaction")
	}
	return nil
}
