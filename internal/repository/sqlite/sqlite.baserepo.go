package sqlite

import (
	"context"
	"time"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/database"
	"github.com/jmoiron/sqlx"
)

// SQLiteBaseRepo carries what every repository needs: the pool and a clock
type SQLiteBaseRepo struct {
	pool *database.Pool
	now  func() time.Time
}

func newBaseRepo(pool *database.Pool) SQLiteBaseRepo {
	return SQLiteBaseRepo{pool: pool, now: time.Now}
}

func (r *SQLiteBaseRepo) unixNow() int64 {
	return r.now().Unix()
}

// read runs fn on one pooled connection; each statement sees a consistent snapshot
func (r *SQLiteBaseRepo) read(ctx context.Context, fn func(ctx context.Context, conn *sqlx.Conn) error) error {
	return r.pool.WithConn(ctx, fn)
}

// write runs fn in one write transaction
func (r *SQLiteBaseRepo) write(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	return r.pool.WithTx(ctx, fn)
}

// Ping checks that a connection can be acquired and used
func (r *SQLiteBaseRepo) Ping(ctx context.Context) error {
	return r.read(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		return database.Classify(conn.PingContext(ctx), "failed to ping database")
	})
}
