// Package database centralises sqlx connection helpers.  The default driver
// is go-sql-driver/mysql, which also works with MariaDB and TiDB when
// configured for the MySQL wire protocol.
//
// Public entry points:
//
//	Open(ctx, dsn)                      – quick helper with conservative pool sizes.
//	OpenWithOptions(ctx, dsn, Options)  – fine-grained control and boot retries.
//
// Both helpers Ping the database before returning so callers can fail fast
// during bootstrap.  Callers should Close() the returned *sqlx.DB when no
// longer needed.
package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DriverName is the sql driver registered by the mysql import.
const DriverName = "mysql"

// Options tunes the pool and the boot-time ping retries.
type Options struct {
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	Retries         uint64        // extra pings after the first failure
	RetryBackoff    time.Duration // initial interval, doubled per retry
	Logger          *zap.SugaredLogger
}

// Open returns a *sqlx.DB with sane defaults: 15 max open, 5 idle, and a
// 30-minute connection lifetime.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	return OpenWithOptions(ctx, dsn, Options{MaxOpen: 15, MaxIdle: 5})
}

// OpenWithOptions opens a pool on dsn and pings it, retrying with
// exponential backoff while the server is unreachable.
func OpenWithOptions(ctx context.Context, dsn string, opts Options) (*sqlx.DB, error) {
	db, err := sqlx.Open(DriverName, dsn)
	if err != nil {
		return nil, err
	}
	if err := Configure(ctx, db, opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Configure applies pool limits to db and pings it with retries.  Split out
// so tests can hand in a sqlmock connection.
func Configure(ctx context.Context, db *sqlx.DB, opts Options) error {
	if opts.ConnMaxLifetime == 0 {
		opts.ConnMaxLifetime = 30 * time.Minute
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.MaxOpen > 0 {
		db.SetMaxOpenConns(opts.MaxOpen)
	}
	if opts.MaxIdle > 0 {
		db.SetMaxIdleConns(opts.MaxIdle)
	}
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = opts.RetryBackoff
	eb.MaxElapsedTime = 0
	var b backoff.BackOff = backoff.WithMaxRetries(eb, opts.Retries)
	b = backoff.WithContext(b, ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		return db.PingContext(ctx)
	}, b, func(err error, wait time.Duration) {
		opts.Logger.Warnw("database ping failed, retrying", "attempt", attempt, "wait", wait, "err", err)
	})
}

// Wrap adapts an existing *sql.DB (for example a sqlmock handle) to sqlx
// using the mysql dialect.
func Wrap(db *sql.DB) *sqlx.DB { return sqlx.NewDb(db, DriverName) }
