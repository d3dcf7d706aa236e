// Package repository implements the domain stores on PostgreSQL with pgx.
package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/xenking/pos-checkout/db"
)

// Querier is the statement surface shared by *pgxpool.Pool and pgx.Tx.
// Repositories built on a pgx.Tx take part in that transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DBPool matches the methods from *pgxpool.Pool used by this package so the
// database can be mocked in tests.
type DBPool interface {
	Querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

var _ DBPool = (*pgxpool.Pool)(nil)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}

	return pool, nil
}

// Migrate applies all pending embedded migrations and returns the resulting
// schema version.
func Migrate(pool *pgxpool.Pool) (uint, error) {
	src, err := iofs.New(db.Migrations, db.MigrationsDir)
	if err != nil {
		return 0, errors.Wrap(err, "create migration source")
	}

	// Closing sqlDB leaves the pool open.
	sqlDB := stdlib.OpenDBFromPool(pool)
	driver, err := migratepgx.WithInstance(sqlDB, &migratepgx.Config{})
	if err != nil {
		_ = sqlDB.Close()
		return 0, errors.Wrap(err, "create migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		_ = sqlDB.Close()
		return 0, errors.Wrap(err, "create migrator")
	}
	defer func() {
		_, _ = m.Close()
		_ = sqlDB.Close()
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, errors.Wrap(err, "run migrations")
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, errors.Wrap(err, "read migration version")
	}
	if dirty {
		return version, errors.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

// uniqueViolation reports whether err is a unique constraint violation on
// constraint.
func uniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

// txConflict reports whether err is a deadlock or serialization failure that
// aborted the transaction.
func txConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40P01" || pgErr.Code == "40001"
}
