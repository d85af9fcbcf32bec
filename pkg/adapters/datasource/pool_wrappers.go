package datasource

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPoolWrapper wraps *pgxpool.Pool to implement PoolConnector
type PostgresPoolWrapper struct {
	pool *pgxpool.Pool
}

// NewPostgresPoolWrapper creates a new PostgreSQL pool wrapper
func NewPostgresPoolWrapper(pool *pgxpool.Pool) *PostgresPoolWrapper {
	return &PostgresPoolWrapper{pool: pool}
}

func (w *PostgresPoolWrapper) Ping(ctx context.Context) error {
	return w.pool.Ping(ctx)
}

func (w *PostgresPoolWrapper) Close() error {
	w.pool.Close()
	return nil
}

func (w *PostgresPoolWrapper) GetType() string {
	return string(DialectPostgres)
}

// GetPool returns the underlying *pgxpool.Pool
func (w *PostgresPoolWrapper) GetPool() *pgxpool.Pool {
	return w.pool
}

// SQLDBPoolWrapper wraps a database/sql handle (MySQL, SQLite) to implement PoolConnector.
type SQLDBPoolWrapper struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLDBPoolWrapper creates a wrapper tagged with its dialect.
func NewSQLDBPoolWrapper(db *sql.DB, dialect Dialect) *SQLDBPoolWrapper {
	return &SQLDBPoolWrapper{db: db, dialect: dialect}
}

func (w *SQLDBPoolWrapper) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

func (w *SQLDBPoolWrapper) Close() error {
	return w.db.Close()
}

func (w *SQLDBPoolWrapper) GetType() string {
	return string(w.dialect)
}

// GetDB returns the underlying *sql.DB
func (w *SQLDBPoolWrapper) GetDB() *sql.DB {
	return w.db
}
