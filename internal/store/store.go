// Package store is the durable repository behind the session relay: a
// PostgreSQL-backed implementation of transactional session/event/error
// persistence and the historical query surface the Frontend exposes.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/sessionrelay/sessionrelay/internal/config"
)

// DB wraps a sql.DB connection to PostgreSQL.
type DB struct {
	conn *sql.DB
}

// Open creates a new DB connection pool and runs all pending migrations.
func Open(cfg config.Config) (*DB, error) {
	conn, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if cfg.DBMaxConnections > 0 {
		conn.SetMaxOpenConns(cfg.DBMaxConnections)
		conn.SetMaxIdleConns(cfg.DBMaxConnections)
	}
	if cfg.DBIdleTimeout > 0 {
		conn.SetConnMaxIdleTime(time.Duration(cfg.DBIdleTimeout) * time.Second)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	migrationsFS, err := fs.Sub(MigrationFS, "migrations")
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations sub-fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, conn, migrationsFS)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create migration provider: %w", err)
	}

	// Goose runs each migration in a transaction by default (useTx=true),
	// so a failing statement rolls back fully and goose_db_version is not
	// advanced past the failed version.
	if _, err := provider.Up(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for use by other packages if needed.
func (d *DB) Conn() *sql.DB {
	return d.conn
}
