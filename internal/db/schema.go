package db

import (
	"context"
	"database/sql"
	"fmt"
)

/* Migrations creates the tables the signup service needs. Each statement is
 * idempotent so it can run on every start. */
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		full_name TEXT NOT NULL,
		username TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (email);`,
	`CREATE TABLE IF NOT EXISTS signup_rate_limits (
		identifier TEXT NOT NULL,
		limit_type TEXT NOT NULL CHECK (limit_type IN ('ip', 'email', 'global')),
		count BIGINT NOT NULL DEFAULT 0 CHECK (count >= 0),
		window_start TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (identifier, limit_type)
	);`,
	`CREATE INDEX IF NOT EXISTS signup_rate_limits_window_start_idx ON signup_rate_limits (window_start);`,
}

/* Execer runs statements; *sql.DB and *sql.Tx implement it */
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

/* Migrate applies Migrations in order */
func Migrate(ctx context.Context, database Execer) error {
	for i, stmt := range Migrations {
		if _, err := database.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

/* Migrate applies the schema to the queries' database */
func (q *Queries) Migrate(ctx context.Context) error {
	return Migrate(ctx, q.db)
}

/* TableExists reports whether a table is visible on the search path */
func (q *Queries) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, "SELECT to_regclass($1) IS NOT NULL", table).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
