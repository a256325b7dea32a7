package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrDuplicateUser is returned when a unique constraint on users rejects an insert
var ErrDuplicateUser = errors.New("user already exists")

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

const uniqueViolation = "23505"

// Queries provides database operations
type Queries struct {
	db *sql.DB
}

// NewQueries creates a new Queries instance
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// GetDB returns the underlying database connection
func (q *Queries) GetDB() *sql.DB {
	return q.db
}

// Ping checks that the database answers
func (q *Queries) Ping(ctx context.Context) error {
	return q.db.PingContext(ctx)
}

// User operations

// CreateUser creates a new user
func (q *Queries) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.UpdatedAt = time.Now()

	query := `
		INSERT INTO users (id, email, full_name, username, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := q.db.ExecContext(ctx, query,
		user.ID, user.Email, user.FullName, user.Username, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateUser, pgErr.ConstraintName)
		}
		return err
	}
	return nil
}

// GetUserByEmail gets a user by normalized email
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User

	query := `
		SELECT id, email, full_name, username, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	err := q.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID, &user.Email, &user.FullName, &user.Username, &user.PasswordHash,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &user, nil
}

// Rate limit operations

// IncrementRateLimitWindow atomically resets an expired window and counts one
// attempt. The conflicting row stays locked for the duration of the upsert, so
// concurrent callers on one key are serialized.
func (q *Queries) IncrementRateLimitWindow(ctx context.Context, identifier, limitType string, window time.Duration, now time.Time) (int64, time.Time, error) {
	query := `
		INSERT INTO signup_rate_limits (identifier, limit_type, count, window_start)
		VALUES ($1, $2, 1, $3::timestamptz)
		ON CONFLICT (identifier, limit_type) DO UPDATE SET
			count = CASE
				WHEN signup_rate_limits.window_start + make_interval(secs => $4::double precision) <= $3::timestamptz THEN 1
				ELSE signup_rate_limits.count + 1
			END,
			window_start = CASE
				WHEN signup_rate_limits.window_start + make_interval(secs => $4::double precision) <= $3::timestamptz THEN $3::timestamptz
				ELSE signup_rate_limits.window_start
			END
		RETURNING count, window_start
	`
	var count int64
	var start time.Time
	err := q.db.QueryRowContext(ctx, query, identifier, limitType, now, window.Seconds()).Scan(&count, &start)
	if err != nil {
		return 0, time.Time{}, err
	}
	return count, start, nil
}

// GetRateLimitWindow reads a window without touching it
func (q *Queries) GetRateLimitWindow(ctx context.Context, identifier, limitType string) (*RateLimitWindow, error) {
	var w RateLimitWindow

	query := `
		SELECT identifier, limit_type, count, window_start
		FROM signup_rate_limits
		WHERE identifier = $1 AND limit_type = $2
	`
	err := q.db.QueryRowContext(ctx, query, identifier, limitType).Scan(
		&w.Identifier, &w.LimitType, &w.Count, &w.WindowStart)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

// DeleteExpiredRateLimitWindows removes windows older than maxWindow
func (q *Queries) DeleteExpiredRateLimitWindows(ctx context.Context, maxWindow time.Duration, now time.Time) (int64, error) {
	query := `
		DELETE FROM signup_rate_limits
		WHERE window_start + make_interval(secs => $1::double precision) <= $2::timestamptz
	`
	res, err := q.db.ExecContext(ctx, query, maxWindow.Seconds(), now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
