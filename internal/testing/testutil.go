package testing

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/weddingdesk/api/internal/db"
)

/* TestDB holds test database connection */
type TestDB struct {
	DB      *sql.DB
	Queries *db.Queries
}

/* SetupTestDB connects to the database named by TEST_DB_* and applies the
 * schema. The test is skipped when no database answers; set
 * TEST_DB_REQUIRED=true to fail instead. */
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("TEST_DB_HOST", "localhost"),
		getEnv("TEST_DB_PORT", "5432"),
		getEnv("TEST_DB_USER", "weddingdesk"),
		getEnv("TEST_DB_PASSWORD", "weddingdesk"),
		getEnv("TEST_DB_NAME", "weddingdesk_test"),
	)

	testDB, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := testDB.PingContext(ctx); err != nil {
		testDB.Close()
		if os.Getenv("TEST_DB_REQUIRED") == "true" {
			t.Fatalf("Failed to ping test database: %v", err)
		}
		t.Skipf("Skipping: test database unavailable: %v", err)
	}

	if err := db.Migrate(ctx, testDB); err != nil {
		testDB.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	tdb := &TestDB{
		DB:      testDB,
		Queries: db.NewQueries(testDB),
	}
	tdb.truncate(t)
	t.Cleanup(func() { tdb.CleanupTestDB(t) })
	return tdb
}

/* CleanupTestDB empties the tables and closes the connection */
func (tdb *TestDB) CleanupTestDB(t *testing.T) {
	t.Helper()
	tdb.truncate(t)
	tdb.DB.Close()
}

func (tdb *TestDB) truncate(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, table := range []string{"signup_rate_limits", "users"} {
		if _, err := tdb.DB.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s", table)); err != nil {
			t.Logf("Warning: Failed to truncate %s: %v", table, err)
		}
	}
}

/* SetupTestRedis starts an in-process redis server and a client for it */
func SetupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
