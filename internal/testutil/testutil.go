// Package testutil provides database, Redis and fixture helpers shared by package tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	// Import pgx driver for database/sql compatibility in tests.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/target/hrm-scheduler/internal/migrate"
)

// TestDBConfig holds configuration for the test database.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig returns default test database configuration.
// Defaults to port 55432 (local test DB from the docker-compose test profile).
// CI environments should set TEST_DB_PORT=5432 explicitly.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:     getEnvOrDefault("TEST_DB_PORT", "55432"),
		User:     getEnvOrDefault("TEST_DB_USER", "hrm"),
		Password: getEnvOrDefault("TEST_DB_PASSWORD", "hrm"),
		DBName:   getEnvOrDefault("TEST_DB_NAME", "hrm_scheduler"),
	}
}

func (c TestDBConfig) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		c.User, c.Password, net.JoinHostPort(c.Host, c.Port), c.DBName,
		getEnvOrDefault("DB_SSL_MODE", "disable"))
}

// TestingTB is an interface that covers both *testing.T and *testing.B.
type TestingTB interface {
	Helper()
	Skip(args ...any)
	Skipf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// SkipIfNoTestDB skips the test if the test database is not reachable.
// Set TEST_REQUIRE_DB=1 to fail instead.
func SkipIfNoTestDB(t TestingTB) {
	t.Helper()

	db, err := sql.Open("pgx", DefaultTestDBConfig().dsn())
	if err != nil {
		skipOrFail(t, requireDB(), "Test database not available:", err)
		return
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			t.Logf("test db close failed: %v", cerr)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if pingErr := db.PingContext(ctx); pingErr != nil {
		skipOrFail(t, requireDB(), "Test database not available:", pingErr)
	}
}

// SetupTestDB opens the test database, applies migrations and clears existing rows.
func SetupTestDB(t TestingTB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	db, err := sql.Open("pgx", DefaultTestDBConfig().dsn())
	if err != nil {
		t.Fatal("Failed to open database:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		t.Fatal("Failed to connect to test database. Make sure PostgreSQL is running (docker-compose up -d):", err)
	}
	if err := migrate.Run(ctx, db, nil); err != nil {
		t.Fatal("Failed to run migrations:", err)
	}
	CleanupTestDB(t, db)
	return db
}

// CleanupTestDB removes all rows written by tests.
func CleanupTestDB(t TestingTB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "DELETE FROM job_runs"); err != nil {
		t.Fatalf("Failed to clean up table job_runs: %v", err)
	}
}

// WithAutoDB sets up the test database, runs fn and tears everything down.
func WithAutoDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	db := SetupTestDB(t)
	defer func() {
		CleanupTestDB(t, db)
		if err := db.Close(); err != nil {
			t.Logf("warning: failed to close test db: %v", err)
		}
	}()
	fn(db)
}

// SetupTestRedis returns a client for the test Redis on an empty database.
// Address comes from REDIS_ADDR (default localhost:6379); tests use DB index 15.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		DB:   15,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if cerr := client.Close(); cerr != nil {
			t.Logf("warning: failed to close redis client after ping error: %v", cerr)
		}
		skipOrFail(t, requireRedis(), "Redis not available for testing:", err)
		return nil
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush test redis: %v", err)
	}
	return client
}

func skipOrFail(t TestingTB, required bool, args ...any) {
	t.Helper()
	if required {
		t.Fatal(args...)
	}
	t.Skip(args...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envBool parses common truthy values from env vars.
func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func requireDB() bool    { return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") }
func requireRedis() bool { return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") }

// TestTime returns a fixed reference time for tests: 2025-01-10 10:00 in UTC.
func TestTime() time.Time {
	return time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
}

// StringPtr returns a pointer to the given string value.
func StringPtr(s string) *string {
	return &s
}
