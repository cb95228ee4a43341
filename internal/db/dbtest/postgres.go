// Package dbtest starts a migrated Postgres container for repository integration tests.
// Tests using it are skipped unless TEST_INTEGRATION is set.
package dbtest

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"gym-frontdesk/backend/internal/db"
	"gym-frontdesk/backend/internal/db/migrate"
)

const image = "docker.io/postgres:17-alpine"

// Start runs a Postgres container, applies the embedded migrations and returns an open *sql.DB and
// its DSN. The container and connection are released on test cleanup.
func Start(t *testing.T) (*sql.DB, string) {
	t.Helper()
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, image,
		postgres.WithDatabase("frontdesk_test"),
		postgres.WithUsername("frontdesk"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	if err := migrate.Run(dsn, "up"); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	conn, err := db.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, dsn
}

// Exec runs statements for test fixtures, failing the test on the first error.
func Exec(t *testing.T, conn *sql.DB, statements ...string) {
	t.Helper()
	for _, q := range statements {
		if _, err := conn.ExecContext(context.Background(), q); err != nil {
			t.Fatalf("exec %q: %v", q, err)
		}
	}
}
