package persistence

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vetflow-labs/vetflow/platform/go/workspace"
)

// mustTestCoreDB creates a pool against TEST_DATABASE_URL, bootstraps the
// directory schema into a throwaway core schema, and drops it on cleanup.
func mustTestCoreDB(t *testing.T) *CoreDB {
	t.Helper()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, testDatabaseURL(t))
	if err != nil {
		t.Fatalf("create test pool: %v", err)
	}

	coreSchema := "vetflow_test_" + workspace.RandomToken(4)
	db := NewCoreDB(CoreDBConfig{Pool: pool, CoreSchema: coreSchema})
	if err := db.EnsureBootstrap(ctx); err != nil {
		pool.Close()
		t.Fatalf("bootstrap test core schema: %v", err)
	}

	t.Cleanup(func() {
		ident := pgx.Identifier{coreSchema}.Sanitize()
		_, _ = pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", ident))
		pool.Close()
	})

	return db
}

// testDatabaseURL skips the test unless TEST_DATABASE_URL points at a
// reachable Postgres.
func testDatabaseURL(t *testing.T) string {
	t.Helper()

	url, ok := os.LookupEnv("TEST_DATABASE_URL")
	if !ok || url == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping integration test")
	}
	return url
}
