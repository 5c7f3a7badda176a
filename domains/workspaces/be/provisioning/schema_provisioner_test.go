package provisioning

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/vetflow-labs/vetflow/platform/go/persistence"
	"github.com/vetflow-labs/vetflow/platform/go/workspace"
)

func TestNormalizeSchemaName(t *testing.T) {
	testCases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "ws_clinica_a1b2", "ws_clinica_a1b2", false},
		{"uppercase folded", "WS_Clinica_A1B2", "ws_clinica_a1b2", false},
		{"surrounding space trimmed", "  ws_clinica  ", "ws_clinica", false},
		{"inner whitespace collapses to underscore", "ws clinica", "ws_clinica", false},
		{"empty", "   ", "", true},
		{"injection attempt", `ws"; DROP SCHEMA core; --`, "", true},
		{"leading digit", "1ws", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := normalizeSchemaName(tc.in)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidSchemaName)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

// mustTestPool skips unless TEST_DATABASE_URL points at a reachable Postgres,
// then bootstraps a throwaway directory schema so shared types exist.
func mustTestPool(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()

	url, ok := os.LookupEnv("TEST_DATABASE_URL")
	if !ok || url == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)

	coreSchema := "vetflow_test_" + workspace.RandomToken(4)
	coreDB := persistence.NewCoreDB(persistence.CoreDBConfig{Pool: pool, CoreSchema: coreSchema})
	if err := coreDB.EnsureBootstrap(ctx); err != nil {
		pool.Close()
		t.Fatalf("bootstrap test core schema: %v", err)
	}

	t.Cleanup(func() {
		ident := pgx.Identifier{coreSchema}.Sanitize()
		_, _ = pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", ident))
		pool.Close()
	})

	return pool, coreSchema
}

func TestEnsureWorkspaceSchemaIsIdempotent(t *testing.T) {
	pool, coreSchema := mustTestPool(t)
	ctx := context.Background()

	schemaName := "ws_test_" + workspace.RandomToken(4)
	prov := NewSchemaProvisioner(pool, coreSchema)
	t.Cleanup(func() {
		_ = prov.DropWorkspaceSchema(ctx, schemaName)
	})

	require.NoError(t, prov.EnsureWorkspaceSchema(ctx, schemaName))
	require.NoError(t, prov.EnsureWorkspaceSchema(ctx, schemaName))

	for _, table := range []string{"files", "appointments", "clients", "client_notes"} {
		var found bool
		err := pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = $1 AND table_name = $2
			)`, schemaName, table).Scan(&found)
		require.NoError(t, err)
		require.True(t, found, "table %s missing from %s", table, schemaName)
	}

	// appointments.status depends on a type owned by the directory schema,
	// so a successful ensure proves the search_path includes it.
	var udt string
	err := pool.QueryRow(ctx, `
		SELECT udt_name FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = 'appointments' AND column_name = 'status'`,
		schemaName).Scan(&udt)
	require.NoError(t, err)
	require.Equal(t, "appointment_status", udt)
}

func TestDropWorkspaceSchemaRemovesEverything(t *testing.T) {
	pool, coreSchema := mustTestPool(t)
	ctx := context.Background()

	schemaName := "ws_test_" + workspace.RandomToken(4)
	prov := NewSchemaProvisioner(pool, coreSchema)

	require.NoError(t, prov.EnsureWorkspaceSchema(ctx, schemaName))
	require.NoError(t, prov.DropWorkspaceSchema(ctx, schemaName))
	// A second drop on a missing schema is a no-op.
	require.NoError(t, prov.DropWorkspaceSchema(ctx, schemaName))

	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`,
		schemaName).Scan(&exists)
	require.NoError(t, err)
	require.False(t, exists)
}
