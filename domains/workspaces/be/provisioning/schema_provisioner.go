package provisioning

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/vetflow-labs/vetflow/database"
	"github.com/vetflow-labs/vetflow/platform/go/persistence"
)

// ErrInvalidSchemaName rejects anything that is not a plain lowercase
// identifier before it gets near DDL.
var ErrInvalidSchemaName = errors.New("invalid schema name")

var schemaNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// SchemaProvisioner creates per-workspace schemas and applies the clinical
// table set inside them. The directory schema stays on the search_path so
// shared types (appointment_status) resolve from workspace DDL.
type SchemaProvisioner struct {
	pool       *pgxpool.Pool
	coreSchema string
}

func NewSchemaProvisioner(pool *pgxpool.Pool, coreSchema string) *SchemaProvisioner {
	if pool == nil {
		panic("schema provisioner requires pool")
	}
	coreSchema = strings.TrimSpace(coreSchema)
	if coreSchema == "" {
		panic("schema provisioner requires core schema")
	}
	return &SchemaProvisioner{pool: pool, coreSchema: coreSchema}
}

// EnsureWorkspaceSchema creates the schema if missing and applies every
// workspace asset in one transaction. The assets are additive (IF NOT EXISTS
// and ADD COLUMN IF NOT EXISTS throughout), so re-running against an already
// provisioned schema upgrades it in place.
func (p *SchemaProvisioner) EnsureWorkspaceSchema(ctx context.Context, schemaName string) error {
	schemaName, err := normalizeSchemaName(schemaName)
	if err != nil {
		return err
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	ident := pgx.Identifier{schemaName}.Sanitize()
	if _, err := tx.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", ident)); err != nil {
		return fmt.Errorf("create schema %s: %w", schemaName, err)
	}

	searchPath := fmt.Sprintf("%s, %s", schemaName, p.coreSchema)
	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, searchPath); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	for _, script := range []string{sqlassets.WorkspaceBaseSQL, sqlassets.WorkspaceClientsSQL} {
		for _, stmt := range persistence.SplitStatements(script) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply workspace asset: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit provision: %w", err)
	}
	return nil
}

// DropWorkspaceSchema removes the schema and everything in it.
func (p *SchemaProvisioner) DropWorkspaceSchema(ctx context.Context, schemaName string) error {
	schemaName, err := normalizeSchemaName(schemaName)
	if err != nil {
		return err
	}

	ident := pgx.Identifier{schemaName}.Sanitize()
	if _, err := p.pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", ident)); err != nil {
		return fmt.Errorf("drop schema %s: %w", schemaName, err)
	}
	return nil
}

func normalizeSchemaName(schemaName string) (string, error) {
	schemaName = strings.ToLower(strings.TrimSpace(schemaName))
	schemaName = strings.Join(strings.Fields(schemaName), "_")
	if schemaName == "" || !schemaNamePattern.MatchString(schemaName) {
		return "", ErrInvalidSchemaName
	}
	return schemaName, nil
}
