package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CoreDB wraps a pgx pool to execute queries against the directory schema or
// against one workspace schema, always inside a transaction with the matching
// search_path. Directory access lazily bootstraps the directory tables first.
type CoreDB struct {
	pool       *pgxpool.Pool
	coreSchema string
	boot       *Bootstrapper
}

type CoreDBConfig struct {
	Pool       *pgxpool.Pool
	CoreSchema string
}

func NewCoreDB(cfg CoreDBConfig) *CoreDB {
	if cfg.Pool == nil {
		panic("CoreDB requires pool")
	}

	coreSchema := strings.TrimSpace(cfg.CoreSchema)
	if coreSchema == "" {
		panic("CoreDB requires core schema")
	}

	return &CoreDB{
		pool:       cfg.Pool,
		coreSchema: coreSchema,
		boot:       NewBootstrapper(cfg.Pool, coreSchema),
	}
}

// CoreSchema returns the directory schema name.
func (db *CoreDB) CoreSchema() string { return db.coreSchema }

// Pool exposes the underlying pool for components that manage their own
// transactions (schema provisioning).
func (db *CoreDB) Pool() *pgxpool.Pool { return db.pool }

// EnsureBootstrap applies the directory DDL if needed. WithCore calls it
// implicitly; it is exported for startup checks and CLI use.
func (db *CoreDB) EnsureBootstrap(ctx context.Context) error {
	return db.boot.Ensure(ctx)
}

// WithCore executes fn inside a transaction scoped to the directory schema.
func (db *CoreDB) WithCore(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if err := db.boot.Ensure(ctx); err != nil {
		return err
	}

	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, false)`, db.coreSchema); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// WithSchema executes fn inside a transaction with search_path set to the
// given workspace schema followed by the directory schema, so shared types
// (appointment_status) keep resolving.
func (db *CoreDB) WithSchema(ctx context.Context, schemaName string, fn func(tx pgx.Tx) error) error {
	schemaName = strings.TrimSpace(schemaName)
	if schemaName == "" {
		return fmt.Errorf("schema name is required")
	}

	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	searchPath := fmt.Sprintf("%s, %s", schemaName, db.coreSchema)
	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, false)`, searchPath); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
