package persistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/vetflow-labs/vetflow/database"
)

// Bootstrapper creates the core directory schema (identities, workspaces,
// memberships, invites) on first use. Success is memoized process-wide so the
// DDL runs once; a failed attempt is NOT memoized and will be retried on the
// next access instead of wedging the process into a false "ready" state.
type Bootstrapper struct {
	pool       *pgxpool.Pool
	coreSchema string

	mu    sync.Mutex
	ready bool
}

// NewBootstrapper constructs the lazy core-schema initializer.
func NewBootstrapper(pool *pgxpool.Pool, coreSchema string) *Bootstrapper {
	if pool == nil {
		panic("bootstrapper requires pool")
	}
	if coreSchema == "" {
		panic("bootstrapper requires core schema")
	}
	return &Bootstrapper{pool: pool, coreSchema: coreSchema}
}

// Ensure applies the directory DDL if it has not been applied yet in this
// process. Safe to call before every directory access.
func (b *Bootstrapper) Ensure(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ready {
		return nil
	}

	if err := b.apply(ctx); err != nil {
		return fmt.Errorf("bootstrap core schema %q: %w", b.coreSchema, err)
	}

	b.ready = true
	return nil
}

func (b *Bootstrapper) apply(ctx context.Context) error {
	tx, err := b.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{b.coreSchema}.Sanitize()); err != nil {
		return fmt.Errorf("create core schema: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, false)`, b.coreSchema); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	for _, stmt := range SplitStatements(sqlassets.DirectorySQL) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply directory ddl: %w", err)
		}
	}

	return tx.Commit(ctx)
}
