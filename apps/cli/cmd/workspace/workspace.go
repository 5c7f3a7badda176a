package workspacecmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vetflow-labs/vetflow/domains/workspaces/be/provisioning"
	workspacesrepo "github.com/vetflow-labs/vetflow/domains/workspaces/be/repo"
	"github.com/vetflow-labs/vetflow/domains/workspaces/be/service"
	"github.com/vetflow-labs/vetflow/platform/go/persistence"
	"github.com/vetflow-labs/vetflow/platform/go/webhook"
)

// Command groups workspace helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Workspace utilities (list, reprovision)",
	}

	cmd.AddCommand(listCommand())
	cmd.AddCommand(reprovisionCommand())
	return cmd
}

type connFlags struct {
	databaseURL  string
	coreSchema   string
	schemaPrefix string
}

func (f *connFlags) register(c *cobra.Command) {
	c.Flags().StringVar(&f.databaseURL, "database-url", "", "Postgres connection string")
	c.Flags().StringVar(&f.coreSchema, "core-schema", "vetflow", "directory schema name")
	c.Flags().StringVar(&f.schemaPrefix, "schema-prefix", "ws", "workspace schema prefix")
	_ = c.MarkFlagRequired("database-url")
}

func (f *connFlags) open(ctx context.Context) (*service.Service, func(), error) {
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: f.databaseURL})
	if err != nil {
		return nil, nil, fmt.Errorf("init pool: %w", err)
	}

	coreDB := persistence.NewCoreDB(persistence.CoreDBConfig{
		Pool:       pool,
		CoreSchema: f.coreSchema,
	})
	store := persistence.NewWorkspaceStore(coreDB)
	repo := workspacesrepo.NewPostgresRepository(store, f.schemaPrefix)
	prov := provisioning.NewSchemaProvisioner(pool, f.coreSchema)
	logger := zap.NewNop()

	svc := service.New(repo, prov, webhook.NewNotifier("", logger), logger, service.Config{
		SchemaPrefix: f.schemaPrefix,
	})
	return svc, func() { persistence.ClosePool(pool) }, nil
}

func listCommand() *cobra.Command {
	var flags connFlags

	c := &cobra.Command{
		Use:   "list",
		Short: "List every workspace in the directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			svc, done, err := flags.open(ctx)
			if err != nil {
				return err
			}
			defer done()

			list, err := svc.ListAll(ctx, false)
			if err != nil {
				return fmt.Errorf("list workspaces: %w", err)
			}

			for _, ws := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", ws.ID, ws.Slug, ws.SchemaName, ws.OwnerEmail)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d workspace(s)\n", len(list))
			return nil
		},
	}

	flags.register(c)
	return c
}

// reprovisionCommand re-applies the base DDL to a workspace schema. Useful
// after a partial provisioning failure or to roll out new base tables.
func reprovisionCommand() *cobra.Command {
	var flags connFlags
	var key string

	c := &cobra.Command{
		Use:   "reprovision",
		Short: "Re-apply the base schema DDL for one workspace (by slug or schema name)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			svc, done, err := flags.open(ctx)
			if err != nil {
				return err
			}
			defer done()

			space, err := svc.ResolveSpace(ctx, key)
			if err != nil {
				return fmt.Errorf("resolve workspace %q: %w", key, err)
			}

			ws, err := svc.Reprovision(ctx, space.WorkspaceID)
			if err != nil {
				return fmt.Errorf("reprovision %q: %w", key, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "workspace %s (%s) provisioned\n", ws.Slug, ws.SchemaName)
			return nil
		},
	}

	flags.register(c)
	c.Flags().StringVar(&key, "key", "", "workspace slug or schema name")
	_ = c.MarkFlagRequired("key")

	return c
}
