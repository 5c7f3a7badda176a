package bootstrap

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vetflow-labs/vetflow/platform/go/persistence"
)

// Command groups bootstrap helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap platform resources (directory schema)",
	}

	cmd.AddCommand(directoryCommand())
	return cmd
}

// directoryCommand applies the directory DDL. The API server does the same
// lazily on first use; running it up front surfaces connectivity and
// permission problems before traffic arrives.
func directoryCommand() *cobra.Command {
	var (
		databaseURL string
		coreSchema  string
	)

	c := &cobra.Command{
		Use:   "directory",
		Short: "Create the workspace directory schema and tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			coreDB := persistence.NewCoreDB(persistence.CoreDBConfig{
				Pool:       pool,
				CoreSchema: coreSchema,
			})
			if err := coreDB.EnsureBootstrap(ctx); err != nil {
				return fmt.Errorf("bootstrap directory: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "directory schema %q ready\n", coreSchema)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string")
	c.Flags().StringVar(&coreSchema, "core-schema", "vetflow", "directory schema name")
	_ = c.MarkFlagRequired("database-url")

	return c
}
