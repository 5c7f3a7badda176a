package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the vetflow admin CLI. Subcommands (auth,
// bootstrap, workspace) are attached here.
var rootCmd = &cobra.Command{
	Use:           "vetflow",
	Short:         "Vetflow admin CLI",
	Long:          "Administrative utilities for vetflow (dev tokens, directory bootstrap, workspace management).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
