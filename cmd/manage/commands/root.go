package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the formdrop-manage command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "formdrop-manage",
		Short:         "Operator tool for the formdrop server",
		Long:          "CLI tool for applying migrations, checking the CORS allowlist and inspecting accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewMigrateCmd())
	rootCmd.AddCommand(NewOriginsCmd())
	rootCmd.AddCommand(NewUsersCmd())
	return rootCmd
}
