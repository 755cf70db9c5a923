package commands

import (
	"fmt"
	"os"

	"github.com/benvon/formdrop/internal/config"
	"github.com/benvon/formdrop/internal/middleware"
	"github.com/spf13/cobra"
)

// NewOriginsCmd creates the origins command with list and check subcommands.
// Both read ALLOWED_ORIGINS the same way the server does unless --origins is given.
func NewOriginsCmd() *cobra.Command {
	var origins string

	cmd := &cobra.Command{
		Use:   "origins",
		Short: "Inspect the CORS allowlist",
	}
	cmd.PersistentFlags().StringVar(&origins, "origins", "", "Comma-separated allowlist to use instead of ALLOWED_ORIGINS")

	resolve := func(cmd *cobra.Command) ([]string, error) {
		if cmd.Flags().Changed("origins") {
			return config.ParseAllowedOrigins(origins), nil
		}
		if err := config.LoadDotEnv(); err != nil {
			return nil, err
		}
		return config.ParseAllowedOrigins(os.Getenv("ALLOWED_ORIGINS")), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List allowed origins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			allowed, err := resolve(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Allowed origins:")
			for _, origin := range allowed {
				fmt.Fprintf(out, "  - %s\n", origin)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check <origin>",
		Short: "Check whether an origin would be accepted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			allowed, err := resolve(cmd)
			if err != nil {
				return err
			}
			if !middleware.OriginAllowed(args[0], allowed) {
				return fmt.Errorf("origin %q is not allowed", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Origin %s is allowed\n", args[0])
			return nil
		},
	})

	return cmd
}
