package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stockpile-dev/stockpile/internal/cli/commands"
)

var version = "dev" // Will be set during build

// NewRootCmd builds the stockpile command tree
func NewRootCmd(opts ...commands.Option) *cobra.Command {
	root := &cobra.Command{
		Use:   "stockpile",
		Short: "Stockpile - Inventory admin from the terminal",
		Long: `Stockpile CLI - Manage products, variants, categories and units.

Sign in once with 'stockpile login'. The session is refreshed in the
background and survives across commands until you log out.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stockpile version %s\n", version)
		},
	})

	root.AddCommand(commands.NewLoginCmd(opts...))
	root.AddCommand(commands.NewLogoutCmd(opts...))
	root.AddCommand(commands.NewWhoamiCmd(opts...))
	root.AddCommand(commands.NewProductsCmd(opts...))
	root.AddCommand(commands.NewVariantsCmd(opts...))
	root.AddCommand(commands.NewCategoriesCmd(opts...))
	root.AddCommand(commands.NewUnitsCmd(opts...))
	root.AddCommand(commands.NewDashCmd(version, opts...))

	return root
}

// Execute runs the root command
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
