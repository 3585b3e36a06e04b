package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ruralpay/ledger/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "ledger",
		Short:   "Multi-tenant double-entry ledger",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file (yaml, json, toml or .env)")

	rootCmd.AddCommand(
		newServeCommand(&configPath),
		newMigrateCommand(&configPath),
		newSeedCommand(&configPath),
	)

	return rootCmd
}
