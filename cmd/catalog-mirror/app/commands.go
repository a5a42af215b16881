// Package app provides the entry point for the catalog mirror command line.
package app

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/stacklok/catalog-mirror/internal/config"
	"github.com/stacklok/catalog-mirror/internal/versions"
)

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "catalog-mirror",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Catalog mirror sync engine",
		Long: `catalog-mirror keeps a local document store in sync with the Bangumi catalog.
It runs scheduled sync strategies and exposes an operator API to trigger and
stop them.`,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to configuration file (YAML format)")

	rootCmd.AddCommand(
		newServeCmd(),
		newSyncCmd(),
		newRotationCmd(),
		newStrategyCmd(),
		newStatsCmd(),
		newConfigCmd(),
		newMigrateCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// loadConfig loads the configuration named by the --config flag. Without the
// flag, defaults and environment overrides apply.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	var opts []config.Option
	if path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}
	cfg, err := config.LoadConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// printJSON writes v to the command's output as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format output as JSON: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
	return err
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("failed to get format flag: %w", err)
			}

			if format == "json" {
				return printJSON(cmd, info)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "catalog-mirror %s (commit %s, built %s, %s, %s)\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
			return err
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}
