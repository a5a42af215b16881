package app

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stacklok/catalog-mirror/database"
	"github.com/stacklok/catalog-mirror/internal/config"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tool",
		Long:  `Database migration tool for managing schema versions. Use with 'up' or 'down' subcommands.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}
	cmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")
	cmd.PersistentFlags().UintP("num-steps", "n", 0, "Number of steps to revert with down (0 = all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateUp,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert migrations",
		Long: `Migrate the database schema down by reverting migrations.
WARNING: This operation can result in data loss. Use with caution.

Examples:
  # Migrate down by 1 step
  catalog-mirror migrate down --config config.yaml --num-steps 1 --yes

  # Migrate down all the way (WARNING: destroys all data)
  catalog-mirror migrate down --config config.yaml --yes`,
		Args: cobra.NoArgs,
		RunE: runMigrateDown,
	})
	return cmd
}

// migrationConnString returns the connection string of the configured database.
func migrationConnString(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	if cfg.Storage.Type != config.StorageTypeDatabase || cfg.Storage.Database == nil {
		return "", fmt.Errorf("migrations require storage type %q with a database section", config.StorageTypeDatabase)
	}
	connString, err := cfg.Storage.Database.GetConnectionString()
	if err != nil {
		return "", fmt.Errorf("failed to build connection string: %w", err)
	}
	return connString, nil
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	connString, err := migrationConnString(cmd)
	if err != nil {
		return err
	}

	slog.Info("Applying migrations")
	if err := database.MigrateUp(connString); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logVersion(connString)
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}
	if numSteps > math.MaxInt32 {
		return fmt.Errorf("number of steps exceeds maximum allowed value")
	}

	if err := confirmMigrateDown(cmd, numSteps); err != nil {
		return err
	}

	connString, err := migrationConnString(cmd)
	if err != nil {
		return err
	}

	if numSteps == 0 {
		slog.Warn("Migrating down all steps - this will remove all schema!")
	} else {
		slog.Info("Migrating down", "steps", numSteps)
	}
	if err := database.MigrateDown(connString, int(numSteps)); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logVersion(connString)
	return nil
}

func confirmMigrateDown(cmd *cobra.Command, numSteps uint) error {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return fmt.Errorf("failed to get yes flag: %w", err)
	}
	if yes {
		return nil
	}

	prompt := "WARNING: This will migrate down ALL steps and may result in complete data loss. Continue?"
	if numSteps > 0 {
		prompt = fmt.Sprintf("WARNING: This will migrate down %d step(s) and may result in data loss. Continue?", numSteps)
	}
	if !confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), prompt) {
		slog.Info("Migration cancelled")
		return fmt.Errorf("migration cancelled by user")
	}
	return nil
}

// confirm asks a yes/no question and reports whether the answer was yes.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	_, _ = fmt.Fprintf(out, "%s [y/N]: ", prompt)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func logVersion(connString string) {
	version, dirty, err := database.GetVersion(connString)
	if err != nil {
		slog.Info("Database schema has no applied migrations")
		return
	}
	slog.Info("Migration completed successfully", "version", version, "dirty", dirty)
}
