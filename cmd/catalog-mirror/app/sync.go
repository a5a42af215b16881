package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stacklok/catalog-mirror/internal/app"
	pkgsync "github.com/stacklok/catalog-mirror/internal/sync"
	"github.com/stacklok/catalog-mirror/internal/sync/strategies"
)

// componentOptions lets tests swap the wiring used by local commands.
type componentOptions func() []app.MirrorAppOptions

func newSyncCmd() *cobra.Command {
	return newSyncCmdWith(nil)
}

func newSyncCmdWith(extra componentOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <strategy>",
		Short: "Run one strategy in the foreground",
		Long: `Run a single strategy against the configured storage and print the result as JSON.

Strategies: ` + fmt.Sprint(strategyNames()) + `

Interrupting the command asks the strategy to stop after the current unit of
work. Resumable strategies save a checkpoint first.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: strategyNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, args[0], extra)
		},
	}
	cmd.Flags().Int("cooldown-days", 0, "Override the character cooldown in days")
	cmd.Flags().Int("batch-size", 0, "Override the subject page size")
	cmd.Flags().Bool("skip-characters", false, "Sync subject metadata only")
	return cmd
}

func strategyNames() []string {
	return []string{
		strategies.NameDailyIncremental,
		strategies.NameYearlyUpdate,
		strategies.NameBiweeklyUpdate,
		strategies.NameMonthlyRotation,
		strategies.NameFullBackfill,
	}
}

func syncOptions(cmd *cobra.Command) (pkgsync.Options, error) {
	var opts pkgsync.Options
	var err error
	if opts.CooldownDays, err = cmd.Flags().GetInt("cooldown-days"); err != nil {
		return opts, fmt.Errorf("failed to get cooldown-days flag: %w", err)
	}
	if opts.BatchSize, err = cmd.Flags().GetInt("batch-size"); err != nil {
		return opts, fmt.Errorf("failed to get batch-size flag: %w", err)
	}
	if opts.SkipCharacters, err = cmd.Flags().GetBool("skip-characters"); err != nil {
		return opts, fmt.Errorf("failed to get skip-characters flag: %w", err)
	}
	if opts.CooldownDays < 0 || opts.BatchSize < 0 {
		return opts, fmt.Errorf("cooldown-days and batch-size must not be negative")
	}
	return opts, nil
}

// buildLocalComponents wires the sync engine from the --config flag.
func buildLocalComponents(ctx context.Context, cmd *cobra.Command, extra componentOptions) (*app.AppComponents, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	opts := []app.MirrorAppOptions{app.WithConfig(cfg)}
	if extra != nil {
		opts = append(opts, extra()...)
	}
	components, err := app.BuildComponents(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build components: %w", err)
	}
	return components, nil
}

func runSync(cmd *cobra.Command, name string, extra componentOptions) error {
	opts, err := syncOptions(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := buildLocalComponents(ctx, cmd, extra)
	if err != nil {
		return err
	}
	defer components.Close()

	result, err := components.Manager.Execute(ctx, name, opts)
	if err != nil {
		return fmt.Errorf("failed to run strategy: %w", err)
	}
	if err := printJSON(cmd, result); err != nil {
		return err
	}
	if result.Err != nil {
		return fmt.Errorf("strategy %s failed: %w", name, result.Err)
	}
	return nil
}

func newRotationCmd() *cobra.Command {
	return newRotationCmdWith(nil)
}

func newRotationCmdWith(extra componentOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotation",
		Short: "Inspect or move the monthly rotation cursor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the current and next rotation month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			components, err := buildLocalComponents(cmd.Context(), cmd, extra)
			if err != nil {
				return err
			}
			defer components.Close()

			st, err := components.Cursor.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset <month>",
		Short: "Point the rotation cursor at a month (0 = undated, 1-12 = calendar months)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			month, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid month %q: %w", args[0], err)
			}

			components, err := buildLocalComponents(cmd.Context(), cmd, extra)
			if err != nil {
				return err
			}
			defer components.Close()

			if err := components.Cursor.Reset(cmd.Context(), month); err != nil {
				return err
			}
			slog.Info("Rotation cursor reset", "month", month)

			st, err := components.Cursor.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		},
	})
	return cmd
}

func newStatsCmd() *cobra.Command {
	return newStatsCmdWith(nil)
}

func newStatsCmdWith(extra componentOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print subject and character counts of the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			components, err := buildLocalComponents(cmd.Context(), cmd, extra)
			if err != nil {
				return err
			}
			defer components.Close()

			stats, err := components.Documents.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read stats: %w", err)
			}
			return printJSON(cmd, stats)
		},
	}
}
