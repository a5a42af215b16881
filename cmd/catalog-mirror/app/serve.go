package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/catalog-mirror/internal/app"
	"github.com/stacklok/catalog-mirror/internal/config"
	"github.com/stacklok/catalog-mirror/internal/telemetry"
)

const (
	defaultGracefulTimeout = 30 * time.Second
	telemetryFlushTimeout  = 5 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduler and the operator API",
		Long: `Start the sync scheduler and the operator HTTP API.

Configured schedules run in the background. Strategies can also be started,
stopped and inspected through the API under /api/v1.`,
		RunE: runServe,
	}
	cmd.Flags().String("address", ":8080", "Address to listen on")
	return cmd
}

// serveAddress resolves the listen address from the flag or the
// CATALOG_MIRROR_ADDRESS environment variable.
func serveAddress(cmd *cobra.Command) (string, error) {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlag("address", cmd.Flags().Lookup("address")); err != nil {
		return "", fmt.Errorf("failed to bind address flag: %w", err)
	}
	return v.GetString("address"), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	address, err := serveAddress(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown telemetry", "error", err)
		}
	}()

	opts := []app.MirrorAppOptions{
		app.WithConfig(cfg),
		app.WithAddress(address),
		app.WithMeterProvider(tel.MeterProvider()),
		app.WithTracerProvider(tel.TracerProvider()),
	}
	if h := tel.MetricsHandler(); h != nil {
		opts = append(opts, app.WithMetricsHandler(h))
	}

	mirror, err := app.NewMirrorApp(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	slog.Info("Starting catalog mirror", "address", address, "schedules", len(cfg.Schedules))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- mirror.Start()
	}()

	select {
	case err := <-serveErr:
		if stopErr := mirror.Stop(defaultGracefulTimeout); stopErr != nil {
			slog.Error("Failed to stop application", "error", stopErr)
		}
		return err
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	}

	return mirror.Stop(defaultGracefulTimeout)
}
