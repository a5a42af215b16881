// Package app provides application lifecycle management for the catalog mirror.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/stacklok/catalog-mirror/internal/config"
)

// MirrorApp encapsulates all components needed to run the mirror server.
// It provides lifecycle management and graceful shutdown capabilities
type MirrorApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the scheduler in the background and serves HTTP. It blocks
// until the HTTP server stops or encounters an error.
func (app *MirrorApp) Start() error {
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	return app.Serve(listener)
}

// Serve is Start on an existing listener.
func (app *MirrorApp) Serve(listener net.Listener) error {
	go func() {
		if err := app.components.Coordinator.Start(app.ctx); err != nil {
			slog.Error("Sync coordinator failed", "error", err)
		}
	}()

	slog.Info("Server listening", "address", listener.Addr().String())
	if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the application with the given timeout. Running
// strategies are asked to stop and the scheduler waits for them before the
// HTTP server and storage are shut down.
func (app *MirrorApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server")

	app.components.Manager.StopAll()

	if err := app.components.Coordinator.Stop(); err != nil {
		slog.Error("Failed to stop sync coordinator", "error", err)
	}

	// Cancels runs started through the API
	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	shutdownErr := app.httpServer.Shutdown(shutdownCtx)
	app.components.Close()

	if shutdownErr != nil {
		return fmt.Errorf("server forced to shutdown: %w", shutdownErr)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *MirrorApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server
func (app *MirrorApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Components returns the wired components.
func (app *MirrorApp) Components() *AppComponents {
	return app.components
}
