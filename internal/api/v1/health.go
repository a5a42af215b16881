package v1

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/catalog-mirror/internal/api/common"
	"github.com/stacklok/catalog-mirror/internal/versions"
)

// ReadinessFunc reports whether the backing stores are reachable.
type ReadinessFunc func(ctx context.Context) error

// HealthRouter creates a router for health check endpoints.
func HealthRouter(ready ReadinessFunc) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(ready))
	r.Get("/version", versionHandler)

	return r
}

// healthHandler handles health check requests
//
// @Summary		Health check
// @Tags			system
// @Produce		json
// @Success		200	{object}	map[string]string
// @Router			/health [get]
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

// readinessHandler handles readiness check requests
//
// @Summary		Readiness check
// @Tags			system
// @Produce		json
// @Success		200	{object}	map[string]string
// @Failure		503	{object}	common.ErrorResponse
// @Router			/readiness [get]
func readinessHandler(ready ReadinessFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				slog.Warn("Readiness check failed", "error", err)
				common.WriteErrorResponse(w, "storage not ready: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		common.WriteJSONResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
	}
}

// versionHandler handles version information requests
//
// @Summary		Version information
// @Tags			system
// @Produce		json
// @Success		200	{object}	versions.Info
// @Router			/version [get]
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
