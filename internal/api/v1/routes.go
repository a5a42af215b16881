// Package v1 provides the operator REST API of the catalog mirror.
package v1

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/catalog-mirror/internal/api/common"
	"github.com/stacklok/catalog-mirror/internal/store"
	pkgsync "github.com/stacklok/catalog-mirror/internal/sync"
	"github.com/stacklok/catalog-mirror/internal/sync/coordinator"
	"github.com/stacklok/catalog-mirror/internal/sync/rotation"
)

// Rotation reads and moves the monthly rotation cursor.
type Rotation interface {
	Status(ctx context.Context) (*rotation.Status, error)
	Reset(ctx context.Context, month int) error
}

// StatsReader summarises the mirrored data set.
type StatsReader interface {
	Stats(ctx context.Context) (*store.Stats, error)
}

// ScheduleReader reports the configured schedules.
type ScheduleReader interface {
	Status(ctx context.Context) ([]coordinator.ScheduleStatus, error)
}

// RotationResetRequest is the body of PUT /rotation.
type RotationResetRequest struct {
	Month *int `json:"month"`
}

// RunResponse acknowledges a background run.
type RunResponse struct {
	Strategy string `json:"strategy"`
	Status   string `json:"status"`
}

// Routes holds the operator API dependencies.
type Routes struct {
	// runCtx outlives individual requests; background runs derive from it.
	runCtx    context.Context
	manager   pkgsync.Manager
	rotation  Rotation
	stats     StatsReader
	schedules ScheduleReader
}

// NewRoutes creates the operator routes. runCtx bounds the lifetime of runs
// started through the API and should be cancelled on server shutdown.
func NewRoutes(
	runCtx context.Context,
	manager pkgsync.Manager,
	rot Rotation,
	stats StatsReader,
	schedules ScheduleReader,
) *Routes {
	return &Routes{
		runCtx:    runCtx,
		manager:   manager,
		rotation:  rot,
		stats:     stats,
		schedules: schedules,
	}
}

// Router returns the /api/v1 handler.
func Router(routes *Routes) http.Handler {
	r := chi.NewRouter()

	r.Route("/strategies", func(r chi.Router) {
		r.Get("/", routes.listStrategies)
		r.Post("/stop", routes.stopAllStrategies)
		r.Post("/{name}/run", routes.runStrategy)
		r.Post("/{name}/stop", routes.stopStrategy)
	})

	r.Get("/rotation", routes.getRotation)
	r.Put("/rotation", routes.resetRotation)
	r.Get("/stats", routes.getStats)
	r.Get("/schedules", routes.listSchedules)

	return r
}

// listStrategies handles GET /api/v1/strategies
//
// @Summary		List strategies
// @Description	List registered strategies with their running state and progress
// @Tags			strategies
// @Produce		json
// @Success		200	{array}	pkgsync.Info
// @Router			/api/v1/strategies [get]
func (rr *Routes) listStrategies(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, rr.manager.Info(), http.StatusOK)
}

// runStrategy handles POST /api/v1/strategies/{name}/run
//
// @Summary		Run a strategy
// @Description	Start a strategy in the background. The body carries optional run options.
// @Tags			strategies
// @Accept			json
// @Produce		json
// @Param			name	path		string			true	"Strategy name"
// @Param			options	body		pkgsync.Options	false	"Run options"
// @Success		202		{object}	RunResponse
// @Failure		400		{object}	common.ErrorResponse
// @Failure		404		{object}	common.ErrorResponse
// @Failure		409		{object}	common.ErrorResponse
// @Router			/api/v1/strategies/{name}/run [post]
func (rr *Routes) runStrategy(w http.ResponseWriter, r *http.Request) {
	name, err := common.GetAndValidateURLParam(r, "name")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	var opts pkgsync.Options
	if err := common.DecodeJSONBody(r, &opts); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if opts.CooldownDays < 0 || opts.BatchSize < 0 {
		common.WriteErrorResponse(w, "cooldownDays and batchSize must not be negative", http.StatusBadRequest)
		return
	}

	err = rr.manager.Start(rr.runCtx, name, opts, func(result *pkgsync.Result, err error) {
		if err != nil || result == nil {
			return
		}
		slog.Info("API triggered run finished",
			"strategy", name,
			"run_id", result.RunID,
			"subjects", result.SubjectsProcessed,
			"errors", len(result.Errors))
	})
	if err != nil {
		writeManagerError(w, err)
		return
	}

	slog.Info("Strategy run started through API", "strategy", name)
	common.WriteJSONResponse(w, RunResponse{Strategy: name, Status: "started"}, http.StatusAccepted)
}

// stopStrategy handles POST /api/v1/strategies/{name}/stop
//
// @Summary		Stop a strategy
// @Tags			strategies
// @Param			name	path	string	true	"Strategy name"
// @Success		204
// @Failure		404	{object}	common.ErrorResponse
// @Router			/api/v1/strategies/{name}/stop [post]
func (rr *Routes) stopStrategy(w http.ResponseWriter, r *http.Request) {
	name, err := common.GetAndValidateURLParam(r, "name")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := rr.manager.Stop(name); err != nil {
		writeManagerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// stopAllStrategies handles POST /api/v1/strategies/stop
//
// @Summary		Stop every strategy
// @Tags			strategies
// @Success		204
// @Router			/api/v1/strategies/stop [post]
func (rr *Routes) stopAllStrategies(w http.ResponseWriter, _ *http.Request) {
	rr.manager.StopAll()
	w.WriteHeader(http.StatusNoContent)
}

// getRotation handles GET /api/v1/rotation
//
// @Summary		Rotation status
// @Tags			rotation
// @Produce		json
// @Success		200	{object}	rotation.Status
// @Failure		500	{object}	common.ErrorResponse
// @Router			/api/v1/rotation [get]
func (rr *Routes) getRotation(w http.ResponseWriter, r *http.Request) {
	st, err := rr.rotation.Status(r.Context())
	if err != nil {
		slog.Error("Failed to read rotation cursor", "error", err)
		common.WriteErrorResponse(w, "Failed to read rotation status", http.StatusInternalServerError)
		return
	}
	common.WriteJSONResponse(w, st, http.StatusOK)
}

// resetRotation handles PUT /api/v1/rotation
//
// @Summary		Reset rotation
// @Description	Move the rotation cursor to a month between 0 (undated) and 12
// @Tags			rotation
// @Accept			json
// @Produce		json
// @Param			request	body		RotationResetRequest	true	"Target month"
// @Success		200		{object}	rotation.Status
// @Failure		400		{object}	common.ErrorResponse
// @Router			/api/v1/rotation [put]
func (rr *Routes) resetRotation(w http.ResponseWriter, r *http.Request) {
	var req RotationResetRequest
	if err := common.DecodeJSONBody(r, &req); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Month == nil {
		common.WriteErrorResponse(w, "month is required", http.StatusBadRequest)
		return
	}

	if err := rr.rotation.Reset(r.Context(), *req.Month); err != nil {
		if errors.Is(err, rotation.ErrInvalidMonth) {
			common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Failed to reset rotation cursor", "month", *req.Month, "error", err)
		common.WriteErrorResponse(w, "Failed to reset rotation", http.StatusInternalServerError)
		return
	}

	rr.getRotation(w, r)
}

// getStats handles GET /api/v1/stats
//
// @Summary		Mirror statistics
// @Tags			stats
// @Produce		json
// @Success		200	{object}	store.Stats
// @Failure		500	{object}	common.ErrorResponse
// @Router			/api/v1/stats [get]
func (rr *Routes) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rr.stats.Stats(r.Context())
	if err != nil {
		slog.Error("Failed to read store statistics", "error", err)
		common.WriteErrorResponse(w, "Failed to read statistics", http.StatusInternalServerError)
		return
	}
	common.WriteJSONResponse(w, stats, http.StatusOK)
}

// listSchedules handles GET /api/v1/schedules
//
// @Summary		List schedules
// @Description	List configured schedules with their last run and next due time
// @Tags			schedules
// @Produce		json
// @Success		200	{array}	coordinator.ScheduleStatus
// @Router			/api/v1/schedules [get]
func (rr *Routes) listSchedules(w http.ResponseWriter, r *http.Request) {
	if rr.schedules == nil {
		common.WriteJSONResponse(w, []coordinator.ScheduleStatus{}, http.StatusOK)
		return
	}
	schedules, err := rr.schedules.Status(r.Context())
	if err != nil {
		slog.Error("Failed to read schedule status", "error", err)
		common.WriteErrorResponse(w, "Failed to read schedules", http.StatusInternalServerError)
		return
	}
	common.WriteJSONResponse(w, schedules, http.StatusOK)
}

func writeManagerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pkgsync.ErrStrategyNotFound):
		common.WriteErrorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, pkgsync.ErrAlreadyRunning):
		common.WriteErrorResponse(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("Strategy manager request failed", "error", err)
		common.WriteErrorResponse(w, "Internal error", http.StatusInternalServerError)
	}
}
