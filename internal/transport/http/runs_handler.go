package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"dicommart/internal/config"
	apierrors "dicommart/internal/errors"
	"dicommart/internal/middleware"
	"dicommart/internal/operations"
	"dicommart/pkg/contracts/domain"
)

// DefaultListLimit is used when GET /api/v1/runs has no limit parameter.
const DefaultListLimit = 20

// StartRunRequest is the body of POST /api/v1/runs. Every field is optional.
type StartRunRequest struct {
	Prefix   string `json:"prefix" validate:"omitempty,keyprefix"`
	Workbook bool   `json:"workbook"`
	Workers  int    `json:"workers" validate:"gte=0,lte=256"`
}

// RunListResponse is returned by GET /api/v1/runs.
type RunListResponse struct {
	Runs      []*domain.Run `json:"runs"`
	ActiveRun string        `json:"active_run,omitempty"`
}

// RunsHandler starts runs and serves the run ledger.
type RunsHandler struct {
	runs      RunService
	validator *middleware.RequestValidator
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
}

// NewRunsHandler creates a runs handler.
func NewRunsHandler(runs RunService, errHandler *apierrors.ErrorHandler, logger *slog.Logger) *RunsHandler {
	return &RunsHandler{
		runs:      runs,
		validator: middleware.NewRequestValidator(),
		errors:    errHandler,
		logger:    logger.With(slog.String("handler", "runs")),
	}
}

// Routes returns the runs router.
func (h *RunsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.StartRun)
	r.Get("/", h.ListRuns)
	r.Get("/{id}", h.GetRun)
	return r
}

// StartRun handles POST /api/v1/runs. The run executes in the background;
// the response carries its pending record.
func (h *RunsHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req StartRunRequest
	if err := h.validator.Decode(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	run, err := h.runs.Start(ctx, operations.RunRequest{
		Prefix:   req.Prefix,
		Workbook: req.Workbook,
		Workers:  req.Workers,
	})
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "run accepted",
		slog.String("run_id", run.ID),
		slog.String("prefix", run.Prefix),
		slog.String("request_id", middleware.GetReqID(ctx)))

	w.Header().Set("Location", "/api/v1/runs/"+run.ID)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, run)
}

// ListRuns handles GET /api/v1/runs?limit=&status=
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	filter := operations.RunFilter{Limit: DefaultListLimit}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > config.DefaultRunHistory {
			h.errors.HandleError(w, r, apierrors.ErrValidation("limit",
				"limit must be between 1 and "+strconv.Itoa(config.DefaultRunHistory)))
			return
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.RunStatus(raw)
		if !status.Valid() {
			h.errors.HandleError(w, r, apierrors.ErrValidation("status", "unknown run status "+raw))
			return
		}
		filter.Status = status
	}

	runs, err := h.runs.Runs().ListRuns(r.Context(), filter)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*domain.Run{}
	}

	resp := RunListResponse{Runs: runs}
	if id, ok := h.runs.Active(); ok {
		resp.ActiveRun = id
	}
	render.JSON(w, r, resp)
}

// GetRun handles GET /api/v1/runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Runs().GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, run)
}
