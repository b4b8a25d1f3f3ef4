package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apierrors "dicommart/internal/errors"
	"dicommart/pkg/contracts/domain"
)

// DatamartListResponse is returned by GET /api/v1/datamarts.
type DatamartListResponse struct {
	Datamarts []domain.DatamartInfo `json:"datamarts"`
}

// DataHandler serves the read side: the corpus summary and the datamarts.
type DataHandler struct {
	summary   SummaryService
	datamarts DatamartService
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
}

// NewDataHandler creates a data handler.
func NewDataHandler(summary SummaryService, datamarts DatamartService, errHandler *apierrors.ErrorHandler, logger *slog.Logger) *DataHandler {
	return &DataHandler{
		summary:   summary,
		datamarts: datamarts,
		errors:    errHandler,
		logger:    logger.With(slog.String("handler", "data")),
	}
}

// Summary handles GET /api/v1/summary. The summary is recomputed from the
// entity store on every call.
func (h *DataHandler) Summary(w http.ResponseWriter, r *http.Request) {
	rec, err := h.summary.Summary(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, rec)
}

// Datamarts handles GET /api/v1/datamarts
func (h *DataHandler) Datamarts(w http.ResponseWriter, r *http.Request) {
	infos, err := h.datamarts.Describe(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if infos == nil {
		infos = []domain.DatamartInfo{}
	}
	render.JSON(w, r, DatamartListResponse{Datamarts: infos})
}
