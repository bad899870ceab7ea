package server

import (
	"net/http"
	"strconv"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/report"
)

// maxHistoryLimit caps a single history listing.
const maxHistoryLimit = 1000

// HistoryHandler lists stored model reports.
type HistoryHandler struct {
	history report.History
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(history report.History) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// RegisterRoutes registers history routes.
func (h *HistoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/evaluation/history", h.handleList)
}

// HistoryResponse is the body of a history listing.
type HistoryResponse struct {
	Reports []*report.ModelReport `json:"reports"`
	Count   int                   `json:"count"`
}

// handleList handles GET /v1/evaluation/history?model=&limit=
func (h *HistoryHandler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := report.Filter{Model: r.URL.Query().Get("model")}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			errors.WriteError(w, errors.InvalidRequestError("limit must be a non-negative integer"))
			return
		}
		filter.Limit = min(limit, maxHistoryLimit)
	}

	reports, err := h.history.List(r.Context(), filter)
	if err != nil {
		errors.WriteError(w, errors.Wrap(errors.CodeUnavailable, "listing history", err))
		return
	}
	if reports == nil {
		reports = []*report.ModelReport{}
	}

	writeJSON(w, http.StatusOK, HistoryResponse{Reports: reports, Count: len(reports)})
}
