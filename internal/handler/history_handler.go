package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dandantas/pijob/internal/model"
	"github.com/dandantas/pijob/internal/service"
)

// HistoryReader is the subset of service.HistoryService served over HTTP.
type HistoryReader interface {
	Get(ctx context.Context, runID string) (*model.RunRecord, error)
	List(ctx context.Context, q service.HistoryQuery) ([]model.RunSummary, int64, error)
}

// HistoryHandler handles finished-run history queries
type HistoryHandler struct {
	service HistoryReader
}

func NewHistoryHandler(service HistoryReader) *HistoryHandler {
	return &HistoryHandler{service: service}
}

// HistoryListResponse represents a page of run summaries
type HistoryListResponse struct {
	Total   int64              `json:"total"`
	Page    int                `json:"page"`
	Limit   int                `json:"limit"`
	Results []model.RunSummary `json:"results"`
}

// List handles GET /api/v1/history
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := service.HistoryQuery{
		JobName: r.URL.Query().Get("job_name"),
		Status:  r.URL.Query().Get("status"),
		From:    r.URL.Query().Get("from"),
		To:      r.URL.Query().Get("to"),
		Page:    parseQueryInt(r, "page", 1),
		Limit:   parseQueryInt(r, "limit", 20),
	}

	// Enforce max limit
	if q.Limit > 100 {
		q.Limit = 100
	}

	summaries, total, err := h.service.List(r.Context(), q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if summaries == nil {
		summaries = []model.RunSummary{}
	}

	writeJSON(w, http.StatusOK, HistoryListResponse{
		Total:   total,
		Page:    q.Page,
		Limit:   q.Limit,
		Results: summaries,
	})
}

// Get handles GET /api/v1/history/{run_id}
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.Get(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
