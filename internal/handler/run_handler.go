package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dandantas/pijob/internal/compute"
	"github.com/dandantas/pijob/internal/model"
	"github.com/dandantas/pijob/internal/service"
	"github.com/dandantas/pijob/pkg/middleware"
)

// RunManager is the subset of service.RunManager the HTTP API drives.
type RunManager interface {
	Start(req compute.Request, opts service.StartOptions) (string, error)
	Execute(ctx context.Context, req compute.Request, opts service.StartOptions) (string, compute.Outcome, error)
	Cancel(runID string) error
	Status(runID string) (model.RunStatus, error)
	List() []model.RunStatus
}

// RunHandler starts, inspects and cancels runs.
type RunHandler struct {
	manager RunManager
}

func NewRunHandler(manager RunManager) *RunHandler {
	return &RunHandler{manager: manager}
}

// CreateRunRequest is the body of POST /api/v1/runs.
type CreateRunRequest struct {
	Name       string `json:"name"`
	Iterations int    `json:"iterations"`
	Series     string `json:"series,omitempty"`
}

// CreateRunResponse is returned for both asynchronous and waited runs.
type CreateRunResponse struct {
	RunID   string           `json:"run_id"`
	Status  compute.State    `json:"status"`
	Outcome *compute.Outcome `json:"outcome,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// RunListResponse lists the runs the manager still retains.
type RunListResponse struct {
	Total   int               `json:"total"`
	Results []model.RunStatus `json:"results"`
}

// Create handles POST /api/v1/runs. With ?wait=true the request blocks
// until the run finishes, and a client disconnect cancels the run.
func (h *RunHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	req := compute.Request{Name: body.Name, Iterations: body.Iterations}
	opts := service.StartOptions{
		TriggeredBy:   model.TriggerAPI,
		CorrelationID: middleware.GetCorrelationID(r.Context()),
		Series:        body.Series,
	}

	if !parseQueryBool(r, "wait") {
		runID, err := h.manager.Start(req, opts)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, CreateRunResponse{RunID: runID, Status: compute.StateRunning})
		return
	}

	runID, out, err := h.manager.Execute(r.Context(), req, opts)
	if runID == "" {
		writeServiceError(w, err)
		return
	}
	resp := CreateRunResponse{RunID: runID, Status: out.State, Outcome: &out}
	if err != nil {
		slog.Warn("Run failed", "run_id", runID, "error", err)
		resp.Error = err.Error()
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// List handles GET /api/v1/runs
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	runs := h.manager.List()
	writeJSON(w, http.StatusOK, RunListResponse{Total: len(runs), Results: runs})
}

// Get handles GET /api/v1/runs/{id}
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	status, err := h.manager.Status(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Cancel handles POST /api/v1/runs/{id}/cancel and DELETE /api/v1/runs/{id}.
// The run stops at its next cancellation check, so the response is 202.
func (h *RunHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if err := h.manager.Cancel(runID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id":  runID,
		"message": "cancellation requested",
	})
}
