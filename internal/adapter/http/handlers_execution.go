package http

import (
	"net/http"

	"github.com/packetmill/packetmill/internal/domain/run"
)

type executeRequest struct {
	ProjectID string `json:"project_id"`
}

// ExecutePacket handles POST /api/v1/packets/{id}/execute
//
// The run is opened synchronously, so conflicts surface here; the agent
// invocation itself continues in the background. 202 with the running run.
func (h *Handlers) ExecutePacket(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	req, ok := readJSON[executeRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.ProjectID, "project_id") {
		return
	}

	rn, err := h.Executor.StartExecution(r.Context(), id, req.ProjectID)
	if err != nil {
		writeDomainError(w, err, "packet not found")
		return
	}
	writeJSON(w, http.StatusAccepted, rn)
}

// StopPacket handles POST /api/v1/packets/{id}/stop
//
// Fire-and-forget: 202 means the cancellation is underway, not that the run
// has settled. The run lands as cancelled with the packet back in queued.
func (h *Handlers) StopPacket(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.Executor.Stop(r.Context(), id); err != nil {
		writeDomainError(w, err, "no active run for packet")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// StartProjectBatch handles POST /api/v1/projects/{projectID}/batch
func (h *Handlers) StartProjectBatch(w http.ResponseWriter, r *http.Request) {
	projectID := urlParam(r, "projectID")
	req, ok := readJSON[run.BatchRequest](w, r)
	if !ok {
		return
	}

	if err := h.Batch.StartBatch(r.Context(), projectID, req); err != nil {
		writeDomainError(w, err, "batch start failed")
		return
	}
	writeJSON(w, http.StatusAccepted, h.Batch.Progress(projectID))
}

// CancelProjectBatch handles DELETE /api/v1/projects/{projectID}/batch
func (h *Handlers) CancelProjectBatch(w http.ResponseWriter, r *http.Request) {
	projectID := urlParam(r, "projectID")
	if err := h.Batch.CancelBatch(r.Context(), projectID); err != nil {
		writeDomainError(w, err, "no active batch for project")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// GetBatchProgress handles GET /api/v1/projects/{projectID}/batch
func (h *Handlers) GetBatchProgress(w http.ResponseWriter, r *http.Request) {
	projectID := urlParam(r, "projectID")
	writeJSON(w, http.StatusOK, h.Batch.Progress(projectID))
}

// ReconcileSession handles GET /api/v1/projects/{projectID}/session
//
// 204 when the backend holds no session for the project.
func (h *Handlers) ReconcileSession(w http.ResponseWriter, r *http.Request) {
	projectID := urlParam(r, "projectID")
	state, err := h.Reconciler.Reconcile(r.Context(), projectID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if state == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
