package http

import (
	"net/http"

	"github.com/packetmill/packetmill/internal/domain/run"
)

// ListPacketRuns handles GET /api/v1/packets/{id}/runs
func (h *Handlers) ListPacketRuns(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	runs, err := h.Ledger.History(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "packet not found")
		return
	}
	if runs == nil {
		runs = []run.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun handles GET /api/v1/runs/{id}
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	rn, err := h.Ledger.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, rn)
}

// AttachRunFeedback handles POST /api/v1/runs/{id}/feedback
func (h *Handlers) AttachRunFeedback(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	req, ok := readJSON[run.FeedbackRequest](w, r)
	if !ok {
		return
	}

	rn, err := h.Ledger.AttachFeedback(r.Context(), id, req)
	if err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, rn)
}
