package http

import (
	"net/http"

	"github.com/packetmill/packetmill/internal/domain/queue"
)

// EnqueueProject handles POST /api/v1/queue
//
// Idempotent: a project that is already queued gets 200 with added=false and
// its existing position.
func (h *Handlers) EnqueueProject(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[queue.EnqueueRequest](w, r)
	if !ok {
		return
	}

	res, err := h.Queue.Enqueue(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "enqueue failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListQueue handles GET /api/v1/queue
func (h *Handlers) ListQueue(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Queue.List(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if entries == nil {
		entries = []queue.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// DequeueNext handles POST /api/v1/queue/next
//
// 204 when the queue is empty.
func (h *Handlers) DequeueNext(w http.ResponseWriter, r *http.Request) {
	entry, err := h.Queue.Next(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if entry == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// RemoveFromQueue handles DELETE /api/v1/queue/{projectID}
func (h *Handlers) RemoveFromQueue(w http.ResponseWriter, r *http.Request) {
	projectID := urlParam(r, "projectID")
	if err := h.Queue.Remove(r.Context(), projectID); err != nil {
		writeDomainError(w, err, "project not queued")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
