package http

import (
	"net/http"

	"github.com/packetmill/packetmill/internal/domain/packet"
	"github.com/packetmill/packetmill/internal/service"
)

// Handlers groups the services the HTTP layer dispatches into; MountRoutes
// attaches each one to its route group.
type Handlers struct {
	Packets    *service.PacketService
	Ledger     *service.LedgerService
	Executor   *service.ExecutorService
	Batch      *service.BatchService
	Queue      *service.QueueService
	Reconciler *service.ReconcilerService
	Auth       *service.AuthService
}

// ListProjectPackets handles GET /api/v1/projects/{projectID}/packets
func (h *Handlers) ListProjectPackets(w http.ResponseWriter, r *http.Request) {
	projectID := urlParam(r, "projectID")
	packets, err := h.Packets.List(r.Context(), projectID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if packets == nil {
		packets = []packet.Packet{}
	}
	writeJSON(w, http.StatusOK, packets)
}

// CreatePacket handles POST /api/v1/projects/{projectID}/packets
func (h *Handlers) CreatePacket(w http.ResponseWriter, r *http.Request) {
	projectID := urlParam(r, "projectID")
	req, ok := readJSON[packet.CreateRequest](w, r)
	if !ok {
		return
	}

	p, err := h.Packets.Create(r.Context(), projectID, req)
	if err != nil {
		writeDomainError(w, err, "packet creation failed")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetPacket handles GET /api/v1/packets/{id}
func (h *Handlers) GetPacket(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	p, err := h.Packets.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "packet not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdatePacket handles PATCH /api/v1/packets/{id}
func (h *Handlers) UpdatePacket(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	req, ok := readJSON[packet.UpdateRequest](w, r)
	if !ok {
		return
	}

	p, err := h.Packets.Update(r.Context(), id, req)
	if err != nil {
		writeDomainError(w, err, "packet not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeletePacket handles DELETE /api/v1/packets/{id}
func (h *Handlers) DeletePacket(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.Packets.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err, "packet not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
