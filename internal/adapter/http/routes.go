package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Packets (nested under projects)
		r.Get("/projects/{projectID}/packets", h.ListProjectPackets)
		r.Post("/projects/{projectID}/packets", h.CreatePacket)

		// Packets (direct access)
		r.Get("/packets/{id}", h.GetPacket)
		r.Patch("/packets/{id}", h.UpdatePacket)
		r.Delete("/packets/{id}", h.DeletePacket)

		// Runs
		r.Get("/packets/{id}/runs", h.ListPacketRuns)
		r.Get("/runs/{id}", h.GetRun)
		r.Post("/runs/{id}/feedback", h.AttachRunFeedback)

		// Execution
		r.Post("/packets/{id}/execute", h.ExecutePacket)
		r.Post("/packets/{id}/stop", h.StopPacket)

		// Batches (one per project)
		r.Post("/projects/{projectID}/batch", h.StartProjectBatch)
		r.Delete("/projects/{projectID}/batch", h.CancelProjectBatch)
		r.Get("/projects/{projectID}/batch", h.GetBatchProgress)

		// Execution queue
		r.Post("/queue", h.EnqueueProject)
		r.Get("/queue", h.ListQueue)
		r.Post("/queue/next", h.DequeueNext)
		r.Delete("/queue/{projectID}", h.RemoveFromQueue)

		// Session reconciliation
		r.Get("/projects/{projectID}/session", h.ReconcileSession)

		// Auth (token creation is exempted from auth by the middleware)
		r.Post("/auth/token", h.CreateAPIToken)
		r.Get("/auth/tokens", h.ListAPITokens)
		r.Delete("/auth/tokens/{id}", h.RevokeAPIToken)
	})
}
