// Package sessionapi defines the port for the remote execution-session
// service. The orchestrator is strictly a reader of sessions.
package sessionapi

import (
	"context"

	"github.com/packetmill/packetmill/internal/domain/session"
)

// Client fetches the authoritative execution session for a project.
type Client interface {
	// GetSession returns the project's session, or domain.ErrNotFound when
	// the backend holds none. Implementations must not mutate remote state.
	GetSession(ctx context.Context, projectID string) (*session.ExecutionSession, error)
}
