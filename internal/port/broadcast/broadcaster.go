// Package broadcast defines the port for pushing live orchestrator events to
// attached clients.
package broadcast

import "context"

// Broadcaster fans a typed event out to every attached client. Payload must
// be JSON-marshalable; delivery is best-effort and never blocks the caller.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
