// Package messagequeue defines the port for the pub/sub backbone. The NATS
// adapter implements it; services and tests depend only on this interface.
package messagequeue

import "context"

// Handler consumes one delivered message. Returning an error asks the
// transport to redeliver; after too many attempts the message is parked on
// the subject's dead letter twin. The ctx carries the publisher's request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the transport-neutral face of the message broker.
type Queue interface {
	// Publish sends data to subject and returns once the broker accepted it.
	Publish(ctx context.Context, subject string, data []byte) error

	// Request publishes data and blocks for a single reply or ctx done.
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)

	// Subscribe delivers every message on subject to handler until the
	// returned cancel function runs.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain stops accepting new messages, lets in-flight handlers finish,
	// then closes the connection.
	Drain() error

	// Close drops the connection without waiting for in-flight work.
	Close() error

	// IsConnected reports whether the broker link is currently up.
	IsConnected() bool
}

// Subjects PacketMill publishes and consumes.
const (
	// Orchestrator event subjects, published for downstream consumers
	// (dashboards, audit, the queue drainer).
	SubjectRunStarted    = "runs.started"
	SubjectRunCompleted  = "runs.completed"
	SubjectRunCancelled  = "runs.cancelled"
	SubjectBatchStarted  = "batch.started"
	SubjectBatchProgress = "batch.progress"
	SubjectBatchDone     = "batch.completed"
	SubjectQueueChanged  = "queue.changed"

	// Agent work protocol (NATS transport): the orchestrator publishes work
	// and cancellations; the agent worker replies on the request inbox.
	SubjectAgentWork   = "agent.work"
	SubjectAgentCancel = "agent.cancel"
)
