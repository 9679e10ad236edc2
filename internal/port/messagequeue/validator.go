package messagequeue

import (
	"encoding/json"
	"fmt"
)

// payloadFor gives the schema struct each subject's messages must decode
// into. Subjects absent from the map pass unchecked so newer publishers do
// not break older consumers.
var payloadFor = map[string]func() any{
	SubjectRunStarted:    func() any { return new(RunEventPayload) },
	SubjectRunCompleted:  func() any { return new(RunEventPayload) },
	SubjectRunCancelled:  func() any { return new(RunEventPayload) },
	SubjectBatchStarted:  func() any { return new(BatchStartedPayload) },
	SubjectBatchProgress: func() any { return new(BatchProgressPayload) },
	SubjectBatchDone:     func() any { return new(BatchDonePayload) },
	SubjectQueueChanged:  func() any { return new(QueueChangedPayload) },
	SubjectAgentWork:     func() any { return new(AgentWorkPayload) },
	SubjectAgentCancel:   func() any { return new(AgentCancelPayload) },
}

// Validate rejects data that is not JSON or does not decode into the
// subject's schema. Errors name the subject so dead letter triage can tell
// which stream produced the reject.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}
	newPayload, ok := payloadFor[subject]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(data, newPayload()); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}
