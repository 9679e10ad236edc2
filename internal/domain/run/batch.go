package run

import "errors"

// BatchRequest asks for a set of packets to be executed under a concurrency
// bound. Concurrency 1 is strictly sequential; 0 selects the configured
// default. The executor clamps the bound to its configured maximum.
type BatchRequest struct {
	PacketIDs   []string `json:"packet_ids"`
	Concurrency int      `json:"concurrency"`
}

// Validate checks that the BatchRequest has all required fields.
func (r *BatchRequest) Validate() error {
	if len(r.PacketIDs) == 0 {
		return errors.New("packet_ids is required")
	}
	if r.Concurrency < 0 {
		return errors.New("concurrency must be non-negative")
	}
	return nil
}

// BatchProgress is the live counter pair for an executing batch. Current
// advances exactly once per terminal outcome, completion order, not dispatch
// order.
type BatchProgress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// BatchResult is the itemized outcome of a batch: every requested packet maps
// to a Result, failures included. A failed packet never aborts its siblings.
type BatchResult struct {
	ProjectID string            `json:"project_id"`
	Results   map[string]Result `json:"results"`
	Progress  BatchProgress     `json:"progress"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Cancelled int               `json:"cancelled"`
	Skipped   int               `json:"skipped"`
}

// BatchStatus is a point-in-time snapshot of a batch for progress polling.
type BatchStatus struct {
	ProjectID string        `json:"project_id"`
	Active    bool          `json:"active"`
	Progress  BatchProgress `json:"progress"`
}
