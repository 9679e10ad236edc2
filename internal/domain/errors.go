// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict.
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates invalid caller input. Wrap with context:
// fmt.Errorf("%w: title is required", domain.ErrValidation).
var ErrValidation = errors.New("validation failed")

// ErrAlreadyRunning indicates an attempt to start a run for a packet that
// already has a run in the running state. The caller may wait or inspect
// state; the orchestrator never retries on its behalf.
var ErrAlreadyRunning = errors.New("packet already has an active run")

// ErrPacketBusy indicates an attempt to delete or mutate a packet while one
// of its runs is active. Callers must stop the run first.
var ErrPacketBusy = errors.New("packet has an active run")

// ErrQueueDuplicate indicates the project is already present in the execution
// queue. Informational: enqueue reports the existing position instead of
// adding a second entry.
var ErrQueueDuplicate = errors.New("project already queued")

// ErrBatchActive indicates a batch is already executing for the project.
var ErrBatchActive = errors.New("batch already active for project")
