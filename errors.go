package taskrunner

import "errors"

// Namespace prefixes every sentinel error message.
const Namespace = "taskrunner"

// The first three errors are the only task-outcome kinds the core surfaces.
// The core never invents other outcome kinds and never retries; exactly one
// of these, or a domain-specific error from the atom's own callback, is
// delivered per task. The last three report misuse of the API instead.
var (
	// ErrCancelled marks a task or chain interrupted by queue cancellation,
	// bulk removal, or shutdown.
	ErrCancelled = errors.New(Namespace + ": cancelled")

	// ErrDied marks a task or chain disposed before its reply was
	// delivered. The ingress layer is expected to convert this into a
	// generic "unable to complete" signal to the client.
	ErrDied = errors.New(Namespace + ": died before completion")

	// ErrActionBeginFailed marks an action function that signalled failure
	// synchronously, before any outstanding handle was obtained.
	ErrActionBeginFailed = errors.New(Namespace + ": action begin failed")

	// ErrInvalidConfig is returned by options validation.
	ErrInvalidConfig = errors.New(Namespace + ": invalid configuration")

	// ErrUnknownQueue is returned by operations addressed to a QueueKey the
	// Processor no longer (or never did) recognize.
	ErrUnknownQueue = errors.New(Namespace + ": unknown queue")

	// ErrQueueRemoving is returned by AddTask when the queue has latched
	// defer-remove: a queue in that state must never receive new tasks.
	ErrQueueRemoving = errors.New(Namespace + ": queue is being removed")
)
