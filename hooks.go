package taskrunner

// ProcessHook takes ownership of driving atom and must eventually call
// Processor.TaskCompleted on atom's queue — exactly once, synchronously or
// later, unless the queue is cancelled first.
type ProcessHook func(atom Atom, userData any)

// CancelHook makes a best-effort attempt to interrupt atom. It may be
// called when atom is not (or is no longer) the queue's current task.
type CancelHook func(atom Atom, userData any)

// DeleteHook releases atom. The Processor calls it exactly once per atom:
// after a normal process/cancel cycle, or when a still-queued atom is
// drained by cancellation or disposal.
type DeleteHook func(atom Atom, userData any)

// FinallyHook is delivered once per queue disposal, if installed via
// SetFinally, carrying whether the queue had observed a cancellation.
type FinallyHook func(cancelled bool, userData any)
