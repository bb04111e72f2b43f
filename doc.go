// Package taskrunner implements the asynchronous task runtime a media-server
// control service uses to broker UPnP AV content-directory requests: a
// process-wide Task-Processor holding named FIFO queues (see processor.go,
// queue.go), a Chain-Task sequencer for ordered multi-step remote actions
// (package chain), and a Service-Task, the single-action special case of a
// chain (package servicetask).
//
// Construction
//   - New(onQuit, opts...): builds an empty Processor. onQuit fires, via the
//     event loop, exactly once, after SetQuitting and once every in-flight
//     task has drained.
//
// Concurrency
// The Processor's own bookkeeping is guarded by an internal mutex, but every
// process/cancel/delete/finally hook runs with that mutex released — a hook
// is free to call back into the Processor (enqueue a task, cancel another
// queue, complete this one) without deadlocking. All scheduling happens by
// posting to an eventloop.Loop; see WithLoop to supply a deterministic test
// double instead of the default goroutine-backed loop.
//
// Errors
// A task's outcome is reported with one of three error kinds (errors.go):
// ErrCancelled, ErrDied, and ErrActionBeginFailed. Misuse of the API is
// reported separately with ErrInvalidConfig, ErrUnknownQueue, and
// ErrQueueRemoving. The core never retries and never interprets action
// results — that's the atom callback's job.
package taskrunner
