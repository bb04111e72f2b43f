package taskrunner

import (
	"time"

	"github.com/halvorsen/msutaskrunner/eventloop"
)

// QueueFlags are the per-queue behavior bits.
type QueueFlags uint8

const (
	// QueueAutoStart schedules the queue's head task as soon as it becomes
	// the only thing in an otherwise-idle queue, instead of waiting for an
	// explicit QueueStart.
	QueueAutoStart QueueFlags = 1 << iota

	// QueueAutoRemove disposes the queue the instant it next goes idle
	// with no current task in flight, instead of staying registered for
	// reuse.
	QueueAutoRemove
)

// queue is the Task-Queue: a FIFO of Atoms plus the state needed to drive
// exactly one of them at a time. Every field is only ever touched while
// Processor.mu is held.
type queue struct {
	key QueueKey

	tasks   []queuedTask
	current Atom

	flags QueueFlags

	processCB ProcessHook
	cancelCB  CancelHook
	deleteCB  DeleteHook
	finallyCB FinallyHook

	userData any

	// scheduled is the event-loop token for a pending dispatch wake, or 0
	// if none is outstanding.
	scheduled eventloop.Token

	// cancelled latches true when this queue's current task is cancelled,
	// and is reported to finallyCB at disposal time. dispatch resets it to
	// false whenever it pulls the next task off tasks, so it reflects only
	// the in-flight task's cancellation state, not the queue's whole history.
	cancelled bool

	// deferRemove latches when the queue must be disposed as soon as its
	// current task completes (RemoveQueuesForSource/Sink with a task still
	// in flight). While set, AddTask refuses new tasks.
	deferRemove bool
}

// queuedTask pairs a pending Atom with the time it was appended via AddTask,
// so dispatch can record how long it waited before running.
type queuedTask struct {
	atom       Atom
	enqueuedAt time.Time
}
