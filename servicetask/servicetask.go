// Package servicetask implements the Service-Task: the canonical task-atom
// for driving exactly one asynchronous remote action within a task queue.
// It is composed internally as a one-atom chain.Chain (see DESIGN.md)
// rather than reimplementing the same sequencing rules a second time — a
// chain of length one already gives a Service-Task's four queue-hook entry
// points for free: process is chain.Start, cancel is
// chain.Cancel, delete is chain.Delete, and begin-action-callback is the
// chain's own internal completion closure plus its end-func, which reports
// task-completed back to the owning queue.
package servicetask

import (
	taskrunner "github.com/halvorsen/msutaskrunner"
	"github.com/halvorsen/msutaskrunner/chain"
	"github.com/halvorsen/msutaskrunner/eventloop"
	"github.com/halvorsen/msutaskrunner/transport"
)

// Task is a task-queue atom that drives one remote action through a
// transport. It satisfies taskrunner.Atom via the embedded AtomBase, so it
// can be passed directly to Processor.AddTask.
type Task struct {
	taskrunner.AtomBase

	ch *chain.Chain
}

// New builds a Task ready to be enqueued with Processor.AddTask. action
// drives the remote call; device is an opaque owning back-reference;
// proxy is a weak observation of the target remote endpoint; actionCB
// receives the transport's completion; free releases userData once the
// task's cycle ends either way.
func New(loop eventloop.Loop, tr transport.Transport, action transport.ActionFunc, device any, proxy chain.ProxyRef, actionCB transport.CompletionFunc, free func(userData any), userData any) *Task {
	t := &Task{ch: chain.New(loop, tr)}
	t.ch.Add(action, device, proxy, actionCB, free, userData)
	t.ch.SetEnd(t.onEnd, proxy, nil, nil)
	return t
}

// onEnd is the one-atom chain's terminal callback: regardless of whether
// the action succeeded, failed, or was cancelled, the owning queue must
// still be told the task is done so it can advance or dispose itself.
func (t *Task) onEnd(bool, transport.Proxy, any) {
	t.QueueKey().Complete()
}

// ProcessHook drives atom's action. Install it as a queue's process-cb via
// Processor.AddQueue when every task on that queue is a *Task.
func ProcessHook(atom taskrunner.Atom, _ any) {
	atom.(*Task).ch.Start()
}

// CancelHook asks the transport to interrupt atom's in-flight action, if
// any. Install it as a queue's cancel-cb.
func CancelHook(atom taskrunner.Atom, _ any) {
	atom.(*Task).ch.Cancel()
}

// DeleteHook releases atom's scoped data and proxy observation without
// invoking its completion callback. Install it as a queue's delete-cb.
func DeleteHook(atom taskrunner.Atom, _ any) {
	atom.(*Task).ch.Delete()
}

// IsCancelled reports whether this task's action was ever cancelled.
func (t *Task) IsCancelled() bool { return t.ch.IsCancelled() }

// Err classifies how this task ended: taskrunner.ErrDied if it was torn down
// before ever running or completing, taskrunner.ErrActionBeginFailed if its
// action failed synchronously, taskrunner.ErrCancelled if it was explicitly
// interrupted, nil otherwise. A delete-cb typically passes this to
// Processor.TagError(task.QueueKey(), task.Err()) before replying to
// whatever called into the ingress layer in the first place.
func (t *Task) Err() error {
	switch {
	case t.ch.Died():
		return taskrunner.ErrDied
	case t.ch.ActionFailed():
		return taskrunner.ErrActionBeginFailed
	case t.ch.IsCancelled():
		return taskrunner.ErrCancelled
	default:
		return nil
	}
}

// GetDevice returns the device back-reference passed to New while the
// task's action is current (from ProcessHook until the chain advances past
// it), and nil before or after that.
func (t *Task) GetDevice() any { return t.ch.GetDevice() }

// GetUserData returns the userData passed to New while the task's action is
// current, and nil before or after that.
func (t *Task) GetUserData() any { return t.ch.GetUserData() }
