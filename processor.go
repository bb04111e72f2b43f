package taskrunner

import (
	"sync"
	"time"

	"github.com/halvorsen/msutaskrunner/metrics"
)

// Processor is the process-wide Task-Processor: a registry of named FIFO
// queues plus the scheduling, cancellation, and shutdown protocol shared by
// all of them. One Processor typically backs one running service instance.
//
// All bookkeeping happens behind mu; every process/cancel/delete/finally
// hook is invoked with mu released so a hook is free to call back into the
// Processor (add a queue, complete a task, cancel another queue) without
// deadlocking — the single-threaded reentrancy the original assumes from
// running entirely on one GLib main loop, recovered here with a mutex that
// is never held across a call into caller-supplied code.
type Processor struct {
	mu sync.Mutex

	cfg *config

	queues map[QueueKey]*queue

	// running counts tasks currently dispatched (process-cb invoked,
	// task-completed not yet observed) across every queue.
	running int

	quitting bool
	onQuit   func()

	metricQueues    metrics.UpDownCounter
	metricRunning   metrics.UpDownCounter
	metricDone      metrics.Counter
	metricCancel    metrics.Counter
	metricQueueWait metrics.Histogram
}

// newProcessor builds an empty Processor: quitting=false, running=0.
func newProcessor(cfg *config, onQuit func()) *Processor {
	p := &Processor{
		cfg:    cfg,
		queues: make(map[QueueKey]*queue),
		onQuit: onQuit,
	}
	p.metricQueues = cfg.Metrics.UpDownCounter("taskrunner.queues",
		metrics.WithDescription("number of registered task queues"), metrics.WithUnit("1"))
	p.metricRunning = cfg.Metrics.UpDownCounter("taskrunner.tasks.running",
		metrics.WithDescription("number of tasks currently dispatched"), metrics.WithUnit("1"))
	p.metricDone = cfg.Metrics.Counter("taskrunner.tasks.completed",
		metrics.WithDescription("number of tasks completed"), metrics.WithUnit("1"))
	p.metricCancel = cfg.Metrics.Counter("taskrunner.tasks.cancelled",
		metrics.WithDescription("number of tasks cancelled"), metrics.WithUnit("1"))
	p.metricQueueWait = cfg.Metrics.Histogram("taskrunner.tasks.queue_wait",
		metrics.WithDescription("time a task spent queued between AddTask and dispatch"), metrics.WithUnit("s"))
	return p
}

// AddQueue registers a new, empty, idle queue under (source, sink) and
// returns the key callers use to address it. Hooks are mandatory; passing a
// nil process-cb, cancel-cb, or delete-cb is a programmer error.
func (p *Processor) AddQueue(source, sink string, flags QueueFlags, processCB ProcessHook, cancelCB CancelHook, deleteCB DeleteHook) QueueKey {
	if processCB == nil || cancelCB == nil || deleteCB == nil {
		panic("taskrunner: AddQueue requires non-nil process-cb, cancel-cb, and delete-cb")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := QueueKey{Source: source, Sink: sink, processor: p}
	p.queues[key] = &queue{
		key:       key,
		flags:     flags,
		processCB: processCB,
		cancelCB:  cancelCB,
		deleteCB:  deleteCB,
	}
	p.metricQueues.Add(1)
	p.cfg.Logger.Debug("queue added", "source", source, "sink", sink)
	return key
}

// LookupQueue recovers the key for an already-registered (source, sink)
// pair, or false if none is registered.
func (p *Processor) LookupQueue(source, sink string) (QueueKey, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	k := QueueKey{Source: source, Sink: sink, processor: p}
	if _, ok := p.queues[k]; ok {
		return k, true
	}
	return QueueKey{}, false
}

// SetFinally installs a FinallyHook delivered exactly once when key's queue
// is disposed, via the event loop, carrying whether the queue ever observed
// a cancellation.
func (p *Processor) SetFinally(key QueueKey, finallyCB FinallyHook) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.queues[key]
	if !ok {
		return ErrUnknownQueue
	}
	q.finallyCB = finallyCB
	return nil
}

// SetUserData attaches an opaque value the Processor hands back on every
// hook invocation for key's queue.
func (p *Processor) SetUserData(key QueueKey, userData any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.queues[key]
	if !ok {
		return ErrUnknownQueue
	}
	q.userData = userData
	return nil
}

// GetUserData returns the value last attached via SetUserData, or nil if key
// is unknown or nothing was attached.
func (p *Processor) GetUserData(key QueueKey) any {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.queues[key]
	if !ok {
		return nil
	}
	return q.userData
}

// AddTask appends atom to key's queue, stamping its QueueKey if it embeds
// AtomBase. If the queue has latched defer-remove, AddTask refuses: a queue
// in that state must never receive new tasks. Otherwise, if the queue is
// idle and flagged QueueAutoStart, the queue is scheduled.
func (p *Processor) AddTask(key QueueKey, atom Atom) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.queues[key]
	if !ok {
		return ErrUnknownQueue
	}
	if q.deferRemove {
		return ErrQueueRemoving
	}

	if setter, ok := atom.(queueKeySetter); ok {
		setter.setQueueKey(key)
	}
	q.tasks = append(q.tasks, queuedTask{atom: atom, enqueuedAt: time.Now()})

	if q.flags&QueueAutoStart != 0 {
		p.scheduleQueueLocked(q)
	}
	return nil
}

// QueueStart schedules key's queue if it is idle (no current task, nothing
// already scheduled). Idempotent, and a no-op on an unknown or
// defer-remove queue.
func (p *Processor) QueueStart(key QueueKey) {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.queues[key]
	if !ok {
		return
	}
	p.scheduleQueueLocked(q)
}

// scheduleQueueLocked arms a dispatch wake for q if it is idle and not
// defer-remove. Caller must hold p.mu.
func (p *Processor) scheduleQueueLocked(q *queue) {
	if q.deferRemove {
		return
	}
	if q.current != nil || q.scheduled != 0 {
		return
	}
	key := q.key
	q.scheduled = p.cfg.Loop.Post(func() { p.dispatch(key) })
}

// dispatch runs on the event loop: it dequeues the head task into current,
// increments running, and invokes the process hook. Grounded on
// prv_task_queue_process_task in task-processor.c.
func (p *Processor) dispatch(key QueueKey) {
	p.mu.Lock()
	q, ok := p.queues[key]
	if !ok {
		p.mu.Unlock()
		return
	}

	q.scheduled = 0
	if len(q.tasks) == 0 {
		p.mu.Unlock()
		return
	}

	queued := q.tasks[0]
	q.tasks = q.tasks[1:]
	q.current = queued.atom
	q.cancelled = false
	p.running++
	p.metricRunning.Add(1)
	p.metricQueueWait.Record(time.Since(queued.enqueuedAt).Seconds())

	processCB, userData := q.processCB, q.userData
	p.cfg.Logger.Debug("dispatching task", "source", key.Source, "sink", key.Sink)
	p.mu.Unlock()

	processCB(queued.atom, userData)
}

// TaskCompleted reports that key's current task has finished — successfully,
// or with an error the process hook has already delivered to its own
// caller. It releases current via delete-cb, then routes the queue: arm
// on-quit if the Processor is draining and this was the last running task;
// otherwise dispose if defer-remove, else schedule the next task if any, else
// dispose if AUTO_REMOVE. Grounded on msu_task_processor_task_completed in
// task-processor.c.
func (p *Processor) TaskCompleted(key QueueKey) {
	p.mu.Lock()
	q, ok := p.queues[key]
	if !ok {
		p.mu.Unlock()
		return
	}

	var (
		cur      Atom
		deleteCB DeleteHook
		userData any
	)
	if q.current != nil {
		cur, deleteCB, userData = q.current, q.deleteCB, q.userData
		q.current = nil
	}
	p.mu.Unlock()

	if cur != nil {
		deleteCB(cur, userData)
	}

	p.mu.Lock()
	p.running--
	p.metricRunning.Add(-1)
	p.metricDone.Add(1)

	if p.quitting && p.running == 0 {
		onQuit := p.onQuit
		p.mu.Unlock()
		if onQuit != nil {
			p.cfg.Loop.Post(onQuit)
		}
		return
	}

	// Re-resolve q: a hook invoked above (deleteCB, or a concurrent caller
	// let in while p.mu was released) may already have disposed this queue
	// via CancelQueue/RemoveQueuesForSource/Sink racing TaskCompleted.
	q, ok = p.queues[key]
	if !ok {
		p.mu.Unlock()
		return
	}

	switch {
	case q.deferRemove:
		p.disposeQueueLocked(key, q)
	case len(q.tasks) > 0:
		p.scheduleQueueLocked(q)
	case q.flags&QueueAutoRemove != 0:
		p.disposeQueueLocked(key, q)
	}
	p.mu.Unlock()
}

// TagError is the single point where a task's outcome becomes attributable
// back to the queue that produced it. It always logs a non-nil err through
// the configured Logger, and — only if WithErrorTagging was set — wraps it
// with key's correlation metadata (see error_tagging.go) so a caller fanning
// errors out across many queues can recover which one failed via
// ExtractQueue, without threading QueueKey through every intermediate
// layer by hand. A nil err passes through unchanged.
func (p *Processor) TagError(key QueueKey, err error) error {
	if err == nil {
		return nil
	}
	p.cfg.Logger.Error("task failed", "source", key.Source, "sink", key.Sink, "error", err)
	if !p.cfg.ErrorTagging {
		return err
	}
	return TagQueueError(err, key)
}

// CancelQueue applies the cancellation protocol to key's queue: pending
// tasks are drained (cancel-cb then delete-cb, in FIFO order), any scheduled
// wake is withdrawn, and if a task is in flight, cancel-cb is asked to
// interrupt it. If the queue ends up idle (no current) and flagged
// QueueAutoRemove, it is disposed immediately. A no-op on an unknown queue.
func (p *Processor) CancelQueue(key QueueKey) {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.queues[key]
	if !ok {
		return
	}
	p.cancelQueueLocked(q)
	// Re-resolve q: cancel-cb ran with p.mu released and may already have
	// completed the in-flight task, which disposes an AUTO_REMOVE queue.
	if cur, ok := p.queues[key]; !ok || cur != q {
		return
	}
	if q.current == nil && q.flags&QueueAutoRemove != 0 {
		p.disposeQueueLocked(key, q)
	}
}

// cancelQueueLocked implements the shared cancellation protocol for q. It
// does not decide disposal — CancelQueue and
// RemoveQueuesForSource/Sink differ on that. Caller must hold p.mu; it is
// released transiently while cancel-cb/delete-cb run, and re-acquired before
// returning.
func (p *Processor) cancelQueueLocked(q *queue) {
	q.cancelled = true
	p.cfg.Logger.Debug("cancelling queue", "source", q.key.Source, "sink", q.key.Sink, "pending", len(q.tasks))

	pending := q.tasks
	q.tasks = nil
	if q.scheduled != 0 {
		p.cfg.Loop.Cancel(q.scheduled)
		q.scheduled = 0
	}

	cancelCB, deleteCB, userData := q.cancelCB, q.deleteCB, q.userData
	cur := q.current

	cancelledTasks := len(pending)
	if cur != nil {
		cancelledTasks++
	}
	p.metricCancel.Add(int64(cancelledTasks))

	if len(pending) > 0 {
		p.mu.Unlock()
		for _, qt := range pending {
			cancelCB(qt.atom, userData)
			deleteCB(qt.atom, userData)
		}
		p.mu.Lock()
	}

	if cur != nil {
		p.mu.Unlock()
		cancelCB(cur, userData)
		p.mu.Lock()
	}
}

// disposeQueueLocked removes q from the registry, drains any remaining
// tasks via delete-cb, and — if a FinallyHook was installed — schedules its
// delivery on the event loop. Caller must hold p.mu; released transiently
// while delete-cb runs, re-acquired before returning.
func (p *Processor) disposeQueueLocked(key QueueKey, q *queue) {
	delete(p.queues, key)
	p.metricQueues.Add(-1)
	p.cfg.Logger.Debug("queue disposed", "source", key.Source, "sink", key.Sink)

	pending := q.tasks
	q.tasks = nil
	deleteCB, userData := q.deleteCB, q.userData
	if len(pending) > 0 {
		p.mu.Unlock()
		for _, qt := range pending {
			deleteCB(qt.atom, userData)
		}
		p.mu.Lock()
	}

	if q.finallyCB != nil {
		finallyCB, cancelled := q.finallyCB, q.cancelled
		p.cfg.Loop.Post(func() { finallyCB(cancelled, userData) })
	}
}

// RemoveQueuesForSource cancels and disposes every queue whose source
// matches. A queue with a task still in flight latches defer-remove instead
// of disposing immediately, and is disposed the moment that task completes.
func (p *Processor) RemoveQueuesForSource(source string) {
	p.removeQueuesWhere(func(k QueueKey) bool { return k.Source == source })
}

// RemoveQueuesForSink cancels and disposes every queue whose sink matches.
// See RemoveQueuesForSource for the defer-remove rule.
func (p *Processor) RemoveQueuesForSink(sink string) {
	p.removeQueuesWhere(func(k QueueKey) bool { return k.Sink == sink })
}

func (p *Processor) removeQueuesWhere(match func(QueueKey) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, q := range p.queues {
		if q.deferRemove || !match(key) {
			continue
		}
		q.deferRemove = q.current != nil
		p.cancelQueueLocked(q)
		if !q.deferRemove {
			p.disposeQueueLocked(key, q)
		}
	}
}

// SetQuitting latches the Processor into shutdown. If tasks are in flight,
// every registered queue is cancelled (an idle QueueAutoRemove queue is
// disposed, as in CancelQueue), and once the last in-flight task drains,
// onQuit is delivered via the event loop exactly once. If nothing is in
// flight, no queue is cancelled and onQuit is delivered immediately (still
// via the loop). Grounded on
// msu_task_processor_set_quitting in task-processor.c.
func (p *Processor) SetQuitting() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.quitting {
		return
	}
	p.quitting = true
	p.cfg.Logger.Debug("processor quitting", "running", p.running, "queues", len(p.queues))

	if p.running == 0 {
		onQuit := p.onQuit
		if onQuit != nil {
			p.cfg.Loop.Post(onQuit)
		}
		return
	}

	for key, q := range p.queues {
		if q.deferRemove {
			continue
		}
		p.cancelQueueLocked(q)
		// Re-resolve q, as in CancelQueue: cancel-cb may already have
		// completed the in-flight task and disposed the queue.
		if cur, ok := p.queues[key]; !ok || cur != q {
			continue
		}
		if q.current == nil && q.flags&QueueAutoRemove != 0 {
			p.disposeQueueLocked(key, q)
		}
	}
}
