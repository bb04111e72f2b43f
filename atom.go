package taskrunner

// QueueKey names a task queue by the pair (source, sink): the requesting
// principal and the target resource, e.g. a client endpoint and a device
// identifier. It is comparable and usable directly as a map key — Go's
// struct equality already covers both fields, so unlike the original's
// hash-table keyed by a custom hash+equal pair, no bespoke hashing is
// needed to get identical equality semantics.
//
// processor is a non-owning back-reference installed by the Processor at
// registration time: the processor owns the key, not the reverse. Two keys
// with the same Source/Sink but different processors are never produced by
// this package, so equality by value is safe for callers that only ever
// hold keys handed back by a single Processor.
type QueueKey struct {
	Source string
	Sink   string

	processor *Processor
}

// Atom is one opaque unit of work enqueued into a queue. The runtime only
// requires that every atom carry a back-reference to the queue key it was
// enqueued into; callers (the ingress layer) define the concrete shape.
type Atom interface {
	QueueKey() QueueKey
}

// AtomBase is an embeddable helper that gives a concrete atom type the
// queue-key bookkeeping every atom needs, for free: AddTask stamps the key
// into every atom that embeds AtomBase at enqueue time.
type AtomBase struct {
	key QueueKey
}

// QueueKey returns the key this atom was last enqueued into.
func (b *AtomBase) QueueKey() QueueKey { return b.key }

// setQueueKey is unexported so only AddTask (via the queueKeySetter
// interface below) can stamp it; embedding AtomBase from another package
// still satisfies queueKeySetter because the method is promoted from this
// package.
func (b *AtomBase) setQueueKey(k QueueKey) { b.key = k }

// queueKeySetter is implemented by atoms built on AtomBase; AddTask uses it
// to stamp the queue key at enqueue time without requiring every atom
// implementation to manage it by hand.
type queueKeySetter interface {
	setQueueKey(QueueKey)
}

// Complete reports that this key's current task has finished, exactly as if
// the holder had called Processor.TaskCompleted(key) directly. It lets an
// atom implementation (e.g. servicetask.Task) signal completion from
// another package while holding only the QueueKey its AtomBase was stamped
// with.
func (k QueueKey) Complete() {
	if k.processor != nil {
		k.processor.TaskCompleted(k)
	}
}
