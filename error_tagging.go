package taskrunner

import (
	"errors"
	"fmt"
)

// QueueMetaError exposes queue correlation metadata for a task failure —
// which (source, sink) queue it belongs to. It lets callers that fan out
// across many queues (one per connected client times one per known device)
// recover which queue produced a given error without threading the key
// through every intermediate layer by hand.
type QueueMetaError interface {
	error
	Unwrap() error
	Queue() QueueKey
}

type queueTaggedError struct {
	err error
	key QueueKey
}

// TagQueueError wraps err with key so ExtractQueue can recover it later.
// Returns nil if err is nil.
func TagQueueError(err error, key QueueKey) error {
	if err == nil {
		return nil
	}
	return &queueTaggedError{err: err, key: key}
}

func (e *queueTaggedError) Error() string { return e.err.Error() }
func (e *queueTaggedError) Unwrap() error { return e.err }
func (e *queueTaggedError) Queue() QueueKey {
	return QueueKey{Source: e.key.Source, Sink: e.key.Sink}
}

func (e *queueTaggedError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "queue(source=%s,sink=%s): %+v", e.key.Source, e.key.Sink, e.err)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// ExtractQueue returns the queue key tagged onto err, if any.
func ExtractQueue(err error) (QueueKey, bool) {
	var qme QueueMetaError
	if errors.As(err, &qme) {
		return qme.Queue(), true
	}
	return QueueKey{}, false
}
