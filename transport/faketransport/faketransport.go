// Package faketransport is a deterministic, in-memory transport.Transport
// used by tests and by the cmd/msu-taskd example in place of a real SOAP/UPnP
// action client. Every Begin call runs the action function synchronously (no
// real network round-trip) and then, unless cancelled first, dispatches the
// completion on a caller-controlled Loop so tests can observe ordering.
package faketransport

import (
	"errors"
	"sync"

	"github.com/halvorsen/msutaskrunner/eventloop"
	"github.com/halvorsen/msutaskrunner/transport"
)

// ErrNoSuchAction is returned by Cancel when the outstanding handle is
// unknown (already completed or already cancelled).
var ErrNoSuchAction = errors.New("faketransport: no such outstanding action")

type action struct {
	cancelled bool
	token     eventloop.Token
}

// Transport is a fake transport.Transport. Begin posts the completion to
// loop rather than calling it inline, so callers can single-step a
// eventloop.ManualLoop to observe "in flight" state between Begin and the
// completion firing.
type Transport struct {
	loop eventloop.Loop

	mu      sync.Mutex
	nextID  uint64
	actions map[uint64]*action
}

// New constructs a fake transport that delivers completions through loop.
func New(loop eventloop.Loop) *Transport {
	return &Transport{loop: loop, actions: make(map[uint64]*action)}
}

type outstandingHandle struct {
	id uint64
}

// Begin runs action immediately (the fake has no real I/O) and, if it
// reports an outstanding handle, schedules done to fire on the loop.
func (t *Transport) Begin(
	proxy transport.Proxy,
	action_ transport.ActionFunc,
	done transport.CompletionFunc,
	userData any,
) (transport.Outstanding, error) {
	out, failed := action_(proxy)
	if failed {
		return nil, errActionFailed
	}
	if out == nil {
		return nil, nil
	}

	t.mu.Lock()
	t.nextID++
	id := t.nextID
	rec := &action{}
	t.actions[id] = rec
	t.mu.Unlock()

	rec.token = t.loop.Post(func() {
		t.mu.Lock()
		cancelled := rec.cancelled
		delete(t.actions, id)
		t.mu.Unlock()
		if !cancelled {
			done(proxy, out, userData)
		}
	})

	return outstandingHandle{id: id}, nil
}

var errActionFailed = errors.New("faketransport: action function reported failure")

// Cancel marks the outstanding action as cancelled; if its completion has
// not yet run on the loop, it will now be suppressed instead of invoking
// the caller's CompletionFunc.
func (t *Transport) Cancel(_ transport.Proxy, outstanding transport.Outstanding) error {
	h, ok := outstanding.(outstandingHandle)
	if !ok {
		return ErrNoSuchAction
	}

	t.mu.Lock()
	rec, ok := t.actions[h.id]
	if ok {
		rec.cancelled = true
		delete(t.actions, h.id)
	}
	t.mu.Unlock()

	if !ok {
		return ErrNoSuchAction
	}
	return nil
}
