// Package chain implements the Chain-Task sequencer: an ordered list of
// atoms run strictly in turn, each either a synchronous step or an
// asynchronous remote action, with a terminal callback delivered exactly
// once.
package chain

import (
	"sync"

	"github.com/halvorsen/msutaskrunner/eventloop"
	"github.com/halvorsen/msutaskrunner/transport"
)

// ProxyRef is the weak observation a chain atom and a chain's end-func hold
// on a remote proxy, keyed by the device identifier the proxy was
// registered under. The zero value means "no proxy" (Valid() == false).
type ProxyRef = transport.WeakRef[string, transport.Proxy]

// EndFunc is the chain's terminal callback, delivered exactly once: when the
// atom list drains, when cancellation has propagated through it, or never,
// if the chain is torn down directly via Delete.
type EndFunc func(cancelled bool, endProxy transport.Proxy, endData any)

// atom bundles one chain step: the action to run, its completion handler,
// an owning device back-reference (opaque to the chain), a weak observation
// of the remote proxy the action targets, and release data.
type atom struct {
	action   transport.ActionFunc
	actionCB transport.CompletionFunc
	device   any
	proxy    ProxyRef
	userData any
	free     func(userData any)

	outstanding transport.Outstanding
	inFlight    bool
}

// Chain is one Chain-Task: a FIFO of atoms driven one at a time over an
// event loop, via a transport that begins and completes remote actions.
type Chain struct {
	mu sync.Mutex

	loop eventloop.Loop
	tr   transport.Transport

	atoms   []*atom
	current *atom

	// cancelled is set only by an explicit Cancel call. actionFailed is set
	// when an atom's synchronous action-begin fails instead. Both stop the
	// chain from running any further atom, but callers that need to tell
	// the two apart (see Task.Err) read them separately.
	cancelled    bool
	actionFailed bool

	// died is set when Delete tears the chain down while it was still
	// neither cancelled nor action-failed nor ended — i.e. disposed before
	// its reply was ever delivered.
	died bool

	ended     bool
	scheduled eventloop.Token

	endFunc  EndFunc
	endProxy ProxyRef
	endData  any
	endFree  func(userData any)
}

// New creates an empty chain. loop is where every advance and terminal
// delivery is posted; tr is the transport actions are begun and cancelled
// through.
func New(loop eventloop.Loop, tr transport.Transport) *Chain {
	return &Chain{loop: loop, tr: tr}
}

// Add appends an atom to the chain. If proxy is valid, the atom observes it
// weakly: no strong reference is retained, so the action is never attempted
// against a proxy that has since been destroyed.
func (c *Chain) Add(action transport.ActionFunc, device any, proxy ProxyRef, actionCB transport.CompletionFunc, free func(userData any), userData any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.atoms = append(c.atoms, &atom{
		action:   action,
		actionCB: actionCB,
		device:   device,
		proxy:    proxy,
		userData: userData,
		free:     free,
	})
}

// SetEnd installs the terminal callback, delivered once the chain either
// drains or determines it has nothing left to run.
func (c *Chain) SetEnd(endFunc EndFunc, endProxy ProxyRef, endFree func(userData any), endData any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endFunc = endFunc
	c.endProxy = endProxy
	c.endFree = endFree
	c.endData = endData
}

// Start begins or resumes sequencing. Grounded on msu_chain_task_start.
func (c *Chain) Start() {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	if c.cancelled || c.actionFailed || len(c.atoms) == 0 {
		c.mu.Unlock()
		c.deliverEnd()
		return
	}

	a := c.atoms[0]
	c.atoms = c.atoms[1:]
	c.current = a
	proxy, _ := a.proxy.Get()
	c.mu.Unlock()

	c.beginAtom(a, proxy)
}

// beginAtom drives a's action through the transport and, if it completed
// synchronously, schedules the next atom; otherwise it waits for the
// transport to invoke the completion closure below exactly once.
func (c *Chain) beginAtom(a *atom, proxy transport.Proxy) {
	done := func(p transport.Proxy, outstanding transport.Outstanding, userData any) {
		c.mu.Lock()
		// Orphaned completion: the chain has already moved past this atom
		// (cancelled and advanced, or disposed). Drop it.
		if c.current != a || !a.inFlight {
			c.mu.Unlock()
			return
		}
		a.inFlight = false
		a.outstanding = nil
		actionCB := a.actionCB
		c.mu.Unlock()

		if actionCB != nil {
			actionCB(p, outstanding, userData)
		}
		c.scheduleNext()
	}

	outstanding, err := c.tr.Begin(proxy, a.action, done, a.userData)

	c.mu.Lock()
	if err != nil {
		c.actionFailed = true
	}
	if outstanding != nil {
		a.outstanding = outstanding
		a.inFlight = true
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.scheduleNext()
}

// scheduleNext arms a single event-loop wake that advances past the current
// atom, coalescing repeated calls onto the one outstanding token.
func (c *Chain) scheduleNext() {
	c.mu.Lock()
	if c.ended || c.scheduled != 0 {
		c.mu.Unlock()
		return
	}
	c.scheduled = c.loop.Post(func() {
		c.mu.Lock()
		c.scheduled = 0
		c.mu.Unlock()
		c.next()
	})
	c.mu.Unlock()
}

// next drops and releases the head atom (the one Start last dispatched),
// then resumes sequencing. Running this on an event-loop wake, rather than
// recursing straight out of beginAtom/Start, bounds stack growth and gives
// cancellation a chance to observe consistent state between every atom.
func (c *Chain) next() {
	c.mu.Lock()
	cur := c.current
	c.current = nil
	c.mu.Unlock()

	if cur != nil && cur.free != nil {
		cur.free(cur.userData)
	}
	c.Start()
}

// Cancel interrupts the in-flight action, if any, and latches cancelled so
// every remaining atom is skipped once draining resumes. Grounded on
// msu_chain_task_cancel.
func (c *Chain) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	a := c.current
	var (
		doCancel    bool
		proxy       transport.Proxy
		outstanding transport.Outstanding
	)
	if a != nil && a.inFlight {
		if p, ok := a.proxy.Get(); ok {
			proxy, outstanding, doCancel = p, a.outstanding, true
		}
		a.inFlight = false
		a.outstanding = nil
	}
	c.mu.Unlock()

	if doCancel {
		_ = c.tr.Cancel(proxy, outstanding)
	}
	if a != nil {
		c.scheduleNext()
	}
}

// Delete releases every remaining atom and any end-func scoped data without
// invoking the end-func — the caller's explicit alternative to letting the
// chain run to completion. If the chain was neither explicitly cancelled
// nor stopped by a failed action, this is a direct teardown before any
// reply was ever delivered — see Died.
func (c *Chain) Delete() {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	if !c.cancelled && !c.actionFailed {
		c.died = true
	}
	c.ended = true
	if c.scheduled != 0 {
		c.loop.Cancel(c.scheduled)
		c.scheduled = 0
	}
	remaining := c.atoms
	c.atoms = nil
	cur := c.current
	c.current = nil
	endData, endFree := c.endData, c.endFree
	c.mu.Unlock()

	releaseAtoms(remaining, cur)
	if endFree != nil {
		endFree(endData)
	}
}

// deliverEnd releases every atom still sitting in c.atoms (and c.current, if
// one is somehow still set) exactly as Delete does, then schedules the
// end-func exactly once, with the chain's cancellation state and end-proxy
// resolved at delivery time, then marks the chain ended so nothing further
// can run or re-deliver it. Reached on both the drain-to-completion path and
// the cancelled/failed path — either way, every atom that was ever Add-ed
// gets exactly one release.
func (c *Chain) deliverEnd() {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	if c.scheduled != 0 {
		c.loop.Cancel(c.scheduled)
		c.scheduled = 0
	}
	remaining := c.atoms
	c.atoms = nil
	cur := c.current
	c.current = nil
	endFunc := c.endFunc
	if endFunc == nil {
		endFree, endData := c.endFree, c.endData
		c.mu.Unlock()
		releaseAtoms(remaining, cur)
		if endFree != nil {
			endFree(endData)
		}
		return
	}
	cancelled := c.cancelled || c.actionFailed
	endProxyRef := c.endProxy
	endData := c.endData
	endFree := c.endFree
	c.mu.Unlock()

	releaseAtoms(remaining, cur)
	c.loop.Post(func() {
		endProxy, _ := endProxyRef.Get()
		endFunc(cancelled, endProxy, endData)
		if endFree != nil {
			endFree(endData)
		}
	})
}

// releaseAtoms frees every atom in remaining, then cur if non-nil — the
// shared atom-draining step Delete and deliverEnd both need.
func releaseAtoms(remaining []*atom, cur *atom) {
	for _, a := range remaining {
		if a.free != nil {
			a.free(a.userData)
		}
	}
	if cur != nil && cur.free != nil {
		cur.free(cur.userData)
	}
}

// IsCancelled reports whether this chain was ever explicitly cancelled via
// Cancel. It does not report true for a failed action-begin; see
// ActionFailed for that.
func (c *Chain) IsCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// ActionFailed reports whether this chain stopped running further atoms
// because a synchronous action-begin call failed, as opposed to an explicit
// Cancel.
func (c *Chain) ActionFailed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actionFailed
}

// Died reports whether this chain was torn down via Delete while it was
// still neither cancelled, nor action-failed, nor ended naturally — i.e.
// disposed before its reply was ever delivered.
func (c *Chain) Died() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.died
}

// GetDevice returns the current atom's device back-reference, or nil if no
// atom is current.
func (c *Chain) GetDevice() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.device
}

// GetUserData returns the current atom's user data, or nil if no atom is
// current.
func (c *Chain) GetUserData() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.userData
}

// GetEndData returns the data installed via SetEnd.
func (c *Chain) GetEndData() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endData
}
