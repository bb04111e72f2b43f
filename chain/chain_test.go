package chain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/halvorsen/msutaskrunner/eventloop"
	"github.com/halvorsen/msutaskrunner/transport"
	"github.com/halvorsen/msutaskrunner/transport/faketransport"
)

func TestChain_AllSynchronousAtomsRunInOrderThenEndFuncFires(t *testing.T) {
	loop := eventloop.NewManual()
	tr := faketransport.New(loop)
	c := New(loop, tr)

	var order []string
	var released []string
	mkAction := func(name string) transport.ActionFunc {
		return func(transport.Proxy) (transport.Outstanding, bool) {
			order = append(order, name)
			return nil, false
		}
	}
	for _, name := range []string{"a", "b", "c"} {
		c.Add(mkAction(name), nil, ProxyRef{}, nil, func(userData any) {
			released = append(released, userData.(string))
		}, name)
	}

	ended := false
	var endCancelled bool
	c.SetEnd(func(cancelled bool, _ transport.Proxy, _ any) {
		ended = true
		endCancelled = cancelled
	}, ProxyRef{}, nil, nil)

	c.Start()
	loop.RunUntilIdle()

	require.Equal(t, []string{"a", "b", "c"}, order)
	require.Equal(t, []string{"a", "b", "c"}, released)
	require.True(t, ended)
	require.False(t, endCancelled)
}

func TestChain_AsynchronousAtomWaitsForCompletion(t *testing.T) {
	loop := eventloop.NewManual()
	tr := faketransport.New(loop)
	c := New(loop, tr)

	var callbackFired bool
	action := func(transport.Proxy) (transport.Outstanding, bool) {
		return struct{}{}, false // async: non-nil outstanding handle
	}
	actionCB := func(transport.Proxy, transport.Outstanding, any) {
		callbackFired = true
	}
	c.Add(action, nil, ProxyRef{}, actionCB, nil, nil)

	ended := false
	c.SetEnd(func(bool, transport.Proxy, any) { ended = true }, ProxyRef{}, nil, nil)

	c.Start()
	require.False(t, callbackFired, "must not fire before the transport delivers completion")
	require.False(t, ended)

	loop.RunUntilIdle() // faketransport delivers the completion on the loop
	require.True(t, callbackFired)
	require.True(t, ended)
}

func TestChain_CancelInterruptsInFlightActionAndStillEnds(t *testing.T) {
	loop := eventloop.NewManual()
	tr := faketransport.New(loop)
	c := New(loop, tr)

	registry := transport.NewWeakRegistry[string, transport.Proxy]()
	proxyRef := registry.Register("device-1", "the-proxy")

	callbackFired := false
	action := func(transport.Proxy) (transport.Outstanding, bool) { return struct{}{}, false }
	c.Add(action, nil, proxyRef, func(transport.Proxy, transport.Outstanding, any) {
		callbackFired = true
	}, nil, nil)

	var endCancelled bool
	c.SetEnd(func(cancelled bool, _ transport.Proxy, _ any) { endCancelled = cancelled }, ProxyRef{}, nil, nil)

	c.Start()
	c.Cancel()
	loop.RunUntilIdle()

	require.False(t, callbackFired, "a cancelled-before-completion action's callback must not fire")
	require.True(t, c.IsCancelled())
	require.True(t, endCancelled)
}

func TestChain_WeakProxyReadsNoneAfterRegistryRelease(t *testing.T) {
	loop := eventloop.NewManual()
	tr := faketransport.New(loop)
	c := New(loop, tr)

	registry := transport.NewWeakRegistry[string, transport.Proxy]()
	proxyRef := registry.Register("device-1", "the-proxy")
	registry.Release("device-1")

	var seenProxy transport.Proxy
	seenAny := false
	c.Add(func(p transport.Proxy) (transport.Outstanding, bool) {
		seenProxy, seenAny = p, true
		return nil, false
	}, nil, proxyRef, nil, nil, nil)

	c.Start()
	loop.RunUntilIdle()

	require.True(t, seenAny)
	require.Nil(t, seenProxy, "a destroyed proxy's weak ref must read as none before any action is attempted")
}

func TestChain_FailedActionSkipsRemainingAtoms(t *testing.T) {
	loop := eventloop.NewManual()
	tr := faketransport.New(loop)
	c := New(loop, tr)

	var ran []string
	var secondReleased bool
	c.Add(func(transport.Proxy) (transport.Outstanding, bool) {
		ran = append(ran, "first")
		return nil, true // synchronous failure
	}, nil, ProxyRef{}, nil, nil, nil)
	c.Add(func(transport.Proxy) (transport.Outstanding, bool) {
		ran = append(ran, "second")
		return nil, false
	}, nil, ProxyRef{}, nil, func(any) { secondReleased = true }, nil)

	var endCancelled bool
	c.SetEnd(func(cancelled bool, _ transport.Proxy, _ any) { endCancelled = cancelled }, ProxyRef{}, nil, nil)

	c.Start()
	loop.RunUntilIdle()

	require.Equal(t, []string{"first"}, ran)
	require.True(t, endCancelled)
	require.True(t, secondReleased, "the never-started second atom must still be released once the chain ends")
	require.True(t, c.ActionFailed())
	require.False(t, c.IsCancelled(), "a synchronous action failure is not an explicit cancellation")
}

func TestChain_CancelWithQueuedAtomsReleasesThemAll(t *testing.T) {
	loop := eventloop.NewManual()
	tr := faketransport.New(loop)
	c := New(loop, tr)

	var released []string
	mkAsync := func() transport.ActionFunc {
		return func(transport.Proxy) (transport.Outstanding, bool) { return struct{}{}, false }
	}
	c.Add(mkAsync(), nil, ProxyRef{}, nil, func(userData any) {
		released = append(released, userData.(string))
	}, "a1")
	c.Add(mkAsync(), nil, ProxyRef{}, nil, func(userData any) {
		released = append(released, userData.(string))
	}, "a2")

	ended := false
	c.SetEnd(func(bool, transport.Proxy, any) { ended = true }, ProxyRef{}, nil, nil)

	c.Start()         // a1 begins, async
	loop.RunPending() // faketransport delivers a1's completion, which schedules next()
	c.Cancel()        // a1 already completed; a2 never started
	loop.RunUntilIdle()
	// runs the scheduled next() (frees a1, Start() sees cancelled, deliverEnd
	// drains c.atoms and frees a2), then delivers end-func

	require.ElementsMatch(t, []string{"a1", "a2"}, released, "a2 must still be released even though it never ran")
	require.True(t, ended)
}

func TestChain_DeleteOnFreshChainReportsDied(t *testing.T) {
	loop := eventloop.NewManual()
	tr := faketransport.New(loop)
	c := New(loop, tr)

	c.Add(func(transport.Proxy) (transport.Outstanding, bool) {
		t.Fatal("action must not run on a chain deleted before Start")
		return nil, false
	}, nil, ProxyRef{}, nil, nil, nil)

	c.Delete()

	require.True(t, c.Died())
	require.False(t, c.IsCancelled())
	require.False(t, c.ActionFailed())
}

func TestChain_DeleteReleasesAtomsWithoutFiringEndFunc(t *testing.T) {
	loop := eventloop.NewManual()
	tr := faketransport.New(loop)
	c := New(loop, tr)

	released := false
	c.Add(func(transport.Proxy) (transport.Outstanding, bool) {
		return struct{}{}, false
	}, nil, ProxyRef{}, nil, func(any) { released = true }, nil)

	endFired := false
	c.SetEnd(func(bool, transport.Proxy, any) { endFired = true }, ProxyRef{}, nil, nil)

	c.Start()
	c.Delete()
	loop.RunUntilIdle()

	require.True(t, released)
	require.False(t, endFired)
}

func TestChain_EmptyChainWithEndFuncFiresImmediatelyOnStart(t *testing.T) {
	loop := eventloop.NewManual()
	tr := faketransport.New(loop)
	c := New(loop, tr)

	ended := false
	c.SetEnd(func(bool, transport.Proxy, any) { ended = true }, ProxyRef{}, nil, nil)

	c.Start()
	loop.RunUntilIdle()

	require.True(t, ended)
}
