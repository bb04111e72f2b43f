package faketransport

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/halvorsen/msutaskrunner/eventloop"
	"github.com/halvorsen/msutaskrunner/transport"
)

func TestBegin_SynchronousActionNeverSchedulesCompletion(t *testing.T) {
	loop := eventloop.NewManual()
	tr := New(loop)

	outstanding, err := tr.Begin("proxy", func(transport.Proxy) (transport.Outstanding, bool) {
		return nil, false
	}, func(transport.Proxy, transport.Outstanding, any) {
		t.Fatal("completion must not fire for a synchronous action")
	}, nil)

	require.NoError(t, err)
	require.Nil(t, outstanding)
	require.Equal(t, 0, loop.Pending())
}

func TestBegin_AsynchronousActionDeliversCompletionOnLoop(t *testing.T) {
	loop := eventloop.NewManual()
	tr := New(loop)

	var fired bool
	outstanding, err := tr.Begin("proxy", func(transport.Proxy) (transport.Outstanding, bool) {
		return struct{}{}, false
	}, func(transport.Proxy, transport.Outstanding, any) {
		fired = true
	}, nil)

	require.NoError(t, err)
	require.NotNil(t, outstanding)
	require.False(t, fired)

	loop.RunUntilIdle()
	require.True(t, fired)
}

func TestCancel_SuppressesCompletion(t *testing.T) {
	loop := eventloop.NewManual()
	tr := New(loop)

	fired := false
	outstanding, err := tr.Begin("proxy", func(transport.Proxy) (transport.Outstanding, bool) {
		return struct{}{}, false
	}, func(transport.Proxy, transport.Outstanding, any) {
		fired = true
	}, nil)
	require.NoError(t, err)

	require.NoError(t, tr.Cancel("proxy", outstanding))
	loop.RunUntilIdle()

	require.False(t, fired)
}

func TestBegin_SynchronousFailureReturnsError(t *testing.T) {
	loop := eventloop.NewManual()
	tr := New(loop)

	_, err := tr.Begin("proxy", func(transport.Proxy) (transport.Outstanding, bool) {
		return nil, true
	}, nil, nil)
	require.Error(t, err)
}
