package servicetask

import (
	"testing"

	"github.com/stretchr/testify/require"

	taskrunner "github.com/halvorsen/msutaskrunner"
	"github.com/halvorsen/msutaskrunner/chain"
	"github.com/halvorsen/msutaskrunner/eventloop"
	"github.com/halvorsen/msutaskrunner/transport"
	"github.com/halvorsen/msutaskrunner/transport/faketransport"
)

func TestTask_SynchronousActionCompletesQueueTask(t *testing.T) {
	loop := eventloop.NewManual()
	tr := faketransport.New(loop)

	proc, err := taskrunner.New(func() {}, taskrunner.WithLoop(loop))
	require.NoError(t, err)

	completed := 0
	key := proc.AddQueue("client", "device", taskrunner.QueueAutoStart,
		ProcessHook, CancelHook, func(atom taskrunner.Atom, _ any) {
			completed++
			DeleteHook(atom, nil)
		})

	task := New(loop, tr, func(transport.Proxy) (transport.Outstanding, bool) {
		return nil, false
	}, "device-1", chain.ProxyRef{}, nil, nil, nil)

	require.NoError(t, proc.AddTask(key, task))
	loop.RunUntilIdle()

	require.Equal(t, 1, completed)
	require.False(t, task.IsCancelled())
	require.NoError(t, task.Err())
}

func TestTask_CancelledBeforeDispatchReportsErrCancelled(t *testing.T) {
	loop := eventloop.NewManual()
	tr := faketransport.New(loop)

	proc, err := taskrunner.New(func() {}, taskrunner.WithLoop(loop))
	require.NoError(t, err)

	var gotErr error
	key := proc.AddQueue("client", "device", taskrunner.QueueAutoStart,
		ProcessHook, CancelHook, func(atom taskrunner.Atom, _ any) {
			gotErr = atom.(*Task).Err()
			DeleteHook(atom, nil)
		})

	task := New(loop, tr, func(transport.Proxy) (transport.Outstanding, bool) {
		t.Fatal("action must not run once the queue is cancelled before dispatch")
		return nil, false
	}, "device-1", chain.ProxyRef{}, nil, nil, nil)

	require.NoError(t, proc.AddTask(key, task))
	proc.CancelQueue(key)
	loop.RunUntilIdle()

	require.ErrorIs(t, gotErr, taskrunner.ErrCancelled)
}

func TestTask_SynchronousActionFailureReportsErrActionBeginFailed(t *testing.T) {
	loop := eventloop.NewManual()
	tr := faketransport.New(loop)

	proc, err := taskrunner.New(func() {}, taskrunner.WithLoop(loop))
	require.NoError(t, err)

	var gotErr error
	key := proc.AddQueue("client", "device", taskrunner.QueueAutoStart,
		ProcessHook, CancelHook, func(atom taskrunner.Atom, _ any) {
			gotErr = atom.(*Task).Err()
			DeleteHook(atom, nil)
		})

	task := New(loop, tr, func(transport.Proxy) (transport.Outstanding, bool) {
		return nil, true // synchronous failure
	}, "device-1", chain.ProxyRef{}, nil, nil, nil)

	require.NoError(t, proc.AddTask(key, task))
	loop.RunUntilIdle()

	require.ErrorIs(t, gotErr, taskrunner.ErrActionBeginFailed)
	require.False(t, task.IsCancelled(), "a failed action-begin is not an explicit cancellation")
}

func TestTask_DeletedBeforeEverStartingReportsErrDied(t *testing.T) {
	loop := eventloop.NewManual()
	tr := faketransport.New(loop)

	task := New(loop, tr, func(transport.Proxy) (transport.Outstanding, bool) {
		t.Fatal("action must not run on a task that is deleted before it is ever processed")
		return nil, false
	}, "device-1", chain.ProxyRef{}, nil, nil, nil)

	DeleteHook(task, nil)

	require.ErrorIs(t, task.Err(), taskrunner.ErrDied)
	require.False(t, task.IsCancelled())
}
