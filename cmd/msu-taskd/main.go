// Command msu-taskd is a small demonstration harness for the taskrunner
// library: it wires a Processor to an in-memory fake transport, drives one
// content-directory-shaped request through a servicetask.Task, and exits
// once the processor has drained. It exists to exercise the public API end
// to end, the way a real ingress layer (HTTP/UPnP control-point handler,
// out of this module's scope) would.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	taskrunner "github.com/halvorsen/msutaskrunner"
	"github.com/halvorsen/msutaskrunner/eventloop"
	"github.com/halvorsen/msutaskrunner/logging/zaplogger"
	"github.com/halvorsen/msutaskrunner/metrics"
	"github.com/halvorsen/msutaskrunner/servicetask"
	"github.com/halvorsen/msutaskrunner/transport"
	"github.com/halvorsen/msutaskrunner/transport/faketransport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "msu-taskd",
		Short: "Drive a single demo request through the task-processor runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			v.SetDefault("log_level", "info")
			if logLevel != "" {
				v.Set("log_level", logLevel)
			}
			return run(v.GetString("log_level"))
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug|info|warn|error")
	return cmd
}

func run(logLevel string) error {
	zcfg := zap.NewProductionConfig()
	if err := zcfg.Level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	zlog, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = zlog.Sync() }()
	logger := zaplogger.New(zlog.Sugar())

	loop := eventloop.New()
	defer loop.Close()

	tr := faketransport.New(loop)

	quit := make(chan struct{})
	proc, err := taskrunner.New(
		func() { close(quit) },
		taskrunner.WithLoop(loop),
		taskrunner.WithLogger(logger),
		taskrunner.WithMetrics(metrics.NewBasicProvider()),
		taskrunner.WithErrorTagging(),
	)
	if err != nil {
		return fmt.Errorf("build processor: %w", err)
	}

	source := "control-point:" + uuid.NewString()
	sink := "device:demo-media-server"

	key := proc.AddQueue(source, sink, taskrunner.QueueAutoStart|taskrunner.QueueAutoRemove,
		servicetask.ProcessHook, servicetask.CancelHook, servicetask.DeleteHook)

	requestDone := make(chan struct{})
	if err := proc.SetFinally(key, func(cancelled bool, _ any) {
		logger.Debug("request queue disposed", "cancelled", cancelled)
		close(requestDone)
	}); err != nil {
		return fmt.Errorf("set finally: %w", err)
	}

	deviceRegistry := transport.NewWeakRegistry[string, transport.Proxy]()
	proxyRef := deviceRegistry.Register(sink, fakeDeviceProxy{name: sink})

	action := func(proxy transport.Proxy) (transport.Outstanding, bool) {
		logger.Debug("browsing content directory", "proxy", proxy)
		return nil, false // synchronous success, for this demo
	}

	requestID := uuid.NewString()
	task := servicetask.New(loop, tr, action, sink, proxyRef,
		func(proxy transport.Proxy, outstanding transport.Outstanding, userData any) {
			logger.Debug("browse completed", "request_id", userData)
		},
		nil, requestID)

	if err := proc.AddTask(key, task); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}

	select {
	case <-requestDone:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timed out waiting for the demo request to finish")
	}

	proc.SetQuitting()
	select {
	case <-quit:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timed out waiting for processor shutdown")
	}

	fmt.Println("done")
	return nil
}

type fakeDeviceProxy struct{ name string }
