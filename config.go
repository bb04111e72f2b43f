package taskrunner

import (
	"github.com/halvorsen/msutaskrunner/eventloop"
	"github.com/halvorsen/msutaskrunner/metrics"
)

// config holds Processor-wide configuration. Unlike the per-queue flags
// (QueueAutoStart, QueueAutoRemove — see queue.go), everything here applies
// to the whole Processor.
type config struct {
	// Loop is the event loop every queue, chain, and service-task schedules
	// work on. Default: a real goroutine-backed eventloop.New().
	Loop eventloop.Loop

	// Logger receives Debug/Error calls at state-transition points.
	// Default: a no-op logger.
	Logger Logger

	// Metrics receives the queue/task instrument calls.
	// Default: a no-op provider.
	Metrics metrics.Provider

	// ErrorTagging makes Processor.TagError wrap the errors passed to it with
	// QueueKey correlation metadata (see error_tagging.go).
	ErrorTagging bool
}

// defaultConfig centralizes default values for config.
func defaultConfig() config {
	return config{
		Loop:         eventloop.New(),
		Logger:       noopLogger{},
		Metrics:      metrics.NewNoopProvider(),
		ErrorTagging: false,
	}
}

// validateConfig performs lightweight invariant checks.
func validateConfig(cfg *config) error {
	if cfg.Loop == nil {
		return ErrInvalidConfig
	}
	return nil
}
