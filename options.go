package taskrunner

import (
	"fmt"

	"github.com/halvorsen/msutaskrunner/eventloop"
	"github.com/halvorsen/msutaskrunner/metrics"
)

// Option configures a Processor. Use New(onQuit, opts...) to construct one.
type Option func(*config)

// WithLoop overrides the event loop every queue, chain, and service-task
// schedules work on. Useful for tests: pass eventloop.NewManual() to drive
// scheduling one idle-tick at a time.
func WithLoop(loop eventloop.Loop) Option {
	return func(c *config) { c.Loop = loop }
}

// WithLogger installs the Logger the Processor calls into (see Logger for
// where it is called).
func WithLogger(l Logger) Option {
	return func(c *config) { c.Logger = l }
}

// WithMetrics installs a metrics.Provider the Processor records queue and
// task instruments through.
func WithMetrics(p metrics.Provider) Option {
	return func(c *config) { c.Metrics = p }
}

// WithErrorTagging makes Processor.TagError wrap the errors passed to it with
// the producing QueueKey (see error_tagging.go).
func WithErrorTagging() Option {
	return func(c *config) { c.ErrorTagging = true }
}

// New creates an empty Processor: quitting=false, running=0. onQuit is
// invoked, via the event loop, exactly once, after SetQuitting has been
// called and running has drained to zero.
func New(onQuit func(), opts ...Option) (*Processor, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			panic("nil taskrunner option")
		}
		opt(&cfg)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid taskrunner config: %w", err)
	}

	return newProcessor(&cfg, onQuit), nil
}
