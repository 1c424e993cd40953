package watch

import (
	"time"

	"github.com/olivier-mauras/kopf/watch/types"
)

// Config carries the worker tunables of one watch.
type Config struct {
	// WorkersLimit caps the concurrently running per-object workers.
	WorkersLimit int

	// IdleTimeout is how long a worker waits on an empty queue before it
	// self-terminates and releases the object's queue.
	IdleTimeout time.Duration

	// BatchWindow is how long a worker keeps collapsing a burst of events
	// for one object before dispatching only the latest of them.
	BatchWindow time.Duration

	// ExitTimeout bounds graceful depletion: workers still running after
	// this long are forcibly cancelled by pool closure.
	ExitTimeout time.Duration
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		WorkersLimit: types.DefaultWorkersLimit,
		IdleTimeout:  types.DefaultIdleTimeout,
		BatchWindow:  types.DefaultBatchWindow,
		ExitTimeout:  types.DefaultExitTimeout,
	}
}

// Option adjusts the tunables of one watch.
type Option func(*Config)

// WithWorkersLimit sets the max concurrent workers. Default is 100.
func WithWorkersLimit(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.WorkersLimit = n
		}
	}
}

// WithIdleTimeout sets the silent wait before a worker self-terminates.
// Default is 5s: long enough to avoid churning workers for objects with
// bursty-but-sparse activity.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.IdleTimeout = d
		}
	}
}

// WithBatchWindow sets the coalescing window. Default is 100ms: a burst of
// rapid updates within the window collapses into one handler call carrying
// only the latest event.
func WithBatchWindow(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.BatchWindow = d
		}
	}
}

// WithExitTimeout sets the total time allotted to graceful depletion before
// the pool is closed forcibly. Default is 2s.
func WithExitTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ExitTimeout = d
		}
	}
}

// WithConfig replaces all tunables at once, e.g. from the config package.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}
