// Package config loads the worker tunables of the watch engine from the
// process environment and, optionally, a YAML file.
//
// Precedence, lowest to highest: built-in defaults, the YAML file, the
// environment (with .env support for development).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/olivier-mauras/kopf/watch"
	"github.com/olivier-mauras/kopf/watch/types"
)

// Workers carries the tunables of the per-object queueing system.
type Workers struct {
	// QueueWorkersLimit caps the concurrent per-object workers of one watch.
	QueueWorkersLimit int `env:"KOPF_QUEUE_WORKERS_LIMIT"`

	// WorkerIdleTimeout is the silence after which a worker self-terminates.
	WorkerIdleTimeout time.Duration `env:"KOPF_WORKER_IDLE_TIMEOUT"`

	// WorkerBatchWindow is the wait while coalescing a burst of events.
	WorkerBatchWindow time.Duration `env:"KOPF_WORKER_BATCH_WINDOW"`

	// WorkerExitTimeout bounds graceful depletion on shutdown.
	WorkerExitTimeout time.Duration `env:"KOPF_WORKER_EXIT_TIMEOUT"`
}

// UnmarshalYAML decodes the snake_case keys, with the durations in the
// "250ms"/"5s" notation. Absent keys leave the current values untouched.
func (w *Workers) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		QueueWorkersLimit *int    `yaml:"queue_workers_limit"`
		WorkerIdleTimeout *string `yaml:"worker_idle_timeout"`
		WorkerBatchWindow *string `yaml:"worker_batch_window"`
		WorkerExitTimeout *string `yaml:"worker_exit_timeout"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.QueueWorkersLimit != nil {
		w.QueueWorkersLimit = *raw.QueueWorkersLimit
	}
	for _, field := range []struct {
		value *string
		into  *time.Duration
	}{
		{raw.WorkerIdleTimeout, &w.WorkerIdleTimeout},
		{raw.WorkerBatchWindow, &w.WorkerBatchWindow},
		{raw.WorkerExitTimeout, &w.WorkerExitTimeout},
	} {
		if field.value == nil {
			continue
		}
		d, err := time.ParseDuration(*field.value)
		if err != nil {
			return err
		}
		*field.into = d
	}
	return nil
}

// Default returns the stock tunables.
func Default() Workers {
	return Workers{
		QueueWorkersLimit: types.DefaultWorkersLimit,
		WorkerIdleTimeout: types.DefaultIdleTimeout,
		WorkerBatchWindow: types.DefaultBatchWindow,
		WorkerExitTimeout: types.DefaultExitTimeout,
	}
}

// Load builds the tunables from defaults, the YAML file at path (skipped if
// path is empty), and the environment, in that order. A .env file in the
// working directory is honored if present.
func Load(path string) (Workers, error) {
	_ = godotenv.Load() // best-effort, development convenience

	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("config: environment: %w", err)
	}
	return cfg, nil
}

// Options bridges the tunables into watch options.
func (w Workers) Options() []watch.Option {
	return []watch.Option{
		watch.WithWorkersLimit(w.QueueWorkersLimit),
		watch.WithIdleTimeout(w.WorkerIdleTimeout),
		watch.WithBatchWindow(w.WorkerBatchWindow),
		watch.WithExitTimeout(w.WorkerExitTimeout),
	}
}
