// Package operator runs the watch engine for many resource kinds at once.
//
// Each registered resource kind is watched in its own goroutine with its own
// queue table and worker pool; objects of different kinds never share
// ordering or backpressure. Run blocks until every watch has ended and
// reports their failures together.
package operator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/olivier-mauras/kopf/watch"
	"github.com/olivier-mauras/kopf/watch/types"
)

// Sentinel errors.
var (
	ErrAlreadyRunning = errors.New("operator: already running")
	ErrNothingWatched = errors.New("operator: no resources registered")
)

// Operator owns one source and a set of (resource, handler) registrations.
type Operator struct {
	source    types.Source
	namespace string
	watchOpts []watch.Option

	mu      sync.Mutex
	running bool
	watches []registration
}

type registration struct {
	resource types.Resource
	handler  types.Handler
}

// Option configures an Operator.
type Option func(*Operator)

// WithNamespace scopes every watch to one namespace. Default is
// cluster-wide.
func WithNamespace(ns string) Option {
	return func(o *Operator) {
		o.namespace = ns
	}
}

// WithWatchOptions forwards tunables to every watch started by Run.
func WithWatchOptions(opts ...watch.Option) Option {
	return func(o *Operator) {
		o.watchOpts = append(o.watchOpts, opts...)
	}
}

// New creates an Operator reading from the given source.
func New(source types.Source, opts ...Option) *Operator {
	o := &Operator{source: source}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Register adds a resource kind and its handler. Must be called before Run.
func (o *Operator) Register(resource types.Resource, handler types.Handler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.watches = append(o.watches, registration{resource: resource, handler: handler})
}

// Run watches every registered resource kind in parallel until ctx is
// cancelled or all streams end. Failures of independent watches do not stop
// each other; they are collected and returned together. A clean end of all
// streams returns nil.
func (o *Operator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	if len(o.watches) == 0 {
		o.mu.Unlock()
		return ErrNothingWatched
	}
	o.running = true
	watches := make([]registration, len(o.watches))
	copy(watches, o.watches)
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	var (
		wg     sync.WaitGroup
		errmu  sync.Mutex
		result *multierror.Error
	)
	for _, reg := range watches {
		wg.Add(1)
		go func(reg registration) {
			defer wg.Done()
			err := watch.Watch(ctx, o.source, reg.resource, o.namespace, reg.handler, o.watchOpts...)
			if err != nil {
				errmu.Lock()
				result = multierror.Append(result, fmt.Errorf("watch %s: %w", reg.resource, err))
				errmu.Unlock()
			}
		}(reg)
	}
	wg.Wait()

	return result.ErrorOrNil()
}

// IsRunning reports whether Run is currently active.
func (o *Operator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}
