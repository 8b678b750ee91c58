package core

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/bus"
	"tradecore/internal/fanout"
	"tradecore/internal/obs"
	"tradecore/internal/recorder"
	"tradecore/pkg/exception"
)

const (
	defaultQueueSize     = 4096
	defaultMaxExtensions = 8
)

// Cooperative accepts events into a bounded queue and dispatches them from a
// single consumer. Only extension invocations run concurrently, and they are
// all joined before the next event is dispatched.
type Cooperative struct {
	parts
	queue   *bus.Queue
	onError func(bus.Event, error)

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// NewCooperative creates a cooperative engine. Start must be called before
// published events are processed.
func NewCooperative(cfg Config) (*Cooperative, error) {
	limit := cfg.MaxConcurrentExtensions
	if limit <= 0 {
		limit = defaultMaxExtensions
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	p, err := assemble(cfg, fanout.NewConcurrent(limit))
	if err != nil {
		return nil, err
	}
	onError := cfg.OnError
	if onError == nil {
		onError = func(e bus.Event, err error) {
			logs.Errorf("dispatch %s #%d: %s", e.Topic, e.Seq, err.Error())
		}
	}
	return &Cooperative{
		parts:   p,
		queue:   bus.NewQueue(size),
		onError: onError,
		done:    make(chan struct{}),
	}, nil
}

// Start launches the consumer. It stops when ctx is done or after Close once
// the queue is drained.
func (e *Cooperative) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errors.Wrap(exception.ErrInvalidArgument, "cooperative engine already started")
	}
	e.started = true

	go func() {
		defer close(e.done)
		e.queue.Run(ctx, func(ev bus.Event) {
			e.dispatch(ctx, ev)
		})
	}()
	return nil
}

func (e *Cooperative) dispatch(ctx context.Context, ev bus.Event) {
	start := time.Now()
	if err := e.bus.Publish(ctx, ev); err != nil {
		e.onError(ev, err)
	}
	e.metrics.ObserveEvent(ev.Topic, time.Since(start))
}

// Publish enqueues ev without blocking. Dispatch errors are reported to
// Config.OnError since they happen after Publish returns.
func (e *Cooperative) Publish(_ context.Context, ev bus.Event) error {
	err := e.queue.TryPublish(ev)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, exception.ErrQueueFull):
		e.metrics.IncQueueDrop()
	case errors.Is(err, exception.ErrQueueClosed):
		e.metrics.IncQueueClosed()
	}
	return err
}

func (e *Cooperative) Register(ext fanout.Extension) error {
	return e.fanout.Register(ext)
}

func (e *Cooperative) Recorder() *recorder.Recorder {
	return e.recorder
}

func (e *Cooperative) Metrics() *obs.Metrics {
	return e.metrics
}

// Pending returns the number of queued events.
func (e *Cooperative) Pending() int {
	return e.queue.Len()
}

// Close stops accepting events and waits for the consumer to drain the
// queue. Without Start it returns at once.
func (e *Cooperative) Close() error {
	e.queue.Close()
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if started {
		<-e.done
	}
	return nil
}
