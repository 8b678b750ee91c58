package core

import (
	"context"
	"time"

	"tradecore/internal/bus"
	"tradecore/internal/fanout"
	"tradecore/internal/obs"
	"tradecore/internal/recorder"
)

// Blocking runs every handler and extension to completion on the publishing
// goroutine. Concurrent publishers are serialized by the bus.
type Blocking struct {
	parts
}

// NewBlocking creates a blocking engine.
func NewBlocking(cfg Config) (*Blocking, error) {
	p, err := assemble(cfg, fanout.Sequential{})
	if err != nil {
		return nil, err
	}
	return &Blocking{parts: p}, nil
}

func (e *Blocking) Start(context.Context) error {
	return nil
}

// Publish dispatches ev and returns the first handler error, if any.
// Extensions publishing from OnEvent with the context they were given are
// dispatched inline.
func (e *Blocking) Publish(ctx context.Context, ev bus.Event) error {
	if bus.InDispatch(ctx) {
		return e.bus.Publish(ctx, ev)
	}
	start := time.Now()
	err := e.bus.Publish(ctx, ev)
	e.metrics.ObserveEvent(ev.Topic, time.Since(start))
	return err
}

func (e *Blocking) Register(ext fanout.Extension) error {
	return e.fanout.Register(ext)
}

func (e *Blocking) Recorder() *recorder.Recorder {
	return e.recorder
}

func (e *Blocking) Metrics() *obs.Metrics {
	return e.metrics
}

func (e *Blocking) Close() error {
	return nil
}
