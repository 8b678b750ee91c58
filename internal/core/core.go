/*
Core wires the bus, the recorder and the extension fan-out into an engine.

# Module
  - in-memory bus: receives gateway events and runs the recorder handlers
  - recorder: stores snapshots, reconciles positions and resolves main contracts
  - fan-out: delivers copies of updates to registered extensions

# Engine
  - blocking: publish runs every handler and extension on the caller before returning
  - cooperative: publish enqueues, one consumer dispatches, extension invocations run as
    joined tasks; recorder mutations never overlap an invocation

# Source
 1. JSON-lines event replay from the replay command
 2. synthetic market data from the paper command
*/
package core

import (
	"context"

	"github.com/yanun0323/errors"

	"tradecore/internal/bus"
	"tradecore/internal/fanout"
	"tradecore/internal/obs"
	"tradecore/internal/recorder"
	"tradecore/pkg/exception"
)

// Mode selects an execution model.
type Mode string

const (
	ModeBlocking    Mode = "blocking"
	ModeCooperative Mode = "cooperative"
)

func (m Mode) IsAvailable() bool {
	return m == ModeBlocking || m == ModeCooperative
}

// Engine is the contract both execution models expose.
type Engine interface {
	// Start launches background work. Blocking engines have none.
	Start(ctx context.Context) error
	Publish(ctx context.Context, e bus.Event) error
	Register(ext fanout.Extension) error
	Recorder() *recorder.Recorder
	Metrics() *obs.Metrics
	// Close stops accepting events and returns once accepted events are done.
	Close() error
}

// Config holds what both engines need.
type Config struct {
	Mode                    Mode
	Recorder                recorder.Config
	InstrumentIndependent   bool
	QueueSize               int
	MaxConcurrentExtensions int
	// OnError receives dispatch errors the caller cannot see, i.e. those of
	// events processed asynchronously by the cooperative engine.
	OnError func(e bus.Event, err error)
}

// New builds the engine selected by cfg.Mode.
func New(cfg Config) (Engine, error) {
	switch cfg.Mode {
	case ModeBlocking, "":
		return NewBlocking(cfg)
	case ModeCooperative:
		return NewCooperative(cfg)
	default:
		return nil, errors.Wrapf(exception.ErrMisconfiguration, "unknown mode %q", cfg.Mode)
	}
}

type parts struct {
	bus      *bus.Bus
	fanout   *fanout.Fanout
	recorder *recorder.Recorder
	metrics  *obs.Metrics
}

func assemble(cfg Config, rt fanout.Runtime) (parts, error) {
	m := obs.NewMetrics()
	b := bus.New()
	f := fanout.New(fanout.Config{
		InstrumentIndependent: cfg.InstrumentIndependent,
		Runtime:               rt,
		Metrics:               m,
	})
	r, err := recorder.New(cfg.Recorder, b, f, m)
	if err != nil {
		return parts{}, err
	}
	return parts{bus: b, fanout: f, recorder: r, metrics: m}, nil
}
