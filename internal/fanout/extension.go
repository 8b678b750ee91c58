package fanout

import (
	"context"
	"slices"

	"tradecore/internal/bus"
)

// Extension is a strategy or other consumer of recorder updates. OnEvent
// receives its own copy of every event it is entitled to.
type Extension interface {
	Name() string
	OnEvent(ctx context.Context, e bus.Event) error
}

// InstrumentFilter is implemented by extensions that only care about some
// instruments. It is consulted on every delivery so subscriptions may change.
type InstrumentFilter interface {
	Instruments() []string
}

// Func adapts a function into an Extension with an optional instrument list.
type Func struct {
	name        string
	instruments []string
	fn          func(ctx context.Context, e bus.Event) error
}

// NewFunc creates a function extension.
func NewFunc(name string, instruments []string, fn func(ctx context.Context, e bus.Event) error) *Func {
	return &Func{name: name, instruments: slices.Clone(instruments), fn: fn}
}

func (f *Func) Name() string {
	return f.name
}

func (f *Func) Instruments() []string {
	return f.instruments
}

func (f *Func) OnEvent(ctx context.Context, e bus.Event) error {
	if f.fn == nil {
		return nil
	}
	return f.fn(ctx, e)
}
