package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"

	"tradecore/internal/bus"
)

// Call is one extension invocation prepared by the fan-out.
type Call func(ctx context.Context) error

// Runtime executes the invocations of one event and returns their errors by
// index. Every call has finished when Invoke returns.
type Runtime interface {
	Invoke(ctx context.Context, calls []Call) []error
}

// Sequential runs calls one after another on the dispatching goroutine.
type Sequential struct{}

func (Sequential) Invoke(ctx context.Context, calls []Call) []error {
	errs := make([]error, len(calls))
	for i, call := range calls {
		errs[i] = call(ctx)
	}
	return errs
}

// Concurrent runs calls as tasks, at most limit at a time, and joins them
// before returning. Calls see a context detached from the dispatch so any
// event they publish is queued rather than dispatched inline.
type Concurrent struct {
	limit int
}

// NewConcurrent creates a concurrent runtime. A limit below one means no limit.
func NewConcurrent(limit int) *Concurrent {
	return &Concurrent{limit: limit}
}

func (c *Concurrent) Invoke(ctx context.Context, calls []Call) []error {
	errs := make([]error, len(calls))
	if len(calls) == 0 {
		return errs
	}

	ctx = bus.Detach(ctx)
	var g errgroup.Group
	if c != nil && c.limit > 0 {
		g.SetLimit(c.limit)
	}
	for i, call := range calls {
		g.Go(func() error {
			errs[i] = call(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
