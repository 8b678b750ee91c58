package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"

	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

// Handler consumes one event. A returned error stops the remaining handlers
// of that event and is handed back to the publisher.
type Handler func(ctx context.Context, e Event) error

type dispatchKey struct{}

// Bus binds topics to ordered handler lists and serializes dispatch.
type Bus struct {
	dispatchMu sync.Mutex

	mu       sync.RWMutex
	handlers map[enum.Topic][]Handler

	seq atomic.Uint64
	now func() time.Time
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		handlers: make(map[enum.Topic][]Handler),
		now:      time.Now,
	}
}

// Register appends a handler to the topic. Duplicates are kept and run in
// registration order.
func (b *Bus) Register(topic enum.Topic, h Handler) error {
	if !topic.IsAvailable() {
		return errors.Wrapf(exception.ErrUnknownTopic, "topic: %d", topic)
	}
	if h == nil {
		return exception.ErrNilHandler
	}
	b.mu.Lock()
	b.handlers[topic] = append(b.handlers[topic], h)
	b.mu.Unlock()
	return nil
}

// Handlers returns how many handlers are bound to the topic.
func (b *Bus) Handlers(topic enum.Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[topic])
}

// Publish runs every handler of e.Topic on the calling goroutine. Calls from
// different goroutines are serialized; a publish made from inside a handler
// with the handler's context runs inline on the same dispatch.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	if !e.Topic.IsAvailable() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if owner, _ := ctx.Value(dispatchKey{}).(*Bus); owner == b {
		return b.dispatch(ctx, e)
	}

	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()
	return b.dispatch(context.WithValue(ctx, dispatchKey{}, b), e)
}

func (b *Bus) dispatch(ctx context.Context, e Event) error {
	if e.Seq == 0 {
		e.Seq = b.seq.Add(1)
	}
	if e.Time.IsZero() {
		e.Time = b.now()
	}

	b.mu.RLock()
	handlers := b.handlers[e.Topic]
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			return errors.Wrapf(err, "dispatch %s #%d", e.Topic, e.Seq)
		}
	}
	return nil
}

// InDispatch reports whether ctx belongs to a running dispatch of any bus.
func InDispatch(ctx context.Context) bool {
	owner, _ := ctx.Value(dispatchKey{}).(*Bus)
	return owner != nil
}

// Detach returns a context that no longer owns a dispatch. Work handed to
// other goroutines must use it so their publishes take the dispatch lock.
func Detach(ctx context.Context) context.Context {
	if !InDispatch(ctx) {
		return ctx
	}
	return context.WithValue(ctx, dispatchKey{}, (*Bus)(nil))
}
