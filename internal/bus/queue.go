package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"tradecore/pkg/exception"
)

// Queue is a bounded, non-blocking event queue with a single consumer.
type Queue struct {
	ch      chan Event
	closeMu sync.RWMutex
	closed  uint32
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Event, capacity)}
}

// TryPublish enqueues an event without blocking.
func (q *Queue) TryPublish(e Event) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if atomic.LoadUint32(&q.closed) != 0 {
		return exception.ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return exception.ErrQueueFull
	}
}

// Len returns the number of events waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops the queue from accepting new events. Events already queued are
// still handed to Run.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Run consumes events until the context is done or the queue is closed and drained.
func (q *Queue) Run(ctx context.Context, handler func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}
