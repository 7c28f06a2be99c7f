package notisync

import (
	"context"
	"sync"
)

// eventQueue is an unbounded FIFO of closures drained by one goroutine.
//
// push never blocks, so broker callbacks and timers can hand work to the
// event loop without waiting on it.
type eventQueue struct {
	mu     sync.Mutex
	items  []func()
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

// push appends fn. It reports false once the queue is closed.
func (q *eventQueue) push(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

func (q *eventQueue) drain() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil

	return items
}

// close rejects further pushes and drops whatever is pending.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.items = nil
}

// run executes queued closures in order until ctx is cancelled. Each closure
// runs to completion before the next one starts.
func (q *eventQueue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.signal:
			for _, fn := range q.drain() {
				if ctx.Err() != nil {
					return
				}
				fn()
			}
		}
	}
}
