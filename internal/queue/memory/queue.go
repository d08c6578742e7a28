// Package memory provides an in-process FIFO queue used by the worker pools.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned once the queue has been closed and, for Dequeue,
// drained.
var ErrClosed = errors.New("queue closed")

// Queue is an unbounded FIFO with context-aware dequeue. Enqueue never blocks,
// so producers running on one pool can always hand work to another.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	ready  chan struct{}
	done   chan struct{}
	closed bool
}

// NewQueue constructs an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Enqueue appends item. It fails only after Close.
func (q *Queue[T]) Enqueue(item T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signal()
	return nil
}

// Dequeue pops the oldest item, waiting until one is available. Items queued
// before Close are still handed out; once the queue is closed and empty it
// returns ErrClosed.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	for {
		item, ok, closed := q.pop()
		if ok {
			return item, nil
		}
		if closed {
			return zero, ErrClosed
		}
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case <-q.done:
		case <-q.ready:
		}
	}
}

func (q *Queue[T]) pop() (item T, ok, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.items) {
		return item, false, q.closed
	}
	item = q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else {
		// pass the wakeup on to another waiting consumer
		q.signal()
	}
	return item, true, q.closed
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Drain removes and returns every queued item.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := append([]T(nil), q.items[q.head:]...)
	q.items = nil
	q.head = 0
	return out
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Close rejects further enqueues and wakes blocked consumers. Closing twice is
// safe.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
