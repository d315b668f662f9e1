// Package queue provides an unbounded multi-producer FIFO queue that a
// single consumer can wait on from a select statement.
package queue

import "sync"

// Queue never blocks producers. The consumer selects on Ready() and then
// pops with TryPop until empty; the signal channel carries at most one
// pending wakeup, so one wakeup may cover several pushes.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	ready chan struct{}
}

func New[T any]() *Queue[T] {
	return &Queue[T]{ready: make(chan struct{}, 1)}
}

// Push appends v and signals the consumer.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.signal()
}

// Ready returns the wakeup channel. It never closes.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// TryPop removes and returns the oldest item, if any. When items remain
// after the pop the wakeup is re-armed, so a consumer that pops one item
// per wakeup still drains the queue.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		var zero T
		return zero, false
	}
	v := q.items[0]
	var zero T
	q.items[0] = zero // release the reference
	q.items = q.items[1:]
	more := len(q.items) > 0
	q.mu.Unlock()
	if more {
		q.signal()
	}
	return v, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
