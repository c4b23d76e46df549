// Package taskqueue provides the FIFO handoff between request producers and
// a worker pool.
package taskqueue

import "sync"

// Queue is an unbounded, insertion-ordered queue shared by producers and
// consumers. Pop blocks until an item is available.
type Queue[T any] struct {
	mu       sync.Mutex
	nonEmpty *sync.Cond
	items    []T
	head     int
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.nonEmpty = sync.NewCond(&q.mu)
	return q
}

// Push appends item and wakes every blocked consumer.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.nonEmpty.Broadcast()
}

// Pop removes and returns the head item, blocking while the queue is empty.
func (q *Queue[T]) Pop() T {
	q.mu.Lock()
	defer q.mu.Unlock()
	// Several consumers wake on each Broadcast; only those that still see
	// an item may take one.
	for q.head == len(q.items) {
		q.nonEmpty.Wait()
	}
	item := q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 1024 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
