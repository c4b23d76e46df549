// Package workerpool runs a fixed set of goroutines that consume a task queue.
package workerpool

import (
	"sync"
	"sync/atomic"

	"github.com/sheerbytes/getfile/internal/taskqueue"
)

// WorkFunc handles one item. worker is the index of the unit running it.
type WorkFunc[T any] func(worker int, item T)

// Pool is a fixed-size set of workers bound to one queue.
//
// A pool started with a positive quota is joined with Wait once every unit
// has handled its share. A pool started with quota 0 runs until the process
// exits and is never joined.
type Pool[T any] struct {
	queue     *taskqueue.Queue[T]
	wg        sync.WaitGroup
	started   atomic.Bool
	processed atomic.Int64
	size      int
}

// New creates a pool that consumes queue.
func New[T any](queue *taskqueue.Queue[T]) *Pool[T] {
	return &Pool[T]{queue: queue}
}

// Start launches n workers. Each worker stops after quota items; quota <= 0
// means it never stops. Start may only be called once.
func (p *Pool[T]) Start(n int, quota int, fn WorkFunc[T]) {
	if n < 1 {
		n = 1
	}
	if !p.started.CompareAndSwap(false, true) {
		panic("workerpool: Start called twice")
	}
	p.size = n
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.run(i, quota, fn)
	}
}

func (p *Pool[T]) run(worker, quota int, fn WorkFunc[T]) {
	defer p.wg.Done()
	for handled := 0; quota <= 0 || handled < quota; handled++ {
		item := p.queue.Pop()
		fn(worker, item)
		p.processed.Add(1)
	}
}

// Wait blocks until every worker has reached its quota. It must not be
// called on an unbounded pool.
func (p *Pool[T]) Wait() {
	p.wg.Wait()
}

// Size returns the number of workers started.
func (p *Pool[T]) Size() int {
	return p.size
}

// Processed returns how many items the workers have finished.
func (p *Pool[T]) Processed() int64 {
	return p.processed.Load()
}
