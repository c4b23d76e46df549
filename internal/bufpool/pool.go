// Package bufpool recycles fixed-size chunk buffers between transfers.
package bufpool

import (
	"sync"
)

// Pool hands out buffers of exactly Size bytes. Buffers travel as *[]byte so
// that Put does not allocate.
type Pool struct {
	pool sync.Pool
	size int
}

// New creates a pool of size-byte buffers. It panics if size is not positive.
func New(size int) *Pool {
	if size <= 0 {
		panic("bufpool: size must be positive")
	}
	p := &Pool{size: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

// Get returns a buffer of length Size. Its contents are unspecified.
func (p *Pool) Get() *[]byte {
	b := p.pool.Get().(*[]byte)
	*b = (*b)[:p.size]
	return b
}

// Put returns b to the pool. Buffers of the wrong capacity are dropped.
func (p *Pool) Put(b *[]byte) {
	if b == nil || cap(*b) != p.size {
		return
	}
	p.pool.Put(b)
}

// Size returns the buffer length served by the pool.
func (p *Pool) Size() int {
	return p.size
}

var shared sync.Map // map[int]*Pool

// For returns the process-wide pool for size-byte buffers.
func For(size int) *Pool {
	if p, ok := shared.Load(size); ok {
		return p.(*Pool)
	}
	p, _ := shared.LoadOrStore(size, New(size))
	return p.(*Pool)
}
