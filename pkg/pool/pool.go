// Package pool provides typed object pools for the buffers reused on hot
// paths: row encoding and archive spooling.
//
// Example usage:
//
//	buf := pool.Buffers.Get()
//	defer pool.Buffers.Put(buf)
//
//	myPool := pool.New(
//	    func() *MyType { return &MyType{} },
//	    func(obj *MyType) { obj.Reset() },
//	)
//	obj := myPool.Get()
//	defer myPool.Put(obj)
package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// Pool is a type-safe wrapper around sync.Pool that resets objects on Put
// and counts allocations. It is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	keep  func(T) bool
	stats struct {
		allocated atomic.Int64
		inUse     atomic.Int64
		gets      atomic.Int64
	}
}

// New creates a pool. reset, if non-nil, runs before an object is pooled.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		p.stats.allocated.Add(1)
		return newFn()
	}
	return p
}

// WithLimit makes Put drop objects for which keep returns false, so that
// one oversized object does not stay pinned in the pool
func (p *Pool[T]) WithLimit(keep func(T) bool) *Pool[T] {
	p.keep = keep
	return p
}

// Get returns a pooled object or a new one
func (p *Pool[T]) Get() T {
	p.stats.gets.Add(1)
	p.stats.inUse.Add(1)
	return p.pool.Get().(T)
}

// Put returns obj to the pool
func (p *Pool[T]) Put(obj T) {
	p.stats.inUse.Add(-1)
	if p.keep != nil && !p.keep(obj) {
		return
	}
	if p.reset != nil {
		p.reset(obj)
	}
	p.pool.Put(obj)
}

// Stats reports how many objects were allocated, how many are checked out
// and how many Get calls were served
func (p *Pool[T]) Stats() (allocated, inUse, gets int64) {
	return p.stats.allocated.Load(), p.stats.inUse.Load(), p.stats.gets.Load()
}

const (
	bufferSize    = 4096
	maxBufferSize = 1 << 20
	copySize      = 32 * 1024
)

var (
	// Buffers holds bytes.Buffers of up to 1MB, reset on Put
	Buffers = New(
		func() *bytes.Buffer { return bytes.NewBuffer(make([]byte, 0, bufferSize)) },
		func(b *bytes.Buffer) { b.Reset() },
	).WithLimit(func(b *bytes.Buffer) bool { return b.Cap() <= maxBufferSize })

	// CopyBuffers holds 32KB scratch slices for io.CopyBuffer
	CopyBuffers = New(
		func() *[]byte {
			b := make([]byte, copySize)
			return &b
		},
		nil,
	)
)
