// Package rb implements a lock-free single producer single consumer queue.
package rb

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// SPSC is a bounded queue for exactly one producer goroutine and one
// consumer goroutine. Push and Pop never block.
type SPSC[T any] struct {
	head uint32

	_ cpu.CacheLinePad

	tail uint32

	_ cpu.CacheLinePad

	headShared atomic.Uint32

	_ cpu.CacheLinePad

	tailShared atomic.Uint32

	_ cpu.CacheLinePad

	capacity uint32
	capMask  uint32

	_ cpu.CacheLinePad

	buffer []T
}

// NewSPSC returns a queue holding at least capacity items.
// The capacity is rounded up to a power of 2.
func NewSPSC[T any](capacity uint32) *SPSC[T] {
	capacity = roundToPowerOf2(max(capacity, 1))

	return &SPSC[T]{
		capacity: capacity,
		capMask:  capacity - 1,

		buffer: make([]T, capacity),
	}
}

// Push appends an item. It returns false when the queue is full.
// Only the producer may call it.
func (q *SPSC[T]) Push(item T) bool {
	head := q.head
	tail := q.tailShared.Load()

	if head-tail >= q.capacity {
		return false
	}

	q.buffer[head&q.capMask] = item

	q.head = head + 1
	q.headShared.Store(head + 1)

	return true
}

// Pop removes the oldest item. It returns false when the queue is empty.
// Only the consumer may call it.
func (q *SPSC[T]) Pop() (T, bool) {
	var zero T

	head := q.headShared.Load()
	tail := q.tail

	if head == tail {
		return zero, false
	}

	idx := tail & q.capMask
	item := q.buffer[idx]
	q.buffer[idx] = zero

	q.tail = tail + 1
	q.tailShared.Store(tail + 1)

	return item, true
}

// Len returns the number of queued items. It may be called from any goroutine.
func (q *SPSC[T]) Len() uint32 {
	return q.headShared.Load() - q.tailShared.Load()
}

// Cap returns the capacity of the queue.
func (q *SPSC[T]) Cap() uint32 {
	return q.capacity
}
