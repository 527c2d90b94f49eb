// The MIT License
//
// Copyright (c) 2023-2024 by the author(s)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//
// Description:
//
// Bounded single-producer single-consumer ring. The two instances of this
// ring are the only memory shared between the control CPU and the data CPU.
// Each side keeps a private cached copy of the other side's index and only
// refreshes it when the ring appears full/empty, which keeps the common case
// down to one atomic load of the own index and one store. The capacity must
// be a power of two so the wrap-around is a mask instead of a branch.
//
// The producer methods must only ever be called from one goroutine and the
// consumer methods only from one other goroutine. Anything else is undefined.

package gotgen

import "sync/atomic"

// SpscRing is a bounded lock-free queue for exactly one producer and one
// consumer goroutine.
type SpscRing[T any] struct {
	// producer side variables, on their own cache line
	head     atomic.Uint64 // next slot to be published
	prodTail uint64        // cached copy of tail
	_        [48]byte

	// consumer side variables, on their own cache line
	tail     atomic.Uint64 // next slot to be consumed
	consHead uint64        // cached copy of head
	_        [48]byte

	mask uint64
	buf  []T
}

// NewSpscRing creates a ring with the given capacity. The capacity must be a
// non-zero power of two.
func NewSpscRing[T any](capacity uint64) *SpscRing[T] {
	if capacity == 0 || (capacity&(capacity-1)) != 0 {
		Log(LOG_ERR, "SpscRing capacity must be a non-zero power of 2, got %d",
			capacity)
	}
	return &SpscRing[T]{
		mask: capacity - 1,
		buf:  make([]T, capacity),
	}
}

// TryPush appends a single value. It returns false if the ring is full.
// Producer side only.
func (r *SpscRing[T]) TryPush(v T) bool {
	head := r.head.Load()
	if head-r.prodTail == r.Capacity() {
		r.prodTail = r.tail.Load()
		if head-r.prodTail == r.Capacity() {
			return false
		}
	}
	r.buf[head&r.mask] = v
	r.head.Store(head + 1)
	return true
}

// PushBulk appends as many of the given values as fit and returns the count
// actually pushed. Producer side only.
func (r *SpscRing[T]) PushBulk(vs []T) int {
	head := r.head.Load()
	avail := r.Capacity() - (head - r.prodTail)
	if avail < uint64(len(vs)) {
		r.prodTail = r.tail.Load()
		avail = r.Capacity() - (head - r.prodTail)
		if avail == 0 {
			return 0
		}
	}
	n := uint64(len(vs))
	if n > avail {
		n = avail
	}
	for i := uint64(0); i < n; i++ {
		r.buf[(head+i)&r.mask] = vs[i]
	}
	r.head.Store(head + n)
	return int(n)
}

// TryPop removes and returns a single value. The second result is false if
// the ring is empty. Consumer side only.
func (r *SpscRing[T]) TryPop() (T, bool) {
	var zero T
	tail := r.tail.Load()
	if r.consHead-tail == 0 {
		r.consHead = r.head.Load()
		if r.consHead-tail == 0 {
			return zero, false
		}
	}
	v := r.buf[tail&r.mask]
	// drop the slot's reference so the consumed value can be collected
	r.buf[tail&r.mask] = zero
	r.tail.Store(tail + 1)
	return v, true
}

// PopBulk removes up to len(into) values and returns the count transferred.
// Consumer side only.
func (r *SpscRing[T]) PopBulk(into []T) int {
	var zero T
	tail := r.tail.Load()
	avail := r.consHead - tail
	if avail == 0 {
		r.consHead = r.head.Load()
		avail = r.consHead - tail
		if avail == 0 {
			return 0
		}
	}
	n := uint64(len(into))
	if n > avail {
		n = avail
	}
	for i := uint64(0); i < n; i++ {
		into[i] = r.buf[(tail+i)&r.mask]
		r.buf[(tail+i)&r.mask] = zero
	}
	r.tail.Store(tail + n)
	return int(n)
}

// Len returns the number of values currently queued. Callable from any
// goroutine; the result is naturally racy.
func (r *SpscRing[T]) Len() uint64 {
	return r.head.Load() - r.tail.Load()
}

// Capacity returns the fixed capacity of the ring.
func (r *SpscRing[T]) Capacity() uint64 {
	return r.mask + 1
}
