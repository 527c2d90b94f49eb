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
// Fixed-count pool of uniformly sized packet buffers backed by one
// contiguous, page-locked slab. The pool is sized once at startup and never
// grows; allocation failure under exhaustion is reported to the caller, who
// counts it. The pool and its buffers are confined to the data CPU, so no
// synchronization is needed anywhere here.
//
// A buffer is uniquely owned by whoever holds its handle. Passing a buffer
// to transmit transfers ownership to the NIC adapter; Free returns the
// buffer (and its whole segment chain) to the pool.

package gotgen

import "golang.org/x/sys/unix"

// Buffer is one fixed-capacity packet buffer from a pool. Large packets are
// represented as a singly linked chain of segments; PktLen and NbSegs are
// only meaningful on the head segment.
type Buffer struct {
	pool   *BufferPool
	region []byte // headroom + data area, a slice into the pool slab

	length int // data bytes in this segment
	PktLen int // total data bytes in the chain
	NbSegs int

	// tx offload requests consumed by the NIC adapter
	OlFlags uint64
	L2Len   int
	L3Len   int

	Next *Buffer
}

// Data returns the filled data region of this segment.
func (b *Buffer) Data() []byte {
	return b.region[BUF_HEADROOM : BUF_HEADROOM+b.length]
}

// DataLen returns the number of data bytes in this segment.
func (b *Buffer) DataLen() int {
	return b.length
}

// Tailroom returns the number of bytes that can still be appended to this
// segment.
func (b *Buffer) Tailroom() int {
	return BUF_DATA_SIZE - b.length
}

// Append extends the data region of this segment by n bytes and returns the
// newly added region for the caller to fill. The caller maintains PktLen on
// the head of the chain. n must not exceed Tailroom.
func (b *Buffer) Append(n int) []byte {
	if n > b.Tailroom() {
		Log(LOG_ERR, "Buffer append of %d bytes exceeds tailroom %d",
			n, b.Tailroom())
	}
	off := BUF_HEADROOM + b.length
	b.length += n
	return b.region[off : off+n]
}

// Free returns the buffer and all chained segments to its pool. The handle
// must not be used afterwards.
func (b *Buffer) Free() {
	pool := b.pool
	for seg := b; seg != nil; {
		next := seg.Next
		pool.put(seg)
		seg = next
	}
}

// reset prepares a buffer for reuse: zero length, full headroom, no chain.
func (b *Buffer) reset() {
	b.length = 0
	b.PktLen = 0
	b.NbSegs = 1
	b.OlFlags = 0
	b.L2Len = 0
	b.L3Len = 0
	b.Next = nil
}

// BufferPool is a fixed-count packet buffer pool.
type BufferPool struct {
	slab []byte
	bufs []Buffer
	free []*Buffer
}

// NewBufferPool creates a pool of cnt buffers. The backing slab is locked
// into memory on a best effort basis; a failing mlock is logged but not
// fatal since it only affects latency, not correctness.
func NewBufferPool(cnt int) *BufferPool {
	if cnt <= 0 {
		Log(LOG_ERR, "Buffer pool size must be positive, got %d", cnt)
	}
	stride := BUF_HEADROOM + BUF_DATA_SIZE
	p := &BufferPool{
		slab: make([]byte, cnt*stride),
		bufs: make([]Buffer, cnt),
		free: make([]*Buffer, 0, cnt),
	}
	if err := unix.Mlock(p.slab); err != nil {
		Log(LOG_WARN, "Buffer pool: could not lock %d bytes of memory: %v",
			len(p.slab), err)
	}
	for i := 0; i < cnt; i++ {
		b := &p.bufs[i]
		b.pool = p
		b.region = p.slab[i*stride : (i+1)*stride]
		b.reset()
		p.free = append(p.free, b)
	}
	return p
}

// Alloc returns a zero-length buffer with full headroom, or nil when the
// pool is exhausted. Exhaustion is never fatal; the caller counts it.
func (p *BufferPool) Alloc() *Buffer {
	n := len(p.free)
	if n == 0 {
		return nil
	}
	b := p.free[n-1]
	p.free = p.free[:n-1]
	b.reset()
	return b
}

// Copy deep-copies a packet including its segmentation chain. Each flow must
// transmit an independent copy of its template packet: rewriting addresses
// in a shared buffer would race with in-flight tx descriptors. Returns nil
// when the pool is exhausted; a partially built chain is returned to the
// pool before reporting the failure.
func (p *BufferPool) Copy(src *Buffer) *Buffer {
	head := p.Alloc()
	if head == nil {
		return nil
	}
	dst := head
	for seg := src; seg != nil; seg = seg.Next {
		if seg != src {
			next := p.Alloc()
			if next == nil {
				head.Free()
				return nil
			}
			dst.Next = next
			dst = next
			head.NbSegs++
		}
		copy(dst.Append(seg.length), seg.Data())
	}
	head.PktLen = src.PktLen
	head.OlFlags = src.OlFlags
	head.L2Len = src.L2Len
	head.L3Len = src.L3Len
	return head
}

// CountAvailable returns the number of free buffers.
func (p *BufferPool) CountAvailable() int {
	return len(p.free)
}

// Capacity returns the total buffer count of the pool.
func (p *BufferPool) Capacity() int {
	return len(p.bufs)
}

func (p *BufferPool) put(b *Buffer) {
	if b.pool != p {
		Log(LOG_ERR, "Buffer returned to a foreign pool")
	}
	b.reset()
	p.free = append(p.free, b)
}
