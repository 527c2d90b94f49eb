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
// Cyclic iterator over the addresses of an IPv4 CIDR range. Used by the
// flows generator to walk the client and server endpoint pools.

package gotgen

import (
	"encoding/binary"
	"net/netip"
)

// Ipv4Iter walks the addresses of a prefix in order, wrapping back to the
// first address after the last one.
type Ipv4Iter struct {
	first uint32
	last  uint32
	cur   uint32
}

// NewIpv4Iter creates an iterator over the given IPv4 prefix, positioned at
// the first address.
func NewIpv4Iter(prefix netip.Prefix) Ipv4Iter {
	masked := prefix.Masked()
	a4 := masked.Addr().As4()
	first := binary.BigEndian.Uint32(a4[:])
	size := uint32(1) << (32 - masked.Bits())
	return Ipv4Iter{first: first, last: first + size - 1, cur: first}
}

// Cur returns the current address as a big-endian 32 bit value.
func (it *Ipv4Iter) Cur() uint32 {
	return it.cur
}

// CurAddr returns the current address.
func (it *Ipv4Iter) CurAddr() netip.Addr {
	var a4 [4]byte
	binary.BigEndian.PutUint32(a4[:], it.cur)
	return netip.AddrFrom4(a4)
}

// Next advances to the next address, wrapping at the end of the range.
func (it *Ipv4Iter) Next() {
	if it.cur == it.last {
		it.cur = it.first
		return
	}
	it.cur++
}

// Count returns the number of addresses in the range.
func (it *Ipv4Iter) Count() uint64 {
	return uint64(it.last-it.first) + 1
}

// u32ToAddr converts a big-endian 32 bit value to an address.
func u32ToAddr(v uint32) netip.Addr {
	var a4 [4]byte
	binary.BigEndian.PutUint32(a4[:], v)
	return netip.AddrFrom4(a4)
}
