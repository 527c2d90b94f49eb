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
// Raw packet header access helpers. Headers are only read or written when
// they are fully resident in the first segment of a packet; segmented
// headers are rejected by the flows generator at construction time, so the
// hot path never needs gather logic.

package gotgen

import "encoding/binary"

// ipv4HdrLen returns the IPv4 header length encoded in the version/IHL byte.
func ipv4HdrLen(verIHL byte) int {
	return int(verIHL&0x0F) * 4
}

// etherType returns the EtherType of the frame.
func etherType(frame []byte) uint16 {
	return binary.BigEndian.Uint16(frame[12:14])
}

// internetChecksum computes the ones-complement sum over data folded into
// 16 bits, seeded with an initial partial sum.
func internetChecksum(data []byte, initial uint32) uint16 {
	sum := initial
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
	}
	if n%2 == 1 {
		sum += uint32(data[n-1]) << 8
	}
	for sum > 0xFFFF {
		sum = (sum >> 16) + (sum & 0xFFFF)
	}
	return ^uint16(sum)
}

// fillIPv4Checksum recomputes the IPv4 header checksum of the frame.
// l3Len is the IPv4 header length.
func fillIPv4Checksum(frame []byte, l2Len, l3Len int) {
	hdr := frame[l2Len : l2Len+l3Len]
	hdr[10] = 0
	hdr[11] = 0
	binary.BigEndian.PutUint16(hdr[10:12], internetChecksum(hdr, 0))
}

// fillL4Checksum recomputes the TCP or UDP checksum of the frame, including
// the IPv4 pseudo header.
func fillL4Checksum(frame []byte, l2Len, l3Len int, proto byte) {
	ip := frame[l2Len : l2Len+l3Len]
	l4 := frame[l2Len+l3Len:]

	var csumOff int
	switch proto {
	case IPPROTO_TCP:
		csumOff = 16
	case IPPROTO_UDP:
		csumOff = 6
	default:
		return
	}
	if len(l4) < csumOff+2 {
		return
	}
	l4[csumOff] = 0
	l4[csumOff+1] = 0

	// pseudo header: src addr, dst addr, zero+proto, L4 length
	var pseudo uint32
	pseudo += uint32(binary.BigEndian.Uint16(ip[12:14]))
	pseudo += uint32(binary.BigEndian.Uint16(ip[14:16]))
	pseudo += uint32(binary.BigEndian.Uint16(ip[16:18]))
	pseudo += uint32(binary.BigEndian.Uint16(ip[18:20]))
	pseudo += uint32(proto)
	pseudo += uint32(len(l4))

	csum := internetChecksum(l4, pseudo)
	if proto == IPPROTO_UDP && csum == 0 {
		csum = 0xFFFF
	}
	binary.BigEndian.PutUint16(l4[csumOff:csumOff+2], csum)
}

// applyTxOffloads performs the checksum work requested by a packet's
// offload flags on a linear frame.
func applyTxOffloads(frame []byte, olFlags uint64, l2Len, l3Len int) {
	if olFlags == 0 || len(frame) < l2Len+l3Len {
		return
	}
	if olFlags&OL_TX_TCP_CKSUM != 0 {
		fillL4Checksum(frame, l2Len, l3Len, IPPROTO_TCP)
	}
	if olFlags&OL_TX_UDP_CKSUM != 0 {
		fillL4Checksum(frame, l2Len, l3Len, IPPROTO_UDP)
	}
	if olFlags&OL_TX_IP_CKSUM != 0 {
		fillIPv4Checksum(frame, l2Len, l3Len)
	}
}
