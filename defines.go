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
// Tunables and protocol constants used throughout the generation core.

package gotgen

const (
	// size of the writable data region of a single packet buffer. Chosen so
	// that a standard 1518 byte Ethernet frame always fits into one segment.
	BUF_DATA_SIZE = 2048

	// headroom reserved at the start of every packet buffer
	BUF_HEADROOM = 128

	// default number of buffers in the pool if the settings file does not
	// override it
	BUF_POOL_SIZE_DEFAULT = 8192

	// number of packets accumulated by the generation manager before a tx
	// burst is submitted mid-iteration. The remainder is always flushed at
	// the end of each loop iteration.
	TX_BURST_SIZE = 64

	// maximum number of packets drained from the NIC rx queue per loop
	// iteration
	RX_BURST_SIZE = 64

	// capacity of the control -> data messages ring. The request rate is very
	// low, a small ring suffices.
	OUT_MSG_QUEUE_CAPACITY = 32

	// capacity of the data -> control messages ring. Responses may carry
	// bursts of reports, so this one is larger.
	INC_MSG_QUEUE_CAPACITY = 256

	// number of messages popped from a ring per drain pass
	MSG_DRAIN_BATCH = 8

	// gap inserted between two replays of the capture by the same flow,
	// in microseconds. Not configurable.
	INTER_FLOW_GAP_USEC = 100_000
)

// classic PCAP file format
const (
	PCAP_MAGIC         = 0xA1B2C3D4
	PCAP_VERSION_MAJOR = 2
	PCAP_VERSION_MINOR = 4
)

// packet header constants
const (
	ETHER_HDR_LEN   = 14
	ETHER_ADDR_LEN  = 6
	ETHER_TYPE_IPV4 = 0x0800

	IPV4_MIN_HDR_LEN = 20

	IPPROTO_TCP = 6
	IPPROTO_UDP = 17
)

// tx offload request flags carried by a packet buffer. The NIC adapter
// consumes them at transmit time.
const (
	OL_TX_IP_CKSUM uint64 = 1 << iota
	OL_TX_TCP_CKSUM
	OL_TX_UDP_CKSUM
)
