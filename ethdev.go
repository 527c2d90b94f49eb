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
// NIC adapter: one port, one rx and one tx queue. The production
// implementation wraps a libpcap handle for frame injection and capture and
// provides the IPv4/TCP/UDP transmit checksum offloads itself, honoring the
// offload flags carried by the packet buffers. Construction fails if the
// device cannot satisfy the offload contract or if the link does not come
// up. Per-burst partial acceptance is reported through the return value;
// the caller owns, frees and counts the unaccepted tail.

package gotgen

import (
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// EthDevStats is the counter set read from the NIC adapter.
type EthDevStats struct {
	IPackets uint64
	OPackets uint64
	IBytes   uint64
	OBytes   uint64
	IMissed  uint64
	RxNoMbuf uint64
	IErrors  uint64
	OErrors  uint64
}

// EthDev is the interface between the generation manager and the NIC.
type EthDev interface {
	// RxBurst fills into with received packets and returns the count.
	RxBurst(into []*Buffer) int
	// TxBurst transmits packets and returns the count accepted. Ownership
	// of the accepted packets transfers to the device; the caller frees
	// the tail.
	TxBurst(pkts []*Buffer) int
	ResetStats()
	ReadStats() EthDevStats
	MacAddr() net.HardwareAddr
	// Stop quiesces the port. It must be called before Close.
	Stop()
	Close()
}

// PcapEthDevConfig configures the libpcap-backed device.
type PcapEthDevConfig struct {
	Iface     string
	QueueSize int
	Pool      *BufferPool
}

// PcapEthDev is the production EthDev on top of a libpcap handle.
type PcapEthDev struct {
	handle  *pcap.Handle
	pool    *BufferPool
	mac     net.HardwareAddr
	scratch []byte
	stopped bool
	closed  bool

	sw        EthDevStats
	dropsBase uint64
}

// OpenPcapEthDev opens and activates the device. Setup failures are fatal
// for the process and are reported as errors to the caller, which aborts.
func OpenPcapEthDev(cfg PcapEthDevConfig) (*PcapEthDev, error) {
	netIf, err := net.InterfaceByName(cfg.Iface)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize port %s: %w",
			cfg.Iface, err)
	}

	inactive, err := pcap.NewInactiveHandle(cfg.Iface)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize port %s: %w",
			cfg.Iface, err)
	}
	defer inactive.CleanUp()
	if err := inactive.SetSnapLen(65536); err != nil {
		return nil, fmt.Errorf("failed to initialize port %s: %w",
			cfg.Iface, err)
	}
	if err := inactive.SetPromisc(true); err != nil {
		return nil, fmt.Errorf("failed to initialize port %s: %w",
			cfg.Iface, err)
	}
	if err := inactive.SetTimeout(time.Microsecond); err != nil {
		return nil, fmt.Errorf("failed to initialize port %s: %w",
			cfg.Iface, err)
	}
	if err := inactive.SetImmediateMode(true); err != nil {
		return nil, fmt.Errorf("failed to initialize port %s: %w",
			cfg.Iface, err)
	}
	if cfg.QueueSize > 0 {
		if err := inactive.SetBufferSize(cfg.QueueSize * BUF_DATA_SIZE); err != nil {
			return nil, fmt.Errorf("failed to initialize port %s: %w",
				cfg.Iface, err)
		}
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("failed to activate port %s: %w",
			cfg.Iface, err)
	}

	// the checksum offload contract can only be provided on Ethernet links
	if handle.LinkType() != layers.LinkTypeEthernet {
		handle.Close()
		return nil, fmt.Errorf(
			"failed to initialize port %s: no support for IPv4/TCP/UDP "+
				"checksum offload on link type %s", cfg.Iface, handle.LinkType())
	}

	// wait for the port to become active
	linkUp := false
	for i := 0; i < 100 && !linkUp; i++ {
		if netIf, err = net.InterfaceByName(cfg.Iface); err == nil &&
			netIf.Flags&net.FlagUp != 0 {
			linkUp = true
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if !linkUp {
		handle.Close()
		return nil, fmt.Errorf("failed to bring up port %s", cfg.Iface)
	}

	dev := &PcapEthDev{
		handle:  handle,
		pool:    cfg.Pool,
		mac:     netIf.HardwareAddr,
		scratch: make([]byte, 65536),
	}
	Log(LOG_INFO, "Port %s up, mac %s", cfg.Iface, dev.mac)
	return dev, nil
}

// RxBurst drains up to len(into) frames from the rx queue.
func (d *PcapEthDev) RxBurst(into []*Buffer) int {
	n := 0
	for n < len(into) {
		data, _, err := d.handle.ZeroCopyReadPacketData()
		if err != nil {
			if err == pcap.NextErrorTimeoutExpired {
				break
			}
			d.sw.IErrors++
			break
		}
		buf := d.allocRx(len(data))
		if buf == nil {
			d.sw.RxNoMbuf++
			continue
		}
		d.sw.IPackets++
		d.sw.IBytes += uint64(len(data))
		into[n] = buf
		copyIntoChain(buf, data)
		n++
	}
	return n
}

// TxBurst transmits packets until the device refuses one; the count of
// accepted packets is returned.
func (d *PcapEthDev) TxBurst(pkts []*Buffer) int {
	for i, pkt := range pkts {
		frame := d.linearize(pkt)
		applyTxOffloads(frame, pkt.OlFlags, pkt.L2Len, pkt.L3Len)
		if err := d.handle.WritePacketData(frame); err != nil {
			return i
		}
		d.sw.OPackets++
		d.sw.OBytes += uint64(len(frame))
		pkt.Free()
	}
	return len(pkts)
}

// ResetStats zeroes the counters.
func (d *PcapEthDev) ResetStats() {
	d.sw = EthDevStats{}
	if st, err := d.handle.Stats(); err == nil {
		d.dropsBase = uint64(st.PacketsDropped)
	}
}

// ReadStats returns the counters accumulated since the last reset.
func (d *PcapEthDev) ReadStats() EthDevStats {
	out := d.sw
	if st, err := d.handle.Stats(); err == nil {
		out.IMissed = uint64(st.PacketsDropped) - d.dropsBase
	}
	return out
}

// MacAddr returns the MAC address of the port.
func (d *PcapEthDev) MacAddr() net.HardwareAddr {
	return d.mac
}

// Stop quiesces the port.
func (d *PcapEthDev) Stop() {
	d.stopped = true
}

// Close releases the device. The port is stopped first if the caller has
// not done so already.
func (d *PcapEthDev) Close() {
	if d.closed {
		return
	}
	if !d.stopped {
		d.Stop()
	}
	d.closed = true
	d.handle.Close()
}

// allocRx builds an owned buffer chain large enough for n bytes, or nil.
func (d *PcapEthDev) allocRx(n int) *Buffer {
	head := d.pool.Alloc()
	if head == nil {
		return nil
	}
	curr := head
	for room := BUF_DATA_SIZE; room < n; room += BUF_DATA_SIZE {
		next := d.pool.Alloc()
		if next == nil {
			head.Free()
			return nil
		}
		curr.Next = next
		head.NbSegs++
		curr = next
	}
	return head
}

// linearize returns the full frame of pkt as one contiguous byte slice,
// using the scratch area for segmented packets.
func (d *PcapEthDev) linearize(pkt *Buffer) []byte {
	if pkt.Next == nil {
		return pkt.Data()
	}
	off := 0
	for seg := pkt; seg != nil; seg = seg.Next {
		off += copy(d.scratch[off:], seg.Data())
	}
	return d.scratch[:off]
}

// copyIntoChain distributes data over the segments of an allocated chain.
func copyIntoChain(head *Buffer, data []byte) {
	for seg := head; seg != nil && len(data) > 0; seg = seg.Next {
		n := len(data)
		if room := seg.Tailroom(); n > room {
			n = room
		}
		copy(seg.Append(n), data[:n])
		head.PktLen += n
		data = data[n:]
	}
}
