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
// The flows generator replays one capture as many concurrently active
// flows. At construction it loads the capture into immutable template
// packets, rewrites the static Layer-2 addressing, builds exactly
// flows-per-second flows walking the client/server endpoint pools, and arms
// the first emission event of every flow, uniformly spread across one
// second. From then on each flow re-arms itself: every firing sends an
// owned copy of the current template packet with the flow's addresses
// written into the IPv4 header, then schedules the next packet.
//
// The flows slice is allocated once and never resized: scheduled events
// hold pointers into it.

package gotgen

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/netip"
)

// GenerationOps is the capability bundle a flows generator borrows from its
// host. It is the only coupling between a generator and the surrounding
// manager.
type GenerationOps interface {
	AllocBuffer() *Buffer
	CopyPacket(*Buffer) *Buffer
	// SendPacket takes ownership of the buffer.
	SendPacket(*Buffer)
	CreateEventSlot() *Event
	RecordReport(*GenerationReport)
}

// capturePkt is one immutable template packet loaded from the capture.
type capturePkt struct {
	// gap to the previous template packet (for the first packet: to the
	// start of the flow), in scheduler cycles
	relCycles Cycles

	buf        *Buffer
	fromClient bool
	iphLen     int
	proto      byte
}

// Flow is the live replay state of one capture instance. Flows are value
// slots in the generator's frozen flows slice; their addresses are captured
// by scheduled event callbacks.
type Flow struct {
	gen    *FlowsGenerator
	idx    uint32
	pktIdx int

	clnIP uint32
	srvIP uint32

	event *Event

	cntPkts     uint64
	cntBytes    uint64
	tstampBegin Cycles
	tstampEnd   Cycles
}

// FlowsGeneratorConfig is the construction input of one generator.
type FlowsGeneratorConfig struct {
	Idx         uint32
	CapturePath string

	// MAC written as the client-side address (the generator's own port)
	ClientMac net.HardwareAddr
	// MAC written as the server-side address (the DUT)
	ServerMac net.HardwareAddr

	Burst            uint32
	FlowsPerSec      uint32
	InterPktsGapUsec uint64 // zero: use the capture timestamps
	ClnIPs           netip.Prefix
	SrvIPs           netip.Prefix
	ClnPort          uint16 // zero: keep the captured ports

	Ops GenerationOps
	Now func() Cycles
}

// FlowsGenerator owns the capture templates and the flows replaying them.
type FlowsGenerator struct {
	idx   uint32
	pkts  []capturePkt
	flows []Flow

	clnIter  Ipv4Iter
	srvIter  Ipv4Iter
	burst    uint32
	burstCnt uint32

	ops GenerationOps
	now func() Cycles
}

// NewFlowsGenerator loads the capture, validates and rewrites the template
// packets, builds the flows and arms their first events. On any error
// nothing stays armed and all loaded buffers are returned to the pool.
func NewFlowsGenerator(cfg FlowsGeneratorConfig) (*FlowsGenerator, error) {
	if cfg.FlowsPerSec == 0 || cfg.Burst == 0 {
		return nil, fmt.Errorf("capture %s: flows per second and burst must "+
			"be positive", cfg.CapturePath)
	}
	g := &FlowsGenerator{
		idx:     cfg.Idx,
		clnIter: NewIpv4Iter(cfg.ClnIPs),
		srvIter: NewIpv4Iter(cfg.SrvIPs),
		burst:   cfg.Burst,
		ops:     cfg.Ops,
		now:     cfg.Now,
	}

	if err := g.loadCapture(cfg); err != nil {
		g.freeTemplates()
		return nil, err
	}
	if err := g.prepareTemplates(cfg); err != nil {
		g.freeTemplates()
		return nil, err
	}

	// one flow per started-flow-per-second, frozen after this point
	g.flows = make([]Flow, cfg.FlowsPerSec)
	for i := range g.flows {
		f := &g.flows[i]
		f.gen = g
		f.idx = uint32(i)
		f.clnIP, f.srvIP = g.nextAddrPair()
	}

	// spread the first emissions uniformly across one second
	stepUsec := 1_000_000 / uint64(cfg.FlowsPerSec)
	step := CyclesFromMicros(stepUsec)
	if step == 0 {
		g.freeTemplates()
		return nil, fmt.Errorf(
			"capture %s: %d flows per second exceed the clock resolution",
			cfg.CapturePath, cfg.FlowsPerSec)
	}
	for i := range g.flows {
		f := &g.flows[i]
		f.event = g.ops.CreateEventSlot()
		f.event.ScheduleSingle(Cycles(uint64(i))*step+g.pkts[0].relCycles,
			flowEventFn, f)
	}

	return g, nil
}

// Close tears the generator down: every flow's event is cancelled and the
// capture templates are returned to the pool.
func (g *FlowsGenerator) Close() {
	for i := range g.flows {
		if ev := g.flows[i].event; ev != nil {
			ev.Stop()
			g.flows[i].event = nil
		}
	}
	g.freeTemplates()
}

// FlowsStats returns the per-flow roll-up of the generator.
func (g *FlowsGenerator) FlowsStats() []FlowStats {
	out := make([]FlowStats, len(g.flows))
	for i := range g.flows {
		f := &g.flows[i]
		var dur uint64
		if f.cntPkts > 0 {
			dur = (f.tstampEnd - f.tstampBegin).Micros()
		}
		out[i] = FlowStats{
			GenIdx:       g.idx,
			FlowIdx:      f.idx,
			CntPkts:      f.cntPkts,
			CntBytes:     f.cntBytes,
			DurationUsec: dur,
		}
	}
	return out
}

// loadCapture reads every record of the capture and computes the relative
// emission times.
func (g *FlowsGenerator) loadCapture(cfg FlowsGeneratorConfig) error {
	loader, err := OpenCaptureLoader(cfg.CapturePath)
	if err != nil {
		return err
	}
	defer loader.Close()

	var prevTs uint64
	idx := 0
	for {
		cp, err := loader.LoadPkt(g.ops.AllocBuffer)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to load packet from %s: %w",
				cfg.CapturePath, err)
		}
		ts := cp.TstampMicros
		if cfg.InterPktsGapUsec != 0 {
			ts = uint64(idx) * cfg.InterPktsGapUsec
		}
		if idx == 0 {
			// the first packet is emitted right at the start of its flow
			prevTs = ts
		}
		var rel Cycles
		if ts > prevTs {
			rel = CyclesFromMicros(ts - prevTs)
		}
		g.pkts = append(g.pkts, capturePkt{relCycles: rel, buf: cp.Buf})
		prevTs = ts
		idx++
	}
	if len(g.pkts) == 0 {
		return fmt.Errorf("capture %s contains no packets", cfg.CapturePath)
	}
	return nil
}

// prepareTemplates classifies packet direction, validates the headers and
// rewrites the static fields.
func (g *FlowsGenerator) prepareTemplates(cfg FlowsGeneratorConfig) error {
	// the source MAC of the first packet is the client MAC of record
	first := g.pkts[0].buf.Data()
	if len(first) < ETHER_HDR_LEN {
		return fmt.Errorf(
			"capture %s: Ethernet header not in the first segment",
			cfg.CapturePath)
	}
	clnMacOfRecord := make([]byte, ETHER_ADDR_LEN)
	copy(clnMacOfRecord, first[6:12])

	for i := range g.pkts {
		pk := &g.pkts[i]
		data := pk.buf.Data()

		if len(data) < ETHER_HDR_LEN {
			return fmt.Errorf(
				"capture %s: packet %d: Ethernet header not in the first "+
					"segment", cfg.CapturePath, i)
		}
		pk.fromClient = bytes.Equal(data[6:12], clnMacOfRecord)

		if etherType(data) != ETHER_TYPE_IPV4 {
			return fmt.Errorf("capture %s: packet %d is a non IPv4 packet",
				cfg.CapturePath, i)
		}
		if len(data) < ETHER_HDR_LEN+IPV4_MIN_HDR_LEN {
			return fmt.Errorf(
				"capture %s: packet %d: IPv4 header not in the first segment",
				cfg.CapturePath, i)
		}
		pk.iphLen = ipv4HdrLen(data[ETHER_HDR_LEN])
		if pk.iphLen < IPV4_MIN_HDR_LEN ||
			len(data) < ETHER_HDR_LEN+pk.iphLen {
			return fmt.Errorf(
				"capture %s: packet %d: IPv4 header not in the first segment",
				cfg.CapturePath, i)
		}
		pk.proto = data[ETHER_HDR_LEN+9]

		// rewrite the MAC addressing according to the packet direction
		if pk.fromClient {
			copy(data[6:12], cfg.ClientMac)
			copy(data[0:6], cfg.ServerMac)
		} else {
			copy(data[6:12], cfg.ServerMac)
			copy(data[0:6], cfg.ClientMac)
		}

		if cfg.ClnPort != 0 &&
			(pk.proto == IPPROTO_TCP || pk.proto == IPPROTO_UDP) {
			l4Off := ETHER_HDR_LEN + pk.iphLen
			if len(data) < l4Off+4 {
				return fmt.Errorf(
					"capture %s: packet %d: TCP/UDP header not in the first "+
						"segment", cfg.CapturePath, i)
			}
			// the client-side port is the source on client packets and the
			// destination on server packets
			if pk.fromClient {
				binary.BigEndian.PutUint16(data[l4Off:], cfg.ClnPort)
			} else {
				binary.BigEndian.PutUint16(data[l4Off+2:], cfg.ClnPort)
			}
		}
	}
	return nil
}

// nextAddrPair returns the current client/server address pair and advances
// the shared iterators once every burst flows.
func (g *FlowsGenerator) nextAddrPair() (uint32, uint32) {
	cln, srv := g.clnIter.Cur(), g.srvIter.Cur()
	g.burstCnt++
	if g.burstCnt >= g.burst {
		g.burstCnt = 0
		g.clnIter.Next()
		g.srvIter.Next()
	}
	return cln, srv
}

func (g *FlowsGenerator) freeTemplates() {
	for i := range g.pkts {
		g.pkts[i].buf.Free()
	}
	g.pkts = nil
}

// flowEventFn is the scheduled emission callback of every flow.
func flowEventFn(_ *Event, ctx interface{}) {
	f := ctx.(*Flow)
	f.gen.onFlowEvent(f)
}

// onFlowEvent emits the flow's current template packet and re-arms the
// next emission.
func (g *FlowsGenerator) onFlowEvent(f *Flow) {
	pk := &g.pkts[f.pktIdx]

	srcIP, dstIP := f.clnIP, f.srvIP
	if !pk.fromClient {
		srcIP, dstIP = f.srvIP, f.clnIP
	}

	now := g.now()
	f.cntPkts++
	f.cntBytes += uint64(pk.buf.PktLen)
	if f.cntPkts == 1 {
		f.tstampBegin = now
	}
	f.tstampEnd = now

	// each emission sends an owned copy; on pool exhaustion the emission is
	// dropped but the cadence is preserved
	ok := false
	if cp := g.ops.CopyPacket(pk.buf); cp != nil {
		data := cp.Data()
		binary.BigEndian.PutUint32(data[ETHER_HDR_LEN+12:], srcIP)
		binary.BigEndian.PutUint32(data[ETHER_HDR_LEN+16:], dstIP)
		cp.OlFlags = OL_TX_IP_CKSUM
		switch pk.proto {
		case IPPROTO_TCP:
			cp.OlFlags |= OL_TX_TCP_CKSUM
		case IPPROTO_UDP:
			cp.OlFlags |= OL_TX_UDP_CKSUM
		}
		cp.L2Len = ETHER_HDR_LEN
		cp.L3Len = pk.iphLen
		g.ops.SendPacket(cp)
		ok = true
	}

	g.ops.RecordReport(&GenerationReport{
		Tstamp:  now,
		GenIdx:  g.idx,
		FlowIdx: f.idx,
		PktIdx:  f.pktIdx,
		PktLen:  pk.buf.PktLen,
		SrcAddr: u32ToAddr(srcIP),
		DstAddr: u32ToAddr(dstIP),
		FromCln: pk.fromClient,
		Ok:      ok,
	})

	// advance to the next template packet and re-arm. When the flow wraps
	// back to its first packet it picks up a fresh address pair and the
	// inter-flow gap is added.
	next := f.pktIdx + 1
	wrapped := next == len(g.pkts)
	if wrapped {
		next = 0
	}
	f.pktIdx = next
	rel := g.pkts[next].relCycles
	if wrapped {
		rel += CyclesFromMicros(INTER_FLOW_GAP_USEC)
		f.clnIP, f.srvIP = g.nextAddrPair()
	}
	f.event.ScheduleSingle(rel, flowEventFn, f)
}
