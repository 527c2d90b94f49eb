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

package gotgen

import (
	"encoding/binary"
	"net/netip"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testGenClnMac = mustMac("02:aa:00:00:00:01")
	testGenDutMac = mustMac("02:aa:00:00:00:02")
)

// fakeOps is the in-memory host of a flows generator under test.
type fakeOps struct {
	pool    *BufferPool
	sched   *EventScheduler
	sent    []*Buffer
	reports []GenerationReport
}

func (o *fakeOps) AllocBuffer() *Buffer          { return o.pool.Alloc() }
func (o *fakeOps) CopyPacket(b *Buffer) *Buffer  { return o.pool.Copy(b) }
func (o *fakeOps) SendPacket(b *Buffer)          { o.sent = append(o.sent, b) }
func (o *fakeOps) CreateEventSlot() *Event       { return o.sched.CreateEvent() }
func (o *fakeOps) RecordReport(r *GenerationReport) {
	o.reports = append(o.reports, *r)
}

func (o *fakeOps) freeSent() {
	for _, b := range o.sent {
		b.Free()
	}
	o.sent = nil
}

func newGenHarness(poolSize int) (*fakeOps, *clock.Mock) {
	mock := clock.NewMock()
	return &fakeOps{
		pool:  NewBufferPool(poolSize),
		sched: NewEventScheduler(mock),
	}, mock
}

// threePktCapture builds the capture of scenario tests: client->server UDP,
// server->client UDP, client->server TCP.
func threePktCapture(t *testing.T) string {
	return writeTestCapture(t, []testCapRec{
		{tstampMicros: 0, data: buildTestPkt(t, true, IPPROTO_UDP, 64)},
		{tstampMicros: 700, data: buildTestPkt(t, false, IPPROTO_UDP, 64)},
		{tstampMicros: 1900, data: buildTestPkt(t, true, IPPROTO_TCP, 64)},
	})
}

func testGenConfig(t *testing.T, ops *fakeOps, path string) FlowsGeneratorConfig {
	return FlowsGeneratorConfig{
		Idx:              0,
		CapturePath:      path,
		ClientMac:        testGenClnMac,
		ServerMac:        testGenDutMac,
		Burst:            1,
		FlowsPerSec:      2,
		InterPktsGapUsec: 1000,
		ClnIPs:           netip.MustParsePrefix("10.0.0.0/31"),
		SrvIPs:           netip.MustParsePrefix("20.0.0.0/31"),
		ClnPort:          1024,
		Ops:              ops,
		Now:              ops.sched.Now,
	}
}

func ipv4SrcDst(frame []byte) (string, string) {
	src := u32ToAddr(binary.BigEndian.Uint32(frame[ETHER_HDR_LEN+12:]))
	dst := u32ToAddr(binary.BigEndian.Uint32(frame[ETHER_HDR_LEN+16:]))
	return src.String(), dst.String()
}

func TestFlowsGeneratorConstruction(t *testing.T) {
	ops, _ := newGenHarness(64)
	g, err := NewFlowsGenerator(testGenConfig(t, ops, threePktCapture(t)))
	require.NoError(t, err)
	defer g.Close()

	// one flow per started-flow-per-second, one armed event per flow
	require.Len(t, g.flows, 2)
	assert.Equal(t, 2, ops.sched.LiveEventCount())

	require.Len(t, g.pkts, 3)
	// with the inter-packet gap override the capture timestamps are ignored
	assert.Equal(t, Cycles(0), g.pkts[0].relCycles)
	assert.Equal(t, CyclesFromMicros(1000), g.pkts[1].relCycles)
	assert.Equal(t, CyclesFromMicros(1000), g.pkts[2].relCycles)

	// direction is classified by the source MAC of the first packet
	assert.True(t, g.pkts[0].fromClient)
	assert.False(t, g.pkts[1].fromClient)
	assert.True(t, g.pkts[2].fromClient)

	// static MAC rewrite honors the direction
	d0 := g.pkts[0].buf.Data()
	assert.Equal(t, []byte(testGenDutMac), d0[0:6])
	assert.Equal(t, []byte(testGenClnMac), d0[6:12])
	d1 := g.pkts[1].buf.Data()
	assert.Equal(t, []byte(testGenClnMac), d1[0:6])
	assert.Equal(t, []byte(testGenDutMac), d1[6:12])

	// the client-side port is the source on client packets and the
	// destination on server packets
	l4 := ETHER_HDR_LEN + 20
	assert.EqualValues(t, 1024, binary.BigEndian.Uint16(d0[l4:]))
	assert.EqualValues(t, 1024, binary.BigEndian.Uint16(d1[l4+2:]))

	// address pairs are assigned walking the two ranges in lockstep
	assert.Equal(t, "10.0.0.0", u32ToAddr(g.flows[0].clnIP).String())
	assert.Equal(t, "20.0.0.0", u32ToAddr(g.flows[0].srvIP).String())
	assert.Equal(t, "10.0.0.1", u32ToAddr(g.flows[1].clnIP).String())
	assert.Equal(t, "20.0.0.1", u32ToAddr(g.flows[1].srvIP).String())
}

func TestFlowsGeneratorCloseReleasesEverything(t *testing.T) {
	ops, _ := newGenHarness(64)
	g, err := NewFlowsGenerator(testGenConfig(t, ops, threePktCapture(t)))
	require.NoError(t, err)

	g.Close()
	assert.Equal(t, 0, ops.sched.LiveEventCount())
	assert.Equal(t, ops.pool.Capacity(), ops.pool.CountAvailable())
}

func TestFlowsGeneratorEmission(t *testing.T) {
	ops, mock := newGenHarness(64)
	g, err := NewFlowsGenerator(testGenConfig(t, ops, threePktCapture(t)))
	require.NoError(t, err)
	defer g.Close()
	defer ops.freeSent()

	// walk well past the first replay of flow 0 (packets at 0, 1000 and
	// 2000 usec) but stay below the 500 msec start of flow 1
	for i := 0; i < 10; i++ {
		mock.Add(500 * time.Microsecond)
		ops.sched.ProcessDue()
	}

	require.Len(t, ops.sent, 3)
	require.Len(t, ops.reports, 3)

	// client packets carry (cln -> srv), server packets the reverse
	src, dst := ipv4SrcDst(ops.sent[0].Data())
	assert.Equal(t, "10.0.0.0", src)
	assert.Equal(t, "20.0.0.0", dst)
	src, dst = ipv4SrcDst(ops.sent[1].Data())
	assert.Equal(t, "20.0.0.0", src)
	assert.Equal(t, "10.0.0.0", dst)
	src, dst = ipv4SrcDst(ops.sent[2].Data())
	assert.Equal(t, "10.0.0.0", src)
	assert.Equal(t, "20.0.0.0", dst)

	// the copies carry the offload requests for the NIC
	assert.Equal(t, OL_TX_IP_CKSUM|OL_TX_UDP_CKSUM, ops.sent[0].OlFlags)
	assert.Equal(t, OL_TX_IP_CKSUM|OL_TX_TCP_CKSUM, ops.sent[2].OlFlags)
	assert.Equal(t, ETHER_HDR_LEN, ops.sent[0].L2Len)
	assert.Equal(t, 20, ops.sent[0].L3Len)

	for _, r := range ops.reports {
		assert.True(t, r.Ok)
		assert.EqualValues(t, 0, r.FlowIdx)
	}
	assert.Equal(t, []int{0, 1, 2},
		[]int{ops.reports[0].PktIdx, ops.reports[1].PktIdx,
			ops.reports[2].PktIdx})

	// flow counters follow the emissions
	stats := g.FlowsStats()
	require.Len(t, stats, 2)
	assert.EqualValues(t, 3, stats[0].CntPkts)
	assert.EqualValues(t, 0, stats[1].CntPkts)
	assert.GreaterOrEqual(t, stats[0].DurationUsec, uint64(2000))

	// every live flow still holds exactly one armed event
	assert.Equal(t, 2, ops.sched.LiveEventCount())
}

func TestFlowsGeneratorSecondFlowStartsLater(t *testing.T) {
	ops, mock := newGenHarness(64)
	g, err := NewFlowsGenerator(testGenConfig(t, ops, threePktCapture(t)))
	require.NoError(t, err)
	defer g.Close()
	defer ops.freeSent()

	// drive past the start of flow 1 (500 msec for two flows per second)
	for i := 0; i < 1100; i++ {
		mock.Add(500 * time.Microsecond)
		ops.sched.ProcessDue()
	}

	stats := g.FlowsStats()
	assert.GreaterOrEqual(t, stats[0].CntPkts, uint64(3))
	assert.GreaterOrEqual(t, stats[1].CntPkts, uint64(3),
		"flow 1 must have started and replayed")

	var flow1 []GenerationReport
	for _, r := range ops.reports {
		if r.FlowIdx == 1 {
			flow1 = append(flow1, r)
		}
	}
	require.NotEmpty(t, flow1)
	assert.Equal(t, "10.0.0.1", flow1[0].SrcAddr.String())
	assert.Equal(t, "20.0.0.1", flow1[0].DstAddr.String())
}

func TestFlowsGeneratorWrapPicksFreshAddressPair(t *testing.T) {
	ops, mock := newGenHarness(64)
	cfg := testGenConfig(t, ops, threePktCapture(t))
	cfg.FlowsPerSec = 1
	g, err := NewFlowsGenerator(cfg)
	require.NoError(t, err)
	defer g.Close()
	defer ops.freeSent()

	// one full replay plus the 100 msec inter-flow gap
	for i := 0; i < 1100; i++ {
		mock.Add(100 * time.Microsecond)
		ops.sched.ProcessDue()
	}

	require.GreaterOrEqual(t, len(ops.reports), 4)
	// construction consumed pair 0; the wrap advances to the next one
	assert.Equal(t, "10.0.0.0", ops.reports[0].SrcAddr.String())
	assert.Equal(t, "10.0.0.1", ops.reports[3].SrcAddr.String())
}

func TestFlowsGeneratorBurstSharesAddressPairs(t *testing.T) {
	ops, _ := newGenHarness(64)
	cfg := testGenConfig(t, ops, threePktCapture(t))
	cfg.Burst = 2
	cfg.FlowsPerSec = 4
	cfg.ClnIPs = netip.MustParsePrefix("10.0.0.0/30")
	cfg.SrvIPs = netip.MustParsePrefix("20.0.0.0/30")
	g, err := NewFlowsGenerator(cfg)
	require.NoError(t, err)
	defer g.Close()

	assert.Equal(t, g.flows[0].clnIP, g.flows[1].clnIP)
	assert.Equal(t, g.flows[2].clnIP, g.flows[3].clnIP)
	assert.NotEqual(t, g.flows[1].clnIP, g.flows[2].clnIP)
}

func TestFlowsGeneratorRejectsNonIPv4Capture(t *testing.T) {
	ops, _ := newGenHarness(64)

	// hand-crafted ARP frame
	arp := make([]byte, 60)
	copy(arp[0:6], testGenDutMac)
	copy(arp[6:12], testGenClnMac)
	arp[12] = 0x08
	arp[13] = 0x06
	path := writeTestCapture(t, []testCapRec{{data: arp}})

	cfg := testGenConfig(t, ops, path)
	_, err := NewFlowsGenerator(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non IPv4 packet")

	// nothing leaks on a failed construction
	assert.Equal(t, 0, ops.sched.LiveEventCount())
	assert.Equal(t, ops.pool.Capacity(), ops.pool.CountAvailable())
}

func TestFlowsGeneratorRejectsMissingCapture(t *testing.T) {
	ops, _ := newGenHarness(64)
	cfg := testGenConfig(t, ops, "/nonexistent/path.pcap")
	_, err := NewFlowsGenerator(cfg)
	require.Error(t, err)
}

func TestFlowsGeneratorCopyFailurePreservesCadence(t *testing.T) {
	// size the pool so the templates fit but no copy ever succeeds
	ops, mock := newGenHarness(3)
	cfg := testGenConfig(t, ops, threePktCapture(t))
	cfg.FlowsPerSec = 1
	g, err := NewFlowsGenerator(cfg)
	require.NoError(t, err)
	defer g.Close()

	for i := 0; i < 10; i++ {
		mock.Add(500 * time.Microsecond)
		ops.sched.ProcessDue()
	}

	assert.Empty(t, ops.sent)
	require.Len(t, ops.reports, 3, "emission cadence must be preserved")
	for _, r := range ops.reports {
		assert.False(t, r.Ok)
	}
	assert.EqualValues(t, 3, g.FlowsStats()[0].CntPkts)
	assert.Equal(t, 1, ops.sched.LiveEventCount())
}

func TestFlowsGeneratorKeepsPortsWithoutOverride(t *testing.T) {
	ops, _ := newGenHarness(64)
	cfg := testGenConfig(t, ops, threePktCapture(t))
	cfg.ClnPort = 0
	g, err := NewFlowsGenerator(cfg)
	require.NoError(t, err)
	defer g.Close()

	// the captured source port survives
	d0 := g.pkts[0].buf.Data()
	l4 := ETHER_HDR_LEN + 20
	assert.EqualValues(t, 40000, binary.BigEndian.Uint16(d0[l4:]))
}

func TestFlowsGeneratorCaptureTimestampsWithoutIpg(t *testing.T) {
	ops, _ := newGenHarness(64)
	cfg := testGenConfig(t, ops, threePktCapture(t))
	cfg.InterPktsGapUsec = 0
	g, err := NewFlowsGenerator(cfg)
	require.NoError(t, err)
	defer g.Close()

	// deltas of the capture timestamps 0, 700, 1900
	assert.Equal(t, Cycles(0), g.pkts[0].relCycles)
	assert.Equal(t, CyclesFromMicros(700), g.pkts[1].relCycles)
	assert.Equal(t, CyclesFromMicros(1200), g.pkts[2].relCycles)
}
