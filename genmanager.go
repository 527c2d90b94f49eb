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
// The generation manager is the run-to-completion loop of the data CPU. One
// iteration drains the control ring, drains and discards NIC rx, enforces
// the run window, fires due scheduler events and flushes the accumulated tx
// burst. It owns the buffer pool, the NIC adapter, the event scheduler and
// the active flows generators, and it implements the operations bundle the
// generators replay through.

package gotgen

import (
	"path/filepath"
)

// GenManagerConfig wires a generation manager to its collaborators.
type GenManagerConfig struct {
	Dev   EthDev
	Pool  *BufferPool
	Sched *EventScheduler

	// control -> data ring; this manager is the consumer
	IncQueue *SpscRing[Message]
	// data -> control ring; this manager is the producer
	OutQueue *SpscRing[Message]

	WorkingDir string

	// optional per-send report stream
	Report *ReportWriter
}

// GenManager drives packet generation on the data CPU.
type GenManager struct {
	dev   EthDev
	pool  *BufferPool
	sched *EventScheduler

	incQueue *SpscRing[Message]
	outQueue *SpscRing[Message]

	workingDir string
	report     *ReportWriter

	gens []*FlowsGenerator

	runActive   bool
	runBegin    Cycles
	runDuration Cycles

	txAccum []*Buffer

	cntTxQfull  uint64
	cntTxNoMbuf uint64

	rxScratch  []*Buffer
	msgScratch []Message
}

// NewGenManager creates the manager. The NIC, pool and scheduler are owned
// from here on.
func NewGenManager(cfg GenManagerConfig) *GenManager {
	return &GenManager{
		dev:        cfg.Dev,
		pool:       cfg.Pool,
		sched:      cfg.Sched,
		incQueue:   cfg.IncQueue,
		outQueue:   cfg.OutQueue,
		workingDir: cfg.WorkingDir,
		report:     cfg.Report,
		txAccum:    make([]*Buffer, 0, TX_BURST_SIZE),
		rxScratch:  make([]*Buffer, RX_BURST_SIZE),
		msgScratch: make([]Message, MSG_DRAIN_BATCH),
	}
}

// ProcessEvents runs one iteration of the data-plane loop.
func (m *GenManager) ProcessEvents() {
	m.drainControlQueue()

	// the device must never back-pressure us: whatever arrives is freed
	// right away, we are a unidirectional source
	n := m.dev.RxBurst(m.rxScratch)
	for i := 0; i < n; i++ {
		m.rxScratch[i].Free()
		m.rxScratch[i] = nil
	}

	if !m.runActive {
		if len(m.txAccum) != 0 {
			Log(LOG_ERR, "Pending tx packets outside of a generation run")
		}
		if m.sched.LiveEventCount() != 0 {
			Log(LOG_ERR, "Armed events outside of a generation run")
		}
		return
	}

	if m.sched.Now()-m.runBegin > m.runDuration {
		m.stopRun()
		m.flushTx()
		return
	}

	m.sched.ProcessDue()
	m.flushTx()
}

// Shutdown stops any active run and releases the NIC. Called once when the
// data loop exits.
func (m *GenManager) Shutdown() {
	if m.runActive {
		m.stopRun()
		m.flushTx()
	}
	if m.report != nil {
		m.report.Close()
	}
	m.dev.Stop()
	m.dev.Close()
}

// drainControlQueue pops and dispatches pending control requests.
func (m *GenManager) drainControlQueue() {
	n := m.incQueue.PopBulk(m.msgScratch)
	for i := 0; i < n; i++ {
		switch msg := m.msgScratch[i].(type) {
		case StartGenerationReq:
			m.onStartGeneration(msg)
		case StopGenerationReq:
			m.onStopGeneration()
		case StatsReq:
			m.onStatsRequest()
		default:
			Log(LOG_ERR, "Unexpected message variant on the control ring: %T",
				msg)
		}
		m.msgScratch[i] = nil
	}
}

// onStartGeneration constructs one flows generator per configured capture.
// Any failure aborts the whole start; no partial state leaks.
func (m *GenManager) onStartGeneration(req StartGenerationReq) {
	if m.runActive {
		m.respond(StartGenerationRes{ErrorDesc: "Already started"})
		return
	}

	cfg := req.Cfg
	gens := make([]*FlowsGenerator, 0, len(cfg.FlowsCfgs))
	for i, fc := range cfg.FlowsCfgs {
		gen, err := NewFlowsGenerator(FlowsGeneratorConfig{
			Idx:              uint32(i),
			CapturePath:      filepath.Join(m.workingDir, fc.CapturePath),
			ClientMac:        m.dev.MacAddr(),
			ServerMac:        cfg.DutMacAddr,
			Burst:            fc.Burst,
			FlowsPerSec:      fc.FlowsPerSec,
			InterPktsGapUsec: fc.InterPktsGapUsec,
			ClnIPs:           fc.ClnIPs,
			SrvIPs:           fc.SrvIPs,
			ClnPort:          fc.ClnPort,
			Ops:              m,
			Now:              m.sched.Now,
		})
		if err != nil {
			for _, g := range gens {
				g.Close()
			}
			m.respond(StartGenerationRes{ErrorDesc: err.Error()})
			return
		}
		gens = append(gens, gen)
	}

	m.dev.ResetStats()
	m.cntTxQfull = 0
	m.cntTxNoMbuf = 0
	m.gens = gens
	m.runBegin = m.sched.Now()
	m.runDuration = CyclesFromDuration(cfg.Duration)
	m.runActive = true

	Log(LOG_INFO, "Generation started: %d generators, duration %s",
		len(gens), cfg.Duration)
	m.respond(StartGenerationRes{})
}

// onStopGeneration stops the active run, or reports all-zero counters when
// nothing is running.
func (m *GenManager) onStopGeneration() {
	if !m.runActive {
		m.respond(StopGenerationRes{})
		return
	}
	m.stopRun()
}

// onStatsRequest reports the live counters of the active run.
func (m *GenManager) onStatsRequest() {
	if !m.runActive {
		m.respond(StatsRes{ErrorDesc: "Not started"})
		return
	}
	m.respond(StatsRes{Summary: m.summary()})
}

// stopRun tears down all generators, verifies the scheduler is drained and
// reports the final counters. Explicit stop and run-window expiry both end
// up here.
func (m *GenManager) stopRun() {
	detailed := make([]FlowStats, 0)
	for _, g := range m.gens {
		detailed = append(detailed, g.FlowsStats()...)
		g.Close()
	}
	m.gens = nil

	if cnt := m.sched.LiveEventCount(); cnt != 0 {
		Log(LOG_ERR, "%d events still armed after generation teardown", cnt)
	}

	m.runActive = false
	m.runBegin = 0
	m.runDuration = 0

	sum := m.summary()
	Log(LOG_INFO, "Generation stopped: %d tx packets, %d qfull, %d nombuf",
		sum.CntTxPkts, sum.CntTxPktsQfull, sum.CntTxPktsNoMbuf)
	m.respond(StopGenerationRes{Summary: sum, Detailed: detailed})
}

// summary populates the aggregate counters from the NIC and the manager's
// drop counters.
func (m *GenManager) summary() SummaryStats {
	st := m.dev.ReadStats()
	return SummaryStats{
		CntRxPkts:       st.IPackets,
		CntTxPkts:       st.OPackets,
		CntRxBytes:      st.IBytes,
		CntTxBytes:      st.OBytes,
		CntRxPktsQfull:  st.IMissed,
		CntRxPktsNoMbuf: st.RxNoMbuf,
		CntTxPktsQfull:  m.cntTxQfull,
		CntTxPktsNoMbuf: m.cntTxNoMbuf,
		CntRxPktsErr:    st.IErrors,
		CntTxPktsErr:    st.OErrors,
	}
}

// respond enqueues a response on the data -> control ring. A full ring is
// logged; the request stays unacknowledged and the control CPU is
// responsible for timing out.
func (m *GenManager) respond(msg Message) {
	if !m.outQueue.TryPush(msg) {
		Log(LOG_WARN, "Response ring full, dropping %T", msg)
	}
}

// flushTx submits the accumulated packets as one tx burst. The tail the
// device does not accept is freed and counted.
func (m *GenManager) flushTx() {
	if len(m.txAccum) == 0 {
		return
	}
	sent := m.dev.TxBurst(m.txAccum)
	for i := sent; i < len(m.txAccum); i++ {
		m.txAccum[i].Free()
		m.cntTxQfull++
	}
	for i := range m.txAccum {
		m.txAccum[i] = nil
	}
	m.txAccum = m.txAccum[:0]
}

// The methods below implement GenerationOps for the flows generators.

// AllocBuffer hands out a pool buffer.
func (m *GenManager) AllocBuffer() *Buffer {
	return m.pool.Alloc()
}

// CopyPacket deep-copies a template packet. Exhaustion is counted and the
// flow's cadence is preserved by the caller.
func (m *GenManager) CopyPacket(src *Buffer) *Buffer {
	cp := m.pool.Copy(src)
	if cp == nil {
		m.cntTxNoMbuf++
	}
	return cp
}

// SendPacket accumulates packets for the next tx burst, flushing
// mid-callback once a full burst is ready. This bounds the worst-case
// latency of any single packet to one loop iteration.
func (m *GenManager) SendPacket(b *Buffer) {
	m.txAccum = append(m.txAccum, b)
	if len(m.txAccum) >= TX_BURST_SIZE {
		m.flushTx()
	}
}

// CreateEventSlot borrows a timer slot from the scheduler.
func (m *GenManager) CreateEventSlot() *Event {
	return m.sched.CreateEvent()
}

// RecordReport streams a generation report when reporting is enabled.
func (m *GenManager) RecordReport(r *GenerationReport) {
	if m.report != nil {
		m.report.Record(r)
	}
}
