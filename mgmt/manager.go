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
// Management-plane loop running on the control CPU. ProcessEvents admits
// requests funneled from the HTTP handlers onto the control -> data ring
// and completes suspended handlers with responses popped from the
// data -> control ring. The loop goroutine is the only producer of the
// outgoing ring and the only consumer of the incoming one; the HTTP
// handlers reach the rings exclusively through this loop, which preserves
// the single-producer single-consumer contract.
//
// At most one request of each kind is in flight at a time; a second one is
// refused with 412 before it touches a ring.

package mgmt

import (
	"net"
	"net/http"
	"time"

	"github.com/pktworks/gotgen"
)

// how long a handler waits for the data CPU before giving up on a request
const RESPONSE_TIMEOUT = 30 * time.Second

// capacity of the funnel between the HTTP handlers and the loop
const REQ_FUNNEL_CAPACITY = 8

type pendingKind int

const (
	pendStart pendingKind = iota
	pendStop
	pendStats
	pendCount
)

type request struct {
	kind pendingKind
	msg  gotgen.Message
	done chan httpResult
}

// ManagerConfig wires the management manager to its rings and endpoint.
type ManagerConfig struct {
	// listen address of the HTTP server, ip:port
	Endpoint string

	// control -> data ring; this manager is the producer
	OutQueue *gotgen.SpscRing[gotgen.Message]
	// data -> control ring; this manager is the consumer
	IncQueue *gotgen.SpscRing[gotgen.Message]
}

// Manager is the control CPU side of the generator.
type Manager struct {
	outQueue *gotgen.SpscRing[gotgen.Message]
	incQueue *gotgen.SpscRing[gotgen.Message]

	reqCh   chan *request
	pending [pendCount]*request

	server     *http.Server
	listener   net.Listener
	msgScratch []gotgen.Message
}

// NewManager starts the embedded HTTP server and returns the manager. The
// server's accept loop and handlers run on their own goroutines; the
// caller drives ProcessEvents from the control CPU loop.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	m := &Manager{
		outQueue:   cfg.OutQueue,
		incQueue:   cfg.IncQueue,
		reqCh:      make(chan *request, REQ_FUNNEL_CAPACITY),
		msgScratch: make([]gotgen.Message, gotgen.MSG_DRAIN_BATCH),
	}

	ln, err := net.Listen("tcp", cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	m.listener = ln
	m.server = &http.Server{Handler: newMux(m)}
	go func() {
		if err := m.server.Serve(ln); err != http.ErrServerClosed {
			gotgen.Log(gotgen.LOG_WARN, "Management server error: %v", err)
		}
	}()

	gotgen.Log(gotgen.LOG_INFO, "Started management server at %s", cfg.Endpoint)
	return m, nil
}

// Close shuts the HTTP server down.
func (m *Manager) Close() {
	m.server.Close()
}

// Addr returns the address the HTTP server is listening on.
func (m *Manager) Addr() string {
	return m.listener.Addr().String()
}

// ProcessEvents runs one iteration of the control loop. It never blocks.
func (m *Manager) ProcessEvents() {
	// admit handler requests; this goroutine is the ring's only producer
	for {
		select {
		case req := <-m.reqCh:
			m.admit(req)
		default:
			m.drainResponses()
			return
		}
	}
}

// submit hands a request to the loop and waits for its completion. Called
// from the HTTP handler goroutines.
func (m *Manager) submit(kind pendingKind, msg gotgen.Message) httpResult {
	req := &request{kind: kind, msg: msg, done: make(chan httpResult, 1)}
	select {
	case m.reqCh <- req:
	default:
		return httpResult{status: http.StatusInternalServerError,
			body: resultBody{Result: "Failed to enqueue request"}}
	}
	select {
	case res := <-req.done:
		return res
	case <-time.After(RESPONSE_TIMEOUT):
		return httpResult{status: http.StatusInternalServerError,
			body: resultBody{Result: "Timed out waiting for the generator"}}
	}
}

func (m *Manager) admit(req *request) {
	if m.pending[req.kind] != nil {
		req.done <- httpResult{status: http.StatusPreconditionFailed,
			body: resultBody{Result: inFlightDesc(req.kind)}}
		return
	}
	if !m.outQueue.TryPush(req.msg) {
		req.done <- httpResult{status: http.StatusInternalServerError,
			body: resultBody{Result: "Failed to enqueue request"}}
		return
	}
	m.pending[req.kind] = req
}

func inFlightDesc(kind pendingKind) string {
	switch kind {
	case pendStart:
		return "Already started"
	case pendStop:
		return "Stop already in progress"
	default:
		return "Request already in progress"
	}
}

// drainResponses pops responses from the data CPU and completes the
// suspended handlers.
func (m *Manager) drainResponses() {
	n := m.incQueue.PopBulk(m.msgScratch)
	for i := 0; i < n; i++ {
		switch msg := m.msgScratch[i].(type) {
		case gotgen.StartGenerationRes:
			m.complete(pendStart, startResult(msg))
		case gotgen.StopGenerationRes:
			m.onStopResponse(msg)
		case gotgen.StatsRes:
			m.complete(pendStats, statsResult(msg))
		default:
			gotgen.Log(gotgen.LOG_WARN,
				"Unexpected message variant on the response ring: %T", msg)
		}
		m.msgScratch[i] = nil
	}
}

func (m *Manager) complete(kind pendingKind, res httpResult) {
	req := m.pending[kind]
	if req == nil {
		gotgen.Log(gotgen.LOG_WARN, "Response without a pending request")
		return
	}
	m.pending[kind] = nil
	req.done <- res
}

// onStopResponse completes a pending stop request. A run whose window
// expired produces the same response unsolicited; it is only logged.
func (m *Manager) onStopResponse(msg gotgen.StopGenerationRes) {
	if m.pending[pendStop] == nil {
		gotgen.Log(gotgen.LOG_INFO,
			"Generation run finished: %d tx packets", msg.Summary.CntTxPkts)
		return
	}
	m.complete(pendStop, httpResult{
		status: http.StatusOK,
		body:   stopBody{Result: msg.Summary, Detailed: msg.Detailed},
	})
}

func startResult(msg gotgen.StartGenerationRes) httpResult {
	switch msg.ErrorDesc {
	case "":
		return httpResult{status: http.StatusOK,
			body: resultBody{Result: "Generation started"}}
	case "Already started":
		return httpResult{status: http.StatusPreconditionFailed,
			body: resultBody{Result: "Already started"}}
	default:
		return httpResult{status: http.StatusBadRequest,
			body: resultBody{Result: "Invalid generation configuration: " +
				msg.ErrorDesc}}
	}
}

func statsResult(msg gotgen.StatsRes) httpResult {
	if msg.ErrorDesc != "" {
		return httpResult{status: http.StatusPreconditionFailed,
			body: resultBody{Result: msg.ErrorDesc}}
	}
	return httpResult{status: http.StatusOK,
		body: statsBody{Result: msg.Summary}}
}
