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
// Message variants exchanged between the control CPU and the data CPU over
// the two SPSC rings, and the generation configuration they carry. Every
// request variant has a matching response variant carrying either a success
// payload or an error description; errors never cross the ring boundary
// silently.

package gotgen

import (
	"net"
	"net/netip"
	"time"
)

// FlowsConfig is the per-capture generation configuration.
type FlowsConfig struct {
	// path of the capture file, relative to the working directory; the
	// generation manager joins the two
	CapturePath string

	// number of consecutive flows sharing a client/server address pair
	Burst uint32

	// flows started per second; also the count of concurrently live flows
	FlowsPerSec uint32

	// inter-packet gap override in microseconds; zero means the capture
	// timestamps are used
	InterPktsGapUsec uint64

	// endpoint address pools
	ClnIPs netip.Prefix
	SrvIPs netip.Prefix

	// client-side TCP/UDP port override; zero means the captured ports are
	// kept
	ClnPort uint16
}

// GenConfig is the configuration of one generation run.
type GenConfig struct {
	Duration   time.Duration
	DutMacAddr net.HardwareAddr
	FlowsCfgs  []FlowsConfig
}

// Message is one variant carried by the messages rings. The consumer
// dispatches on the concrete type.
type Message interface {
	isMessage()
}

// StartGenerationReq asks the data CPU to start a generation run.
type StartGenerationReq struct {
	Cfg *GenConfig
}

// StartGenerationRes reports the outcome of a start request. An empty
// ErrorDesc means the run started.
type StartGenerationRes struct {
	ErrorDesc string
}

// StopGenerationReq asks the data CPU to stop the active run.
type StopGenerationReq struct{}

// StopGenerationRes carries the final counters of a finished run. It is
// also produced unsolicited when the run window expires.
type StopGenerationRes struct {
	ErrorDesc string
	Summary   SummaryStats
	Detailed  []FlowStats
}

// StatsReq asks for the live counters of the active run.
type StatsReq struct{}

// StatsRes carries the live counters. ErrorDesc is set when no run is
// active.
type StatsRes struct {
	ErrorDesc string
	Summary   SummaryStats
}

func (StartGenerationReq) isMessage() {}
func (StartGenerationRes) isMessage() {}
func (StopGenerationReq) isMessage()  {}
func (StopGenerationRes) isMessage()  {}
func (StatsReq) isMessage()           {}
func (StatsRes) isMessage()           {}

// NewOutMessagesQueue creates the control -> data ring.
func NewOutMessagesQueue() *SpscRing[Message] {
	return NewSpscRing[Message](OUT_MSG_QUEUE_CAPACITY)
}

// NewIncMessagesQueue creates the data -> control ring.
func NewIncMessagesQueue() *SpscRing[Message] {
	return NewSpscRing[Message](INC_MSG_QUEUE_CAPACITY)
}
