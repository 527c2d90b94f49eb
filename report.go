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
// Optional per-send generation report stream. When enabled the generation
// manager writes one CSV line per attempted packet send. The stream is the
// only persisted output of the system.

package gotgen

import (
	"bufio"
	"fmt"
	"net/netip"
	"os"
)

// GenerationReport describes one attempted packet send.
type GenerationReport struct {
	Tstamp   Cycles
	GenIdx   uint32
	FlowIdx  uint32
	PktIdx   int
	PktLen   int
	SrcAddr  netip.Addr
	DstAddr  netip.Addr
	FromCln  bool
	Ok       bool
}

// ReportWriter streams generation reports to a file.
type ReportWriter struct {
	f *os.File
	w *bufio.Writer
}

// NewReportWriter creates (truncates) the report file.
func NewReportWriter(path string) (*ReportWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file %s: %w", path, err)
	}
	return &ReportWriter{f: f, w: bufio.NewWriter(f)}, nil
}

// Record appends one report line.
func (rw *ReportWriter) Record(r *GenerationReport) {
	fromCln := 0
	if r.FromCln {
		fromCln = 1
	}
	ok := 0
	if r.Ok {
		ok = 1
	}
	fmt.Fprintf(rw.w, "%d,%d,%d,%d,%d,%s,%s,%d,%d\n",
		uint64(r.Tstamp), r.GenIdx, r.FlowIdx, r.PktIdx, r.PktLen,
		r.SrcAddr, r.DstAddr, fromCln, ok)
}

// Close flushes and closes the stream.
func (rw *ReportWriter) Close() {
	rw.w.Flush()
	rw.f.Close()
}
