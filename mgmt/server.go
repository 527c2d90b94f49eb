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
// HTTP request surface of the management plane. The handlers run on the
// HTTP server's own goroutines; they never touch the message rings
// directly. Each handler funnels its request to the management loop and
// suspends until the loop delivers the matching response popped from the
// data CPU's ring.

package mgmt

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pktworks/gotgen"
)

type resultBody struct {
	Result string `json:"result"`
}

type statsBody struct {
	Result gotgen.SummaryStats `json:"result"`
}

type stopBody struct {
	Result   gotgen.SummaryStats `json:"result"`
	Detailed []gotgen.FlowStats  `json:"detailed"`
}

// httpResult is what a handler eventually writes back to its client.
type httpResult struct {
	status int
	body   interface{}
}

func newMux(m *Manager) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/start_gen", m.onReqStartGen)
	mux.HandleFunc("/stop_gen", m.onReqStopGen)
	mux.HandleFunc("/get_stats", m.onReqGetStats)
	return mux
}

func (m *Manager) onReqStartGen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeResult(w, http.StatusMethodNotAllowed, "Invalid method")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeResult(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	cfg, err := ParseGenConfig(body)
	if err != nil {
		writeResult(w, http.StatusBadRequest,
			"Invalid generation configuration: "+err.Error())
		return
	}
	writeHTTPResult(w,
		m.submit(pendStart, gotgen.StartGenerationReq{Cfg: cfg}))
}

func (m *Manager) onReqStopGen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeResult(w, http.StatusMethodNotAllowed, "Invalid method")
		return
	}
	writeHTTPResult(w, m.submit(pendStop, gotgen.StopGenerationReq{}))
}

func (m *Manager) onReqGetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeResult(w, http.StatusMethodNotAllowed, "Invalid method")
		return
	}
	writeHTTPResult(w, m.submit(pendStats, gotgen.StatsReq{}))
}

func writeHTTPResult(w http.ResponseWriter, res httpResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.status)
	json.NewEncoder(w).Encode(res.body)
}

func writeResult(w http.ResponseWriter, status int, msg string) {
	writeHTTPResult(w, httpResult{status: status, body: resultBody{Result: msg}})
}
