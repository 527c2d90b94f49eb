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
// Counter sets reported back to the operator. All counters are zeroed at
// the start of every generation run.

package gotgen

// SummaryStats are the aggregate counters of one generation run.
type SummaryStats struct {
	CntRxPkts       uint64 `json:"cnt_rx_pkts"`
	CntTxPkts       uint64 `json:"cnt_tx_pkts"`
	CntRxBytes      uint64 `json:"cnt_rx_bytes"`
	CntTxBytes      uint64 `json:"cnt_tx_bytes"`
	CntRxPktsQfull  uint64 `json:"cnt_rx_pkts_qfull"`
	CntRxPktsNoMbuf uint64 `json:"cnt_rx_pkts_nombuf"`
	CntTxPktsQfull  uint64 `json:"cnt_tx_pkts_qfull"`
	CntTxPktsNoMbuf uint64 `json:"cnt_tx_pkts_nombuf"`
	CntRxPktsErr    uint64 `json:"cnt_rx_pkts_err"`
	CntTxPktsErr    uint64 `json:"cnt_tx_pkts_err"`
}

// FlowStats is the detailed roll-up of one flow.
type FlowStats struct {
	GenIdx       uint32 `json:"gen_idx"`
	FlowIdx      uint32 `json:"flow_idx"`
	CntPkts      uint64 `json:"cnt_pkts"`
	CntBytes     uint64 `json:"cnt_bytes"`
	DurationUsec uint64 `json:"duration_usec"`
}
