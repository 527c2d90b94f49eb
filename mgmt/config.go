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
// Parsing and validation of the JSON generation configuration. The expected
// format:
//
//	{
//	    "duration_secs": 10,
//	    "dut_ether_addr": "e4:8d:8c:20:fb:bc",
//	    "captures": [
//	        {
//	            "name": "test.pcap",
//	            "burst": 1,
//	            "sps": 1,
//	            "ipg": 10000,
//	            "cln_ips": "16.0.0.1/29",
//	            "srv_ips": "48.0.0.1/29",
//	            "cln_port": 1024
//	        }
//	    ]
//	}
//
// `duration_secs` is the duration of the whole generation run, in seconds.
// `dut_ether_addr` is the Ethernet address of the Device Under Test (DUT).
// `captures` is an array of captures used for generating streams of packets:
// `name` is a path to the capture file, relative to the working directory of
// the generator; `burst` > 1 makes that many consecutive flows share one
// address pair; `sps` is the count of started flows per second; `ipg` is the
// inter-packet gap in microseconds, and if absent the timestamps from the
// capture file are used; `cln_ips`/`srv_ips` are the IPv4 ranges used for
// the client/server side of the packets; `cln_port` is the client port
// written into TCP/UDP packets, and if absent the port is not replaced.
//
// Any violation of the value ranges fails the parse; nothing reaches the
// data CPU.

package mgmt

import (
	"encoding/json"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/pktworks/gotgen"
)

// value ranges accepted by the configuration
const (
	MIN_BURST = 1
	MAX_BURST = 5

	MIN_SPS = 1
	MAX_SPS = 1_000_000

	MIN_IPG_USEC = 1
	MAX_IPG_USEC = 100_000_000

	MIN_CLN_PORT = 1024
	MAX_CLN_PORT = 65535
)

type jsonCapture struct {
	Name    *string `json:"name"`
	Burst   *uint32 `json:"burst"`
	Sps     *uint32 `json:"sps"`
	Ipg     *uint64 `json:"ipg"`
	ClnIPs  *string `json:"cln_ips"`
	SrvIPs  *string `json:"srv_ips"`
	ClnPort *uint16 `json:"cln_port"`
}

type jsonGenConfig struct {
	DurationSecs *float64      `json:"duration_secs"`
	DutEtherAddr *string       `json:"dut_ether_addr"`
	Captures     []jsonCapture `json:"captures"`
}

// ParseGenConfig parses and validates a generation configuration body.
func ParseGenConfig(data []byte) (*gotgen.GenConfig, error) {
	var jc jsonGenConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}

	if jc.DurationSecs == nil || *jc.DurationSecs <= 0 {
		return nil, fmt.Errorf("missing or non-positive 'duration_secs'")
	}
	if jc.DutEtherAddr == nil {
		return nil, fmt.Errorf("missing 'dut_ether_addr'")
	}
	dutMac, err := net.ParseMAC(*jc.DutEtherAddr)
	if err != nil || len(dutMac) != gotgen.ETHER_ADDR_LEN {
		return nil, fmt.Errorf("invalid 'dut_ether_addr': %q", *jc.DutEtherAddr)
	}
	if len(jc.Captures) == 0 {
		return nil, fmt.Errorf("missing or empty 'captures'")
	}

	cfg := &gotgen.GenConfig{
		Duration:   time.Duration(*jc.DurationSecs * float64(time.Second)),
		DutMacAddr: dutMac,
		FlowsCfgs:  make([]gotgen.FlowsConfig, 0, len(jc.Captures)),
	}

	for i, cap := range jc.Captures {
		fc, err := parseCapture(&cap)
		if err != nil {
			return nil, fmt.Errorf("capture %d: %w", i, err)
		}
		cfg.FlowsCfgs = append(cfg.FlowsCfgs, fc)
	}
	return cfg, nil
}

func parseCapture(cap *jsonCapture) (gotgen.FlowsConfig, error) {
	var fc gotgen.FlowsConfig

	if cap.Name == nil || *cap.Name == "" {
		return fc, fmt.Errorf("missing 'name'")
	}
	fc.CapturePath = *cap.Name

	if cap.Burst == nil || *cap.Burst < MIN_BURST || *cap.Burst > MAX_BURST {
		return fc, fmt.Errorf("'burst' must be within %d..%d",
			MIN_BURST, MAX_BURST)
	}
	fc.Burst = *cap.Burst

	if cap.Sps == nil || *cap.Sps < MIN_SPS || *cap.Sps > MAX_SPS {
		return fc, fmt.Errorf("'sps' must be within %d..%d", MIN_SPS, MAX_SPS)
	}
	fc.FlowsPerSec = *cap.Sps

	if cap.Ipg != nil {
		if *cap.Ipg < MIN_IPG_USEC || *cap.Ipg > MAX_IPG_USEC {
			return fc, fmt.Errorf("'ipg' must be within %d..%d",
				MIN_IPG_USEC, MAX_IPG_USEC)
		}
		fc.InterPktsGapUsec = *cap.Ipg
	}

	clnIPs, err := parseIpv4Prefix(cap.ClnIPs)
	if err != nil {
		return fc, fmt.Errorf("invalid 'cln_ips': %w", err)
	}
	fc.ClnIPs = clnIPs

	srvIPs, err := parseIpv4Prefix(cap.SrvIPs)
	if err != nil {
		return fc, fmt.Errorf("invalid 'srv_ips': %w", err)
	}
	fc.SrvIPs = srvIPs

	if cap.ClnPort != nil {
		if *cap.ClnPort < MIN_CLN_PORT {
			return fc, fmt.Errorf("'cln_port' must be within %d..%d",
				MIN_CLN_PORT, MAX_CLN_PORT)
		}
		fc.ClnPort = *cap.ClnPort
	}
	return fc, nil
}

func parseIpv4Prefix(s *string) (netip.Prefix, error) {
	if s == nil {
		return netip.Prefix{}, fmt.Errorf("missing value")
	}
	p, err := netip.ParsePrefix(*s)
	if err != nil {
		return netip.Prefix{}, err
	}
	if !p.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("%q is not an IPv4 range", *s)
	}
	return p, nil
}
