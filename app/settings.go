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
// Generator settings file. The format is one `key = value` pair per line,
// '#' starts a comment. Required keys: working_dir, mgmt_endpoint (ip:port),
// cpus (two comma separated indices: control CPU, data CPU),
// num_memory_channels, nic_queue_size, nic_iface. Optional keys: pool_size
// (packet buffer count) and report_file (per-send CSV report stream).

package app

import (
	"bufio"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/pktworks/gotgen"
)

// Settings holds the values coming from the generator settings file.
type Settings struct {
	WorkingDir        string
	MgmtEndpoint      string
	Cpus              [2]int
	NumMemoryChannels int
	NicQueueSize      int
	NicIface          string
	PoolSize          int
	ReportFile        string
}

// LoadSettings reads and validates the settings file.
func LoadSettings(path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("missing or non-accessible config file %s: %w",
			path, err)
	}
	defer f.Close()

	vals := map[string]string{}
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("invalid config file %s: line %d",
				path, lineNo)
		}
		vals[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	s := &Settings{PoolSize: gotgen.BUF_POOL_SIZE_DEFAULT}
	var errs []string

	get := func(key string) string {
		val, ok := vals[key]
		if !ok {
			errs = append(errs, "missing config option '"+key+"'")
		}
		return val
	}
	getInt := func(key string) int {
		val := get(key)
		if val == "" {
			return 0
		}
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			errs = append(errs, "invalid config option '"+key+"'")
		}
		return n
	}

	s.WorkingDir = get("working_dir")
	s.MgmtEndpoint = get("mgmt_endpoint")
	if s.MgmtEndpoint != "" {
		if _, err := netip.ParseAddrPort(s.MgmtEndpoint); err != nil {
			errs = append(errs, "invalid config option 'mgmt_endpoint'")
		}
	}
	if cpus := get("cpus"); cpus != "" {
		parts := strings.Split(cpus, ",")
		if len(parts) != 2 {
			errs = append(errs, "config option 'cpus' expects 2 cpus")
		} else {
			for i, p := range parts {
				n, err := strconv.Atoi(strings.TrimSpace(p))
				if err != nil || n < 0 {
					errs = append(errs, "invalid config option 'cpus'")
					break
				}
				s.Cpus[i] = n
			}
		}
	}
	s.NumMemoryChannels = getInt("num_memory_channels")
	s.NicQueueSize = getInt("nic_queue_size")
	s.NicIface = get("nic_iface")

	if val, ok := vals["pool_size"]; ok {
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			errs = append(errs, "invalid config option 'pool_size'")
		} else {
			s.PoolSize = n
		}
	}
	s.ReportFile = vals["report_file"]

	if len(errs) != 0 {
		return nil, fmt.Errorf("invalid config file %s:\n\t%s",
			path, strings.Join(errs, "\n\t"))
	}
	return s, nil
}

// String renders the settings for the startup log line.
func (s *Settings) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n\tworking_dir = %s", s.WorkingDir)
	fmt.Fprintf(&b, "\n\tmgmt_endpoint = %s", s.MgmtEndpoint)
	fmt.Fprintf(&b, "\n\tcpus = %d,%d", s.Cpus[0], s.Cpus[1])
	fmt.Fprintf(&b, "\n\tnum_memory_channels = %d", s.NumMemoryChannels)
	fmt.Fprintf(&b, "\n\tnic_queue_size = %d", s.NicQueueSize)
	fmt.Fprintf(&b, "\n\tnic_iface = %s", s.NicIface)
	fmt.Fprintf(&b, "\n\tpool_size = %d", s.PoolSize)
	if s.ReportFile != "" {
		fmt.Fprintf(&b, "\n\treport_file = %s", s.ReportFile)
	}
	return b.String()
}
