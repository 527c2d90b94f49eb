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
// Synthetic capture generation for the tests.

package gotgen

import (
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

var (
	testCapClnMac = mustMac("02:00:00:00:00:01")
	testCapSrvMac = mustMac("02:00:00:00:00:02")
)

func mustMac(s string) net.HardwareAddr {
	m, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return m
}

// buildTestPkt serializes an Ethernet/IPv4/TCP-or-UDP frame. fromClient
// selects the direction by swapping the endpoint addressing.
func buildTestPkt(t *testing.T, fromClient bool, proto byte,
	payloadLen int) []byte {

	srcMac, dstMac := testCapClnMac, testCapSrvMac
	srcIP, dstIP := net.IP{192, 168, 0, 1}, net.IP{192, 168, 0, 2}
	if !fromClient {
		srcMac, dstMac = dstMac, srcMac
		srcIP, dstIP = dstIP, srcIP
	}

	eth := &layers.Ethernet{
		SrcMAC:       srcMac,
		DstMAC:       dstMac,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocol(proto),
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	payload := gopacket.Payload(make([]byte, payloadLen))

	var err error
	switch proto {
	case IPPROTO_UDP:
		udp := &layers.UDP{SrcPort: 40000, DstPort: 53}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
		err = gopacket.SerializeLayers(buf, opts, eth, ip, udp, payload)
	case IPPROTO_TCP:
		tcp := &layers.TCP{SrcPort: 40000, DstPort: 80, SYN: true}
		require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
		err = gopacket.SerializeLayers(buf, opts, eth, ip, tcp, payload)
	default:
		err = gopacket.SerializeLayers(buf, opts, eth, ip, payload)
	}
	require.NoError(t, err)
	return buf.Bytes()
}

// testCapRec is one record of a synthetic capture.
type testCapRec struct {
	tstampMicros uint64
	data         []byte
}

// writeTestCapture writes a classic PCAP file and returns its path.
func writeTestCapture(t *testing.T, recs []testCapRec) string {
	return writeTestCaptureRaw(t, PCAP_MAGIC, recs, false)
}

// writeTestCaptureInto writes a classic PCAP file with the given name into
// dir.
func writeTestCaptureInto(t *testing.T, dir, name string, recs []testCapRec) {
	path := filepath.Join(dir, name)
	require.NoError(t,
		os.WriteFile(path, captureBytes(PCAP_MAGIC, recs, false), 0644))
}

// writeTestCaptureRaw gives the failure tests control over the file header
// magic and the per-record captured length.
func writeTestCaptureRaw(t *testing.T, magic uint32, recs []testCapRec,
	truncate bool) string {

	path := filepath.Join(t.TempDir(), "test.pcap")
	require.NoError(t, os.WriteFile(path, captureBytes(magic, recs, truncate),
		0644))
	return path
}

func captureBytes(magic uint32, recs []testCapRec, truncate bool) []byte {
	var out []byte
	var hdr [24]byte
	binary.LittleEndian.PutUint32(hdr[0:4], magic)
	binary.LittleEndian.PutUint16(hdr[4:6], PCAP_VERSION_MAJOR)
	binary.LittleEndian.PutUint16(hdr[6:8], PCAP_VERSION_MINOR)
	binary.LittleEndian.PutUint32(hdr[16:20], 65535) // snaplen
	binary.LittleEndian.PutUint32(hdr[20:24], 1)     // Ethernet
	out = append(out, hdr[:]...)

	for _, rec := range recs {
		var rh [16]byte
		binary.LittleEndian.PutUint32(rh[0:4],
			uint32(rec.tstampMicros/1_000_000))
		binary.LittleEndian.PutUint32(rh[4:8],
			uint32(rec.tstampMicros%1_000_000))
		caplen := uint32(len(rec.data))
		wirelen := caplen
		if truncate {
			wirelen = caplen + 100
		}
		binary.LittleEndian.PutUint32(rh[8:12], caplen)
		binary.LittleEndian.PutUint32(rh[12:16], wirelen)
		out = append(out, rh[:]...)
		out = append(out, rec.data...)
	}
	return out
}
