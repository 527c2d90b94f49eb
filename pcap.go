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
// Streaming loader for classic PCAP capture files. The contract is
// intentionally narrow: little-endian magic 0xA1B2C3D4, version 2.4.
// Nanosecond-resolution variants and byte-swapped files are rejected.
// Record payloads are loaded into pool buffers; a record larger than one
// buffer is chained across additional segments.

package gotgen

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrBadMagic is returned when the global file header is not a classic
	// little-endian PCAP v2.4 header.
	ErrBadMagic = errors.New("invalid PCAP file header")

	// ErrTruncatedPacket is returned for records whose captured length does
	// not match the original wire length. Partially captured packets cannot
	// be replayed.
	ErrTruncatedPacket = errors.New("truncated packet in PCAP file")

	// ErrNoBuffer is returned when the buffer pool cannot supply a buffer
	// for a record payload.
	ErrNoBuffer = errors.New("out of packet buffers")
)

// CapturePacket is one record yielded by the loader. The caller owns the
// buffer.
type CapturePacket struct {
	TstampMicros uint64
	Buf          *Buffer
}

// CaptureLoader streams records from one classic PCAP file.
type CaptureLoader struct {
	f    *os.File
	r    *bufio.Reader
	path string
}

// OpenCaptureLoader opens a capture file and validates its global header.
func OpenCaptureLoader(path string) (*CaptureLoader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	r := bufio.NewReader(f)

	var hdr [24]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read PCAP file header from %s: %w",
			path, err)
	}
	magic := binary.LittleEndian.Uint32(hdr[0:4])
	major := binary.LittleEndian.Uint16(hdr[4:6])
	minor := binary.LittleEndian.Uint16(hdr[6:8])
	if magic != PCAP_MAGIC || major != PCAP_VERSION_MAJOR ||
		minor != PCAP_VERSION_MINOR {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrBadMagic, path)
	}

	return &CaptureLoader{f: f, r: r, path: path}, nil
}

// Close releases the underlying file.
func (l *CaptureLoader) Close() {
	l.f.Close()
}

// LoadPkt reads the next record. It returns io.EOF after the last record.
// The alloc callback supplies pool buffers; when it returns nil the load
// fails with ErrNoBuffer and everything allocated so far for this record is
// freed.
func (l *CaptureLoader) LoadPkt(alloc func() *Buffer) (CapturePacket, error) {
	var hdr [16]byte
	if _, err := io.ReadFull(l.r, hdr[:]); err != nil {
		if err == io.EOF {
			return CapturePacket{}, io.EOF
		}
		return CapturePacket{}, fmt.Errorf(
			"failed to read record header from %s: %w", l.path, err)
	}
	sec := binary.LittleEndian.Uint32(hdr[0:4])
	usec := binary.LittleEndian.Uint32(hdr[4:8])
	caplen := binary.LittleEndian.Uint32(hdr[8:12])
	wirelen := binary.LittleEndian.Uint32(hdr[12:16])

	if caplen != wirelen {
		return CapturePacket{}, fmt.Errorf("%w: %s", ErrTruncatedPacket, l.path)
	}

	head := alloc()
	if head == nil {
		return CapturePacket{}, ErrNoBuffer
	}
	curr := head
	for rdlen := uint32(0); rdlen < caplen; {
		if curr.Tailroom() == 0 {
			next := alloc()
			if next == nil {
				head.Free()
				return CapturePacket{}, ErrNoBuffer
			}
			curr.Next = next
			head.NbSegs++
			curr = next
		}
		n := caplen - rdlen
		if room := uint32(curr.Tailroom()); n > room {
			n = room
		}
		if _, err := io.ReadFull(l.r, curr.Append(int(n))); err != nil {
			head.Free()
			return CapturePacket{}, fmt.Errorf(
				"failed to read record payload from %s: %w", l.path, err)
		}
		head.PktLen += int(n)
		rdlen += n
	}

	return CapturePacket{
		TstampMicros: uint64(sec)*1_000_000 + uint64(usec),
		Buf:          head,
	}, nil
}
