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

package gotgen

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadAll(t *testing.T, path string, pool *BufferPool) []CapturePacket {
	loader, err := OpenCaptureLoader(path)
	require.NoError(t, err)
	defer loader.Close()

	var out []CapturePacket
	for {
		pk, err := loader.LoadPkt(pool.Alloc)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, pk)
	}
}

func TestCaptureLoaderRoundTrip(t *testing.T) {
	pool := NewBufferPool(16)
	d0 := buildTestPkt(t, true, IPPROTO_UDP, 64)
	d1 := buildTestPkt(t, false, IPPROTO_UDP, 256)
	path := writeTestCapture(t, []testCapRec{
		{tstampMicros: 1_000_000, data: d0},
		{tstampMicros: 1_001_500, data: d1},
	})

	pkts := loadAll(t, path, pool)
	require.Len(t, pkts, 2)

	assert.Equal(t, uint64(1_000_000), pkts[0].TstampMicros)
	assert.Equal(t, uint64(1_001_500), pkts[1].TstampMicros)
	assert.Equal(t, d0, pkts[0].Buf.Data())
	assert.Equal(t, d1, pkts[1].Buf.Data())
	assert.Equal(t, len(d0), pkts[0].Buf.PktLen)
	assert.Equal(t, 1, pkts[0].Buf.NbSegs)

	for _, pk := range pkts {
		pk.Buf.Free()
	}
	assert.Equal(t, pool.Capacity(), pool.CountAvailable())
}

func TestCaptureLoaderRejectsBadMagic(t *testing.T) {
	// nanosecond-resolution and byte-swapped files must be rejected too
	for _, magic := range []uint32{0xA1B23C4D, 0xD4C3B2A1, 0xDEADBEEF} {
		path := writeTestCaptureRaw(t, magic, nil, false)
		_, err := OpenCaptureLoader(path)
		assert.ErrorIs(t, err, ErrBadMagic)
	}
}

func TestCaptureLoaderRejectsTruncatedPacket(t *testing.T) {
	pool := NewBufferPool(16)
	path := writeTestCaptureRaw(t, PCAP_MAGIC, []testCapRec{
		{data: buildTestPkt(t, true, IPPROTO_UDP, 64)},
	}, true)

	loader, err := OpenCaptureLoader(path)
	require.NoError(t, err)
	defer loader.Close()

	_, err = loader.LoadPkt(pool.Alloc)
	assert.ErrorIs(t, err, ErrTruncatedPacket)
	assert.Equal(t, pool.Capacity(), pool.CountAvailable())
}

func TestCaptureLoaderSegmentsLargePackets(t *testing.T) {
	pool := NewBufferPool(16)
	data := buildTestPkt(t, true, IPPROTO_UDP, 3*1024)
	require.Greater(t, len(data), BUF_DATA_SIZE)
	path := writeTestCapture(t, []testCapRec{{data: data}})

	pkts := loadAll(t, path, pool)
	require.Len(t, pkts, 1)

	head := pkts[0].Buf
	assert.Equal(t, 2, head.NbSegs)
	assert.Equal(t, len(data), head.PktLen)
	require.NotNil(t, head.Next)

	var joined []byte
	for seg := head; seg != nil; seg = seg.Next {
		joined = append(joined, seg.Data()...)
	}
	assert.Equal(t, data, joined)

	head.Free()
	assert.Equal(t, pool.Capacity(), pool.CountAvailable())
}

func TestCaptureLoaderPoolExhaustion(t *testing.T) {
	pool := NewBufferPool(1)
	require.NotNil(t, pool.Alloc()) // drain the pool

	path := writeTestCapture(t, []testCapRec{
		{data: buildTestPkt(t, true, IPPROTO_UDP, 64)},
	})
	loader, err := OpenCaptureLoader(path)
	require.NoError(t, err)
	defer loader.Close()

	_, err = loader.LoadPkt(pool.Alloc)
	assert.ErrorIs(t, err, ErrNoBuffer)
}
