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
// The tick unit of the generation core. All scheduling and timestamping is
// expressed in Cycles of the monotonic clock owned by the event scheduler.
// Strong typing avoids mixing up raw tick counts with durations. The PCAP
// timestamps and the configurable inter-packet gaps both have microsecond
// precision, so the clock resolution of one nanosecond per cycle is more
// than sufficient.

package gotgen

import "time"

// Cycles is an amount of ticks of the monotonic clock.
type Cycles uint64

// CyclesPerSecond returns the tick frequency of the clock.
func CyclesPerSecond() uint64 {
	// one cycle per nanosecond
	return 1_000_000_000
}

// CyclesFromDuration converts a duration to the equivalent cycle count.
func CyclesFromDuration(d time.Duration) Cycles {
	return Cycles(d.Nanoseconds())
}

// CyclesFromMicros converts a microsecond count to cycles.
func CyclesFromMicros(us uint64) Cycles {
	return Cycles(us * (CyclesPerSecond() / 1_000_000))
}

// ToDuration converts a cycle count to a duration.
func (c Cycles) ToDuration() time.Duration {
	return time.Duration(c)
}

// Micros converts a cycle count to whole microseconds.
func (c Cycles) Micros() uint64 {
	return uint64(c) / (CyclesPerSecond() / 1_000_000)
}
