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
// Single-CPU event scheduler with microsecond resolution. ProcessDue is
// polled from the data-plane loop; it consults the monotonic clock and, if
// at least one microsecond of wall time has elapsed since the last firing
// pass, runs all due callbacks in scheduled-time order (ties broken by
// insertion order). Events armed from within a callback for a time at or
// before "now" fire on the next tick, never re-entrantly.
//
// The whole scheduler is confined to the data CPU; there is no
// synchronization anywhere here.

package gotgen

import (
	"container/heap"
	"time"

	"github.com/benbjohnson/clock"
)

// EventCallback is invoked when an armed event becomes due.
type EventCallback func(ev *Event, ctx interface{})

type eventState uint8

const (
	evIdle eventState = iota
	evArmed
	evFiring
)

// Event is one timer slot. It is uniquely owned by whoever created it;
// Stop cancels a pending firing and returns the slot to the idle state.
type Event struct {
	sched  *EventScheduler
	when   Cycles
	period Cycles // zero for one-shot events
	cb     EventCallback
	ctx    interface{}
	state  eventState
	seq    uint64
	hix    int // index in the scheduler heap, -1 when not queued
}

// ScheduleSingle arms the event to fire once, rel cycles from now. An
// already armed event is re-armed.
func (ev *Event) ScheduleSingle(rel Cycles, cb EventCallback, ctx interface{}) {
	ev.sched.schedule(ev, rel, 0, cb, ctx)
}

// SchedulePeriodic arms the event to fire every rel cycles, starting rel
// cycles from now.
func (ev *Event) SchedulePeriodic(rel Cycles, cb EventCallback, ctx interface{}) {
	ev.sched.schedule(ev, rel, rel, cb, ctx)
}

// Stop cancels the event. Stopping an idle event is a no-op. Stopping an
// event from inside its own callback is an invariant breach and aborts.
func (ev *Event) Stop() {
	ev.sched.stop(ev)
}

// EventScheduler multiplexes timer events over the data-plane loop.
type EventScheduler struct {
	clk        clock.Clock
	base       time.Time
	usecCycles Cycles
	prevTicks  Cycles

	queue    eventQueue
	staged   []*Event // armed while a firing pass was running
	seqCntr  uint64
	cntArmed int
	inPass   bool   // a firing pass is walking the queue
	firingEv *Event // event whose callback is currently executing
}

// NewEventScheduler creates a scheduler on top of the given clock. The
// production clock is clock.New(); tests drive a clock.Mock.
func NewEventScheduler(clk clock.Clock) *EventScheduler {
	return &EventScheduler{
		clk:        clk,
		base:       clk.Now(),
		usecCycles: CyclesFromMicros(1),
	}
}

// Now returns the current scheduler time.
func (s *EventScheduler) Now() Cycles {
	return Cycles(s.clk.Now().Sub(s.base).Nanoseconds())
}

// CreateEvent returns a new idle event slot bound to this scheduler.
func (s *EventScheduler) CreateEvent() *Event {
	return &Event{sched: s, hix: -1}
}

// LiveEventCount returns the number of currently armed events. It must
// equal the sum of armed handles held by all flows at every observable
// point and must be zero after a generation run has been torn down.
func (s *EventScheduler) LiveEventCount() int {
	return s.cntArmed
}

// ProcessDue fires all due events if at least one microsecond has elapsed
// since the previous firing pass. It returns the number of callbacks run.
func (s *EventScheduler) ProcessDue() int {
	now := s.Now()
	if now < s.prevTicks+s.usecCycles {
		return 0
	}
	s.prevTicks = now

	s.inPass = true
	fired := 0
	for len(s.queue) > 0 && s.queue[0].when <= now {
		ev := heap.Pop(&s.queue).(*Event)
		ev.state = evFiring
		s.cntArmed--

		s.firingEv = ev
		ev.cb(ev, ev.ctx)
		s.firingEv = nil
		fired++

		// the callback may have re-armed or stopped the event; only touch
		// it if it is still in the firing state
		if ev.state == evFiring {
			if ev.period > 0 {
				s.arm(ev, ev.when+ev.period)
			} else {
				ev.state = evIdle
			}
		}
	}

	s.inPass = false

	// events armed during the pass become visible on the next tick
	for _, ev := range s.staged {
		heap.Push(&s.queue, ev)
	}
	s.staged = s.staged[:0]
	return fired
}

func (s *EventScheduler) schedule(ev *Event, rel, period Cycles,
	cb EventCallback, ctx interface{}) {

	if ev.state == evArmed {
		s.remove(ev)
	}
	ev.cb = cb
	ev.ctx = ctx
	ev.period = period
	s.arm(ev, s.Now()+rel)
}

func (s *EventScheduler) arm(ev *Event, when Cycles) {
	ev.when = when
	ev.seq = s.seqCntr
	s.seqCntr++
	ev.state = evArmed
	s.cntArmed++
	if s.inPass {
		// never insert into the queue mid-pass; anything armed now, even
		// for a time at or before the pass snapshot, fires on a later tick
		s.staged = append(s.staged, ev)
		return
	}
	heap.Push(&s.queue, ev)
}

func (s *EventScheduler) stop(ev *Event) {
	if ev == s.firingEv {
		Log(LOG_ERR, "Event stopped from inside its own callback")
	}
	if ev.state == evArmed {
		s.remove(ev)
		ev.state = evIdle
	}
}

func (s *EventScheduler) remove(ev *Event) {
	s.cntArmed--
	if ev.hix >= 0 {
		heap.Remove(&s.queue, ev.hix)
		return
	}
	for i, st := range s.staged {
		if st == ev {
			s.staged = append(s.staged[:i], s.staged[i+1:]...)
			return
		}
	}
	Log(LOG_ERR, "Armed event missing from scheduler queues")
}

// eventQueue is a binary heap ordered by firing time, then by arming order.
type eventQueue []*Event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].when != q[j].when {
		return q[i].when < q[j].when
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].hix = i
	q[j].hix = j
}

func (q *eventQueue) Push(x interface{}) {
	ev := x.(*Event)
	ev.hix = len(*q)
	*q = append(*q, ev)
}

func (q *eventQueue) Pop() interface{} {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.hix = -1
	*q = old[:n-1]
	return ev
}
