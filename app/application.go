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
// Process bootstrap: wires the buffer pool, NIC, scheduler, rings and the
// two managers together, pins the control and data loops to their CPUs and
// runs them until a termination signal arrives. The signal flips a shared
// atomic flag which both loops poll at the top of every iteration; that
// flag and the two rings are the only cross-CPU state in the process.

package app

import (
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/pktworks/gotgen"
	"github.com/pktworks/gotgen/mgmt"
)

// Run builds the generator from the given settings file and runs it until
// a SIGINT/SIGTERM arrives.
func Run(cfgPath string) error {
	settings, err := LoadSettings(cfgPath)
	if err != nil {
		return err
	}
	gotgen.Log(gotgen.LOG_INFO, "Starting with settings: %s", settings)

	pool := gotgen.NewBufferPool(settings.PoolSize)
	sched := gotgen.NewEventScheduler(clock.New())
	outQueue := gotgen.NewOutMessagesQueue()
	incQueue := gotgen.NewIncMessagesQueue()

	dev, err := gotgen.OpenPcapEthDev(gotgen.PcapEthDevConfig{
		Iface:     settings.NicIface,
		QueueSize: settings.NicQueueSize,
		Pool:      pool,
	})
	if err != nil {
		return err
	}

	var report *gotgen.ReportWriter
	if settings.ReportFile != "" {
		report, err = gotgen.NewReportWriter(settings.ReportFile)
		if err != nil {
			dev.Close()
			return err
		}
	}

	genMgr := gotgen.NewGenManager(gotgen.GenManagerConfig{
		Dev:        dev,
		Pool:       pool,
		Sched:      sched,
		IncQueue:   outQueue,
		OutQueue:   incQueue,
		WorkingDir: settings.WorkingDir,
		Report:     report,
	})

	mgmtMgr, err := mgmt.NewManager(mgmt.ManagerConfig{
		Endpoint: settings.MgmtEndpoint,
		OutQueue: outQueue,
		IncQueue: incQueue,
	})
	if err != nil {
		genMgr.Shutdown()
		return err
	}

	stop := atomic.NewBool(false)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		gotgen.Log(gotgen.LOG_INFO, "Received signal %s, shutting down", sig)
		stop.Store(true)
	}()

	var group errgroup.Group

	// control loop
	group.Go(func() error {
		pinLoop(settings.Cpus[0])
		for !stop.Load() {
			mgmtMgr.ProcessEvents()
		}
		mgmtMgr.Close()
		return nil
	})

	// data loop
	group.Go(func() error {
		pinLoop(settings.Cpus[1])
		for !stop.Load() {
			genMgr.ProcessEvents()
		}
		genMgr.Shutdown()
		return nil
	})

	return group.Wait()
}

// pinLoop binds the calling goroutine to its OS thread and the thread to
// one CPU.
func pinLoop(cpu int) {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		gotgen.Log(gotgen.LOG_WARN, "Could not pin loop to CPU %d: %v",
			cpu, err)
	}
}
