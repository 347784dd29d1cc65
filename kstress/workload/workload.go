// Copyright 2023 The kernsync Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package workload implements the stress workloads run by kstress. Every
// workload checks the guarantee of the primitive it exercises and returns an
// error if it was violated.
package workload

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"kernsync.dev/kernsync/pkg/hostcpu"
	"kernsync.dev/kernsync/pkg/irq"
	"kernsync.dev/kernsync/pkg/log"
	"kernsync.dev/kernsync/pkg/mcs"
	"kernsync.dev/kernsync/pkg/rwlock"
	"kernsync.dev/kernsync/pkg/spinlock"
	"kernsync.dev/kernsync/pkg/sync"
	"kernsync.dev/kernsync/pkg/ticket"
)

// Lock kinds accepted by the lock workloads.
const (
	KindSpinlock    = "spinlock"
	KindSpinlockIRQ = "spinlock-irq"
	KindTicket      = "ticket"
	KindMCS         = "mcs"
	KindRWLock      = "rwlock"
)

// Kinds lists every lock kind.
var Kinds = []string{KindSpinlock, KindSpinlockIRQ, KindTicket, KindMCS, KindRWLock}

// Options configures a workload run.
type Options struct {
	// Threads is the number of worker goroutines.
	Threads int

	// Iterations is the number of operations per worker.
	Iterations int

	// Phases is the number of barrier phases.
	Phases int

	// Duration bounds time-based workloads.
	Duration time.Duration

	// PinCPUs pins every worker to its own host CPU.
	PinCPUs bool
}

func (o Options) validate() error {
	if o.Threads < 1 {
		return fmt.Errorf("threads must be at least 1, got %d", o.Threads)
	}
	if o.Iterations < 1 {
		return fmt.Errorf("iterations must be at least 1, got %d", o.Iterations)
	}
	return nil
}

// Result is the outcome of a workload run.
type Result struct {
	// Workload names the workload.
	Workload string

	// Lock is the lock kind, if any.
	Lock string

	// Threads is the number of workers.
	Threads int

	// Ops is the total number of operations.
	Ops uint64

	// PerWorker holds the operations of each worker.
	PerWorker []uint64

	// Elapsed is the wall time of the run.
	Elapsed time.Duration
}

// OpsPerSecond returns the throughput of the run.
func (r *Result) OpsPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Ops) / r.Elapsed.Seconds()
}

// Spread returns the fewest and most operations done by a single worker.
func (r *Result) Spread() (min, max uint64) {
	for i, n := range r.PerWorker {
		if i == 0 || n < min {
			min = n
		}
		if n > max {
			max = n
		}
	}
	return min, max
}

func (r *Result) sum() {
	r.Ops = 0
	for _, n := range r.PerWorker {
		r.Ops += n
	}
}

// handle is one worker's view of a lock under test.
type handle struct {
	sync.Locker

	// cpu is the worker's core for irq-safe kinds, nil otherwise.
	cpu *irq.CPU

	// irqLock is the underlying spinlock for irq-safe kinds.
	irqLock *spinlock.Spinlock
}

// irqLocker takes a spinlock with interrupts disabled on one core.
type irqLocker struct {
	l   *spinlock.Spinlock
	cpu *irq.CPU
	tok irq.Token
}

func (k *irqLocker) Lock() {
	k.tok = k.l.LockIRQSave(k.cpu)
}

func (k *irqLocker) Unlock() {
	k.l.UnlockIRQRestore(k.tok)
}

// newLock creates a lock of the given kind and returns the function that
// gives worker id its handle on it.
func newLock(kind string) (func(id int) handle, error) {
	switch kind {
	case KindSpinlock:
		l := new(spinlock.Spinlock)
		return func(int) handle { return handle{Locker: l} }, nil
	case KindSpinlockIRQ:
		l := new(spinlock.Spinlock)
		return func(id int) handle {
			cpu := irq.NewCPU(id)
			return handle{Locker: &irqLocker{l: l, cpu: cpu}, cpu: cpu, irqLock: l}
		}, nil
	case KindTicket:
		l := new(ticket.Lock)
		return func(int) handle { return handle{Locker: l} }, nil
	case KindMCS:
		l := new(mcs.Lock)
		return func(int) handle { return handle{Locker: mcs.NewLocker(l)} }, nil
	case KindRWLock:
		l := new(rwlock.RWLock)
		return func(int) handle { return handle{Locker: l} }, nil
	default:
		return nil, fmt.Errorf("unknown lock kind %q, must be one of %v", kind, Kinds)
	}
}

// ValidKind returns an error unless kind names a lock.
func ValidKind(kind string) error {
	_, err := newLock(kind)
	return err
}

// run starts n workers and releases them together once every worker is
// ready. Either every worker runs fn or none does. With pin set, worker id is
// bound to the (id mod n)-th of the n CPUs in the process affinity mask.
func run(ctx context.Context, n int, pin bool, fn func(ctx context.Context, id int) error) (time.Duration, error) {
	var cpus []int
	if pin {
		var err error
		if cpus, err = hostcpu.Usable(); err != nil {
			return 0, err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	var ready sync.WaitGroupErr
	begin := make(chan struct{})
	for i := 0; i < n; i++ {
		id := i
		ready.Add(1)
		g.Go(func() error {
			if pin {
				// The thread is never unlocked, so it exits with the
				// worker instead of carrying the pinned mask back to the
				// scheduler.
				runtime.LockOSThread()
				cpu := cpus[id%len(cpus)]
				if err := hostcpu.Pin(cpu); err != nil {
					ready.Reportf("worker %d: %w", id, err)
				} else {
					log.Debugf("Worker %d pinned to CPU %d", id, cpu)
				}
			}
			ready.Done()
			<-begin
			if ready.Error() != nil {
				return nil
			}
			return fn(ctx, id)
		})
	}

	ready.Wait()
	start := time.Now()
	close(begin)
	err := g.Wait()
	elapsed := time.Since(start)
	if err := ready.Error(); err != nil {
		return 0, err
	}
	return elapsed, err
}
