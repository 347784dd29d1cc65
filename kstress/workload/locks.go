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

package workload

import (
	"context"
	"fmt"
	"time"

	"kernsync.dev/kernsync/pkg/atomicbitops"
	"kernsync.dev/kernsync/pkg/log"
)

// interruptEvery is how often, in iterations, a worker on an irq-safe lock
// raises an interrupt from inside its critical section.
const interruptEvery = 16

// Mutex has every worker increment a shared counter Iterations times under a
// lock of the given kind, and checks that no increment was lost.
//
// For irq-safe kinds, workers also raise interrupts on their core from inside
// the critical section. The handlers increment the same counter under the
// same lock, which only works because delivery is deferred until the worker
// restores interrupts.
func Mutex(ctx context.Context, kind string, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	newHandle, err := newLock(kind)
	if err != nil {
		return nil, err
	}

	var (
		counter    uint64
		interrupts atomicbitops.Uint64
	)
	res := &Result{
		Workload:  "mutex",
		Lock:      kind,
		Threads:   opts.Threads,
		PerWorker: make([]uint64, opts.Threads),
	}
	handles := make([]handle, opts.Threads)
	for i := range handles {
		handles[i] = newHandle(i)
	}

	res.Elapsed, err = run(ctx, opts.Threads, opts.PinCPUs, func(ctx context.Context, id int) error {
		h := handles[id]
		for j := 0; j < opts.Iterations; j++ {
			h.Lock()
			counter++
			if h.cpu != nil && j%interruptEvery == 0 {
				interrupts.Add(1)
				h.cpu.Interrupt(func() {
					tok := h.irqLock.LockIRQSave(h.cpu)
					counter++
					h.irqLock.UnlockIRQRestore(tok)
				})
			}
			h.Unlock()
			res.PerWorker[id]++
			if j%1024 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.sum()

	want := uint64(opts.Threads*opts.Iterations) + interrupts.Load()
	if counter != want {
		return res, fmt.Errorf("%s: lost updates: counter is %d, want %d", kind, counter, want)
	}
	for _, h := range handles {
		if h.cpu != nil && h.cpu.Pending() != 0 {
			return res, fmt.Errorf("%s: %v has %d undelivered interrupts", kind, h.cpu, h.cpu.Pending())
		}
	}
	log.Debugf("Mutex %s: %d workers, %d ops, %d interrupts in %v", kind, opts.Threads, res.Ops, interrupts.Load(), res.Elapsed)
	return res, nil
}

// Fairness has every worker take a lock of the given kind as often as it can
// for opts.Duration, and reports how the acquisitions were spread.
func Fairness(ctx context.Context, kind string, opts Options) (*Result, error) {
	if opts.Threads < 1 {
		return nil, fmt.Errorf("threads must be at least 1, got %d", opts.Threads)
	}
	if opts.Duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %v", opts.Duration)
	}
	newHandle, err := newLock(kind)
	if err != nil {
		return nil, err
	}

	var (
		stop   atomicbitops.Bool
		holder atomicbitops.Int32
	)
	res := &Result{
		Workload:  "fairness",
		Lock:      kind,
		Threads:   opts.Threads,
		PerWorker: make([]uint64, opts.Threads),
	}
	timer := time.AfterFunc(opts.Duration, func() { stop.Store(true) })
	defer timer.Stop()

	res.Elapsed, err = run(ctx, opts.Threads, opts.PinCPUs, func(ctx context.Context, id int) error {
		h := newHandle(id)
		for n := uint64(0); !stop.Load(); n++ {
			h.Lock()
			if prev := holder.Swap(int32(id) + 1); prev != 0 {
				h.Unlock()
				return fmt.Errorf("%s: worker %d entered while worker %d held the lock", kind, id, prev-1)
			}
			holder.Store(0)
			h.Unlock()
			res.PerWorker[id]++
			if n%1024 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.sum()
	return res, nil
}
