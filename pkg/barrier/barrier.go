// Copyright 2020 The kernsync Authors.
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

// Package barrier provides spinning rendezvous points.
//
// Barrier synchronizes a fixed group of goroutines and can be reused for any
// number of phases. CoreBarrier synchronizes the cores that have raised their
// participation in it, and is meant for bringing all cores of a machine
// through boot and shutdown stages together.
package barrier

import (
	"fmt"

	"golang.org/x/sys/cpu"
	"kernsync.dev/kernsync/pkg/atomicbitops"
	"kernsync.dev/kernsync/pkg/errors/linuxerr"
	"kernsync.dev/kernsync/pkg/spin"
	"kernsync.dev/kernsync/pkg/spinlock"
)

// Barrier is a reusable barrier for a fixed number of goroutines.
//
// Each phase goes through three stages. While arriving, goroutines decrement
// remaining under the lock. The last arriver sets notify, which releases the
// others. Released goroutines then count themselves in drained, and the one
// that completes the count resets the barrier for the next phase. Goroutines
// arriving for the next phase wait for the reset before they touch the
// counters.
//
// A Barrier must be initialized with Init before use.
type Barrier struct {
	// mu protects remaining and initCount.
	mu spinlock.Spinlock

	// remaining is the number of goroutines yet to arrive in this phase.
	remaining int32

	// initCount is the number of participants, zero before Init.
	initCount int32

	// drained is the number of goroutines that have left the current phase.
	drained atomicbitops.Int32

	// generation is the number of completed phases.
	generation atomicbitops.Uint64

	_ cpu.CacheLinePad

	// notify is set from the last arrival of a phase until that phase has
	// drained. Waiters spin on it, so it lives on its own cache line.
	notify atomicbitops.Bool

	_ cpu.CacheLinePad
}

// Init prepares b for n participants. It returns EINVAL if n is less than one.
func (b *Barrier) Init(n int) error {
	if n < 1 || n > 1<<30 {
		return linuxerr.EINVAL
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remaining = int32(n)
	b.initCount = int32(n)
	b.drained.Store(0)
	b.notify.Store(false)
	return nil
}

// enter locks b.mu once the previous phase has drained.
func (b *Barrier) enter() {
	bo := spin.Backoff{Yield: true}
	for {
		b.mu.Lock()
		if !b.notify.Load() {
			return
		}
		b.mu.Unlock()
		for b.notify.Load() {
			bo.Wait()
		}
	}
}

// Wait blocks until all participants have called Wait for the current phase.
// It returns true in exactly one participant per phase, the one whose arrival
// completed it.
func (b *Barrier) Wait() bool {
	b.enter()
	if b.initCount == 0 {
		b.mu.Unlock()
		panic("barrier: wait on uninitialized barrier")
	}
	b.remaining--
	if b.remaining == 0 {
		if b.initCount == 1 {
			b.remaining = b.initCount
			b.generation.Add(1)
			b.mu.Unlock()
			return true
		}
		// The last arriver has left the phase as far as draining goes.
		b.drained.Store(1)
		b.notify.Store(true)
		b.mu.Unlock()
		return true
	}
	initCount := b.initCount
	b.mu.Unlock()

	bo := spin.Backoff{Yield: true}
	for !b.notify.Load() {
		bo.Wait()
	}
	if b.drained.Add(1) == initCount {
		b.reset()
	}
	return false
}

// reset prepares the barrier for the next phase once every participant has
// left the current one.
func (b *Barrier) reset() {
	b.mu.Lock()
	b.remaining = b.initCount
	b.drained.Store(0)
	b.generation.Add(1)
	b.notify.Store(false)
	b.mu.Unlock()
}

// Generation returns the number of phases that have completed and drained.
func (b *Barrier) Generation() uint64 {
	return b.generation.Load()
}

// Destroy returns b to its uninitialized state. It panics if goroutines are
// in the middle of a phase.
func (b *Barrier) Destroy() {
	b.enter()
	defer b.mu.Unlock()
	if b.remaining != b.initCount {
		panic(fmt.Sprintf("barrier: destroy with %d of %d participants waiting", b.initCount-b.remaining, b.initCount))
	}
	b.remaining = 0
	b.initCount = 0
	b.drained.Store(0)
	b.generation.Store(0)
}
