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

package barrier

import (
	"fmt"

	"golang.org/x/sys/cpu"
	"kernsync.dev/kernsync/pkg/atomicbitops"
	"kernsync.dev/kernsync/pkg/errors/linuxerr"
	"kernsync.dev/kernsync/pkg/spin"
	"kernsync.dev/kernsync/pkg/spinlock"
)

// Phase numbers the rendezvous of a CoreBarrier, starting at zero.
type Phase uint64

// CoreBarrier is a barrier for the cores of a machine.
//
// Unlike Barrier, the set of participants is dynamic: a core takes part after
// Raise and stops after Lower. A phase completes when every raised core has
// arrived. Arrival and waiting are split, so a core may do unrelated work
// between Arrive and Wait:
//
//	p := b.Arrive()
//	... work that does not depend on the other cores ...
//	b.Wait(p)
//
// A core must not Lower between its Arrive and the end of that phase.
type CoreBarrier struct {
	// mu protects the fields below it.
	mu spinlock.Spinlock

	// ncpu is the maximum number of raised cores.
	ncpu int

	// raised is the number of participating cores.
	raised int

	// arrived is the number of raised cores that have arrived in the
	// current phase.
	arrived int

	// closed is set by Close.
	closed bool

	_ cpu.CacheLinePad

	// phase is the current phase. Waiters spin on it.
	phase atomicbitops.Uint64

	_ cpu.CacheLinePad
}

// NewCoreBarrier returns a CoreBarrier for up to ncpu cores, none of them
// raised. It returns EINVAL if ncpu is less than one.
func NewCoreBarrier(ncpu int) (*CoreBarrier, error) {
	if ncpu < 1 {
		return nil, linuxerr.EINVAL
	}
	return &CoreBarrier{ncpu: ncpu}, nil
}

// lock locks b.mu, panicking if b has been closed.
func (b *CoreBarrier) lock(op string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		panic(fmt.Sprintf("barrier: %s on closed core barrier", op))
	}
}

// advance completes the current phase. b.mu must be held.
func (b *CoreBarrier) advance() {
	b.arrived = 0
	b.phase.Add(1)
}

// Raise adds the calling core to the participants. Raising more than ncpu
// cores panics.
func (b *CoreBarrier) Raise() {
	b.lock("raise")
	defer b.mu.Unlock()
	if b.raised == b.ncpu {
		panic(fmt.Sprintf("barrier: raise of more than %d cores", b.ncpu))
	}
	b.raised++
}

// Lower removes the calling core from the participants. If every remaining
// raised core has already arrived, the current phase completes.
func (b *CoreBarrier) Lower() {
	b.lock("lower")
	defer b.mu.Unlock()
	if b.raised == 0 {
		panic("barrier: lower with no raised cores")
	}
	b.raised--
	if b.arrived > 0 && b.arrived >= b.raised {
		b.advance()
	}
}

// arrive records an arrival and returns the phase arrived in and whether this
// arrival completed it.
func (b *CoreBarrier) arrive() (Phase, bool) {
	b.lock("arrive")
	defer b.mu.Unlock()
	if b.arrived == b.raised {
		panic(fmt.Sprintf("barrier: arrival beyond the %d raised cores", b.raised))
	}
	p := Phase(b.phase.Load())
	b.arrived++
	if b.arrived == b.raised {
		b.advance()
		return p, true
	}
	return p, false
}

// Arrive records the calling core's arrival in the current phase and returns
// that phase. The last raised core to arrive completes the phase.
func (b *CoreBarrier) Arrive() Phase {
	p, _ := b.arrive()
	return p
}

// Wait spins until phase p has completed.
func (b *CoreBarrier) Wait(p Phase) {
	bo := spin.Backoff{Yield: true}
	for Phase(b.phase.Load()) == p {
		bo.Wait()
	}
}

// ArriveAndWait arrives and waits for the phase to complete. It returns true
// in the core whose arrival completed the phase.
func (b *CoreBarrier) ArriveAndWait() bool {
	p, last := b.arrive()
	if !last {
		b.Wait(p)
	}
	return last
}

// Participants returns the number of raised cores.
func (b *CoreBarrier) Participants() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.raised
}

// Phase returns the current phase.
func (b *CoreBarrier) Phase() Phase {
	return Phase(b.phase.Load())
}

// Close tears b down. It returns EBUSY while cores remain raised. Once Close
// has succeeded, Raise, Lower, Arrive and Close panic.
func (b *CoreBarrier) Close() error {
	b.lock("close")
	defer b.mu.Unlock()
	if b.raised != 0 {
		return linuxerr.EBUSY
	}
	b.closed = true
	return nil
}
