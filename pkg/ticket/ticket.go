// Copyright 2019 The kernsync Authors.
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

// Package ticket provides a FIFO ticket spinlock.
//
// The lock state is a single 32-bit word holding two 16-bit counters: the next
// ticket to hand out in the high half and the ticket now being served in the
// low half. Both counters wrap at 65536, so at most 65535 goroutines may wait
// on one lock at a time.
package ticket

import (
	"fmt"

	"kernsync.dev/kernsync/pkg/atomicbitops"
	"kernsync.dev/kernsync/pkg/spin"
)

const (
	nextShift   = 16
	nextOne     = 1 << nextShift
	servingMask = 1<<nextShift - 1
)

// Lock is a ticket lock. Goroutines are admitted in the order in which they
// called Lock. The zero value is an unlocked lock.
type Lock struct {
	state atomicbitops.Uint32
}

func next(s uint32) uint16 {
	return uint16(s >> nextShift)
}

func serving(s uint32) uint16 {
	return uint16(s & servingMask)
}

// Lock takes a ticket and spins until it is served.
func (l *Lock) Lock() {
	s := l.state.Add(nextOne)
	mine := next(s) - 1
	if serving(s) == mine {
		return
	}
	var b spin.Backoff
	for serving(l.state.Load()) != mine {
		b.Wait()
	}
}

// TryLock takes a ticket only if it would be served immediately, and reports
// whether it did.
func (l *Lock) TryLock() bool {
	s := l.state.Load()
	if next(s) != serving(s) {
		return false
	}
	return l.state.CompareAndSwap(s, s+nextOne)
}

// Unlock serves the next ticket. Unlocking a lock that is not held panics.
//
// Only the low half of the word is advanced, so the increment never carries
// into the ticket counter.
func (l *Lock) Unlock() {
	for {
		s := l.state.Load()
		cur := serving(s)
		if cur == next(s) {
			panic("ticket: unlock of unlocked ticket lock")
		}
		if l.state.CompareAndSwap(s, s&^servingMask|uint32(cur+1)) {
			return
		}
	}
}

// IsLocked returns whether some ticket is being served.
func (l *Lock) IsLocked() bool {
	s := l.state.Load()
	return next(s) != serving(s)
}

// IsContended returns whether goroutines are queued behind the holder.
func (l *Lock) IsContended() bool {
	s := l.state.Load()
	return next(s)-serving(s) > 1
}

// Waiters returns the number of goroutines queued behind the holder.
func (l *Lock) Waiters() int {
	s := l.state.Load()
	if d := next(s) - serving(s); d > 1 {
		return int(d) - 1
	}
	return 0
}

// String implements fmt.Stringer.
func (l *Lock) String() string {
	s := l.state.Load()
	return fmt.Sprintf("ticket{next: %d, serving: %d}", next(s), serving(s))
}
