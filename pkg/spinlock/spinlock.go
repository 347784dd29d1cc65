// Copyright 2018 The kernsync Authors.
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

// Package spinlock provides a test-and-test-and-set spinlock and its
// interrupt-safe variant.
//
// A spinlock suits short critical sections. Every contending core writes the
// same word on each acquire attempt, so it degrades under heavy contention;
// see packages ticket and mcs for fair and scalable alternatives.
package spinlock

import (
	"kernsync.dev/kernsync/pkg/atomicbitops"
	"kernsync.dev/kernsync/pkg/irq"
	"kernsync.dev/kernsync/pkg/spin"
)

// Spinlock is a mutual exclusion lock whose waiters busy-wait. The zero value
// is an unlocked spinlock.
type Spinlock struct {
	locked atomicbitops.Uint32
}

// Lock locks l. If the lock is already in use, the calling goroutine spins
// until the lock is available.
func (l *Spinlock) Lock() {
	if l.locked.Swap(1) == 0 {
		return
	}
	l.lockSlow()
}

func (l *Spinlock) lockSlow() {
	var b spin.Backoff
	for {
		// Wait with plain loads until the lock looks free so that waiters
		// do not keep stealing the cache line from the holder.
		for l.locked.Load() != 0 {
			b.Wait()
		}
		if l.locked.Swap(1) == 0 {
			return
		}
	}
}

// TryLock tries to lock l and reports whether it succeeded.
func (l *Spinlock) TryLock() bool {
	return l.locked.Load() == 0 && l.locked.Swap(1) == 0
}

// Unlock unlocks l. Unlocking a spinlock that is not locked panics.
//
// As with Mutex, a locked Spinlock is not associated with a particular
// goroutine.
func (l *Spinlock) Unlock() {
	if l.locked.Swap(0) == 0 {
		panic("spinlock: unlock of unlocked spinlock")
	}
}

// LockIRQSave disables interrupts on c and then locks l. The returned token
// must be passed to UnlockIRQRestore.
//
// A lock that may be taken from an interrupt handler must always be taken
// this way, otherwise the handler can spin forever on a lock held by the
// code it interrupted.
func (l *Spinlock) LockIRQSave(c irq.Controller) irq.Token {
	tok := irq.Save(c)
	l.Lock()
	return tok
}

// UnlockIRQRestore unlocks l and then restores the interrupt state saved by
// LockIRQSave.
func (l *Spinlock) UnlockIRQRestore(tok irq.Token) {
	l.Unlock()
	tok.Restore()
}

// IsLocked returns whether l is held. The result may be stale by the time it
// is used.
func (l *Spinlock) IsLocked() bool {
	return l.locked.Load() != 0
}
