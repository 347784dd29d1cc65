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

// Package rwlock provides a reader-preferred spinning reader/writer lock.
//
// Readers only hold the internal spinlock long enough to adjust the reader
// count. A writer holds the spinlock for its whole critical section, and only
// takes it when no readers remain. A steady stream of readers can therefore
// starve writers indefinitely.
package rwlock

import (
	"kernsync.dev/kernsync/pkg/atomicbitops"
	"kernsync.dev/kernsync/pkg/irq"
	"kernsync.dev/kernsync/pkg/spinlock"
	"kernsync.dev/kernsync/pkg/sync"
)

// RWLock is a reader/writer spinlock. The zero value is an unlocked lock.
type RWLock struct {
	// mu is held briefly by readers and for the whole critical section by a
	// writer.
	mu spinlock.Spinlock

	// readers is the number of readers holding the lock. It is only
	// modified with mu held.
	readers atomicbitops.Int32

	// writer is set while a writer holds mu. Readers take mu too, so mu
	// being locked does not mean the lock is write held.
	writer atomicbitops.Bool
}

// RLock locks rw for reading.
func (rw *RWLock) RLock() {
	rw.mu.Lock()
	rw.readers.Add(1)
	rw.mu.Unlock()
}

// TryRLock locks rw for reading if the internal lock is immediately
// available, and reports whether it did. It may fail while another reader is
// adjusting the count.
func (rw *RWLock) TryRLock() bool {
	if !rw.mu.TryLock() {
		return false
	}
	rw.readers.Add(1)
	rw.mu.Unlock()
	return true
}

// RUnlock undoes a single RLock call. It panics if rw has no readers.
func (rw *RWLock) RUnlock() {
	rw.mu.Lock()
	if rw.readers.Load() == 0 {
		rw.mu.Unlock()
		panic("rwlock: read unlock of unlocked rwlock")
	}
	rw.readers.Add(-1)
	rw.mu.Unlock()
}

// Lock locks rw for writing. It spins until no readers remain, yielding the
// processor between attempts.
func (rw *RWLock) Lock() {
	for {
		rw.mu.Lock()
		if rw.readers.Load() == 0 {
			rw.writer.Store(true)
			return
		}
		rw.mu.Unlock()
		for rw.readers.Load() != 0 {
			sync.Goyield()
		}
	}
}

// TryLock locks rw for writing if it is free, and reports whether it did.
func (rw *RWLock) TryLock() bool {
	if !rw.mu.TryLock() {
		return false
	}
	if rw.readers.Load() != 0 {
		rw.mu.Unlock()
		return false
	}
	rw.writer.Store(true)
	return true
}

// Unlock unlocks rw for writing. It panics if rw is not locked for writing.
func (rw *RWLock) Unlock() {
	if !rw.writer.Swap(false) {
		panic("rwlock: unlock of unlocked rwlock")
	}
	rw.mu.Unlock()
}

// LockIRQSave disables interrupts on c and then locks rw for writing. The
// returned token must be passed to UnlockIRQRestore.
func (rw *RWLock) LockIRQSave(c irq.Controller) irq.Token {
	tok := irq.Save(c)
	rw.Lock()
	return tok
}

// UnlockIRQRestore unlocks rw for writing and then restores the interrupt
// state saved by LockIRQSave.
func (rw *RWLock) UnlockIRQRestore(tok irq.Token) {
	rw.Unlock()
	tok.Restore()
}

// Readers returns the number of readers holding rw.
func (rw *RWLock) Readers() int {
	return int(rw.readers.Load())
}

// RLocker returns a sync.Locker that locks rw for reading.
func (rw *RWLock) RLocker() sync.Locker {
	return (*rlocker)(rw)
}

type rlocker RWLock

func (r *rlocker) Lock()   { (*RWLock)(r).RLock() }
func (r *rlocker) Unlock() { (*RWLock)(r).RUnlock() }
