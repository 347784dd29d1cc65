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

// Package spin paces busy-wait loops.
//
// A spinning primitive calls Backoff.Wait once per failed check of the
// condition it waits on. By default every call spins the processor with the
// pause hint and the waiter keeps its processor for the whole wait. Waits that
// may outlast a scheduling quantum, such as a barrier rendezvous, set
// Backoff.Yield so that later calls issue the scheduler yield hint instead. A
// goroutine that yields stays runnable, so neither mode ever suspends the
// caller.
package spin

import (
	"time"

	"kernsync.dev/kernsync/pkg/log"
	"kernsync.dev/kernsync/pkg/sync"
)

const (
	// activeSpin is the number of Wait calls that spin the processor before
	// a yielding Backoff falls back to the yield hint.
	activeSpin = 4

	// activeSpinCount is the number of pause hints issued by one active spin.
	activeSpinCount = 30

	// checkInterval is the number of Wait calls between two lockup checks.
	// It must be a power of two.
	checkInterval = 1 << 12
)

// LockupThreshold is how long a single wait may spin before a lockup is
// reported.
var LockupThreshold = 5 * time.Second

// lockupLog reports suspected lockups. It is rate limited because every
// spinner on a wedged lock would otherwise report at once.
var lockupLog = log.BasicRateLimitedLogger(30 * time.Second)

// goyield is replaced in tests.
var goyield = sync.Goyield

// Backoff is the state of one busy wait. The zero value is ready to use; a
// Backoff must not be shared between goroutines.
type Backoff struct {
	// Yield makes Wait issue the scheduler yield hint once the active spin
	// is exhausted. Lock acquisition paths leave it unset: a waiter for a
	// spinlock never gives up its processor.
	Yield bool

	// spins is the number of Wait calls since the last Reset.
	spins uint64

	// start is the time of the first lockup check, zero until then.
	start time.Time

	// warned is set once a lockup has been reported for this wait.
	warned bool
}

// Wait pauses the caller once.
func (b *Backoff) Wait() {
	if b.Yield && b.spins >= activeSpin {
		goyield()
	} else {
		for i := 0; i < activeSpinCount; i++ {
			sync.Pause()
		}
	}
	b.spins++
	if b.spins&(checkInterval-1) == 0 {
		b.check()
	}
}

// Spins returns the number of Wait calls since the last Reset.
func (b *Backoff) Spins() uint64 {
	return b.spins
}

// Reset prepares b for a new wait. The mode set by Yield is kept.
func (b *Backoff) Reset() {
	*b = Backoff{Yield: b.Yield}
}

func (b *Backoff) check() {
	now := time.Now()
	if b.start.IsZero() {
		b.start = now
		return
	}
	if b.warned {
		return
	}
	if d := now.Sub(b.start); d >= LockupThreshold {
		b.warned = true
		lockupLog.Warningf("lockup suspected: spinning for %v (%d spins)", d, b.spins)
	}
}

// Until spins until cond returns true, yielding once the active spin is
// exhausted.
func Until(cond func() bool) {
	b := Backoff{Yield: true}
	for !cond() {
		b.Wait()
	}
}
