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

package spinlock

import (
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
	"kernsync.dev/kernsync/pkg/atomicbitops"
	"kernsync.dev/kernsync/pkg/irq"
	"kernsync.dev/kernsync/pkg/locktest"
	"kernsync.dev/kernsync/pkg/sync"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newSpinlock() *Spinlock {
	return new(Spinlock)
}

func TestBasicLock(t *testing.T) {
	var l Spinlock
	l.Lock()
	if !l.IsLocked() {
		t.Fatalf("IsLocked false while held")
	}

	// Try blocking lock the spinlock from a different goroutine. This must
	// not succeed until the lock is released.
	locktest.Blocks(t, &l, &l)

	// Make sure we can lock and unlock again.
	l.Lock()
	l.Unlock()
	if l.IsLocked() {
		t.Fatalf("IsLocked true after Unlock")
	}
}

func TestTryLock(t *testing.T) {
	var l Spinlock

	// Try to lock. It should succeed.
	if !l.TryLock() {
		t.Fatalf("TryLock failed on unlocked spinlock")
	}

	// Try to lock again, it should now fail.
	if l.TryLock() {
		t.Fatalf("TryLock succeeded on locked spinlock")
	}

	locktest.Blocks(t, &l, &l)
}

func TestMutualExclusion(t *testing.T) {
	locktest.MutualExclusionSweep(t, locktest.Shared(newSpinlock), 10000)
}

func TestMutualExclusionWithTryLock(t *testing.T) {
	locktest.MutualExclusionWithTryLock(t, func() locktest.TryLocker { return newSpinlock() }, 8, 10000)
}

// TestWaiterKeepsProcessor checks that a goroutine spinning in Lock does not
// hand its processor back to the scheduler. With a single P, the holder can
// only run again once the spinning waiter is preempted.
func TestWaiterKeepsProcessor(t *testing.T) {
	if strings.Contains(os.Getenv("GODEBUG"), "asyncpreemptoff=1") {
		t.Skip("the waiter is only descheduled by asynchronous preemption")
	}
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))

	var (
		l       Spinlock
		started atomicbitops.Bool
		start   time.Time
	)
	l.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		start = time.Now()
		started.Store(true)
		l.Lock()
		l.Unlock()
	}()

	for !started.Load() {
		runtime.Gosched()
	}
	// A waiter that yielded would let us back in within microseconds.
	if d := time.Since(start); d < time.Millisecond {
		t.Errorf("holder ran again %v after the waiter started spinning", d)
	}
	l.Unlock()

	select {
	case <-done:
	case <-time.After(locktest.Timeout):
		t.Fatalf("waiter did not acquire the released lock")
	}
}

func TestUnlockOfUnlocked(t *testing.T) {
	var l Spinlock
	locktest.MustPanic(t, "unlock of unlocked spinlock", l.Unlock)

	l.Lock()
	l.Unlock()
	locktest.MustPanic(t, "unlock of unlocked spinlock", l.Unlock)
}

func TestIRQRoundTrip(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		c := irq.NewCPU(0)
		if !enabled {
			c.Disable()
		}

		var l Spinlock
		tok := l.LockIRQSave(c)
		if c.Enabled() {
			t.Errorf("initially enabled=%t: interrupts enabled inside the critical section", enabled)
		}
		if !l.IsLocked() {
			t.Errorf("initially enabled=%t: lock not held after LockIRQSave", enabled)
		}
		l.UnlockIRQRestore(tok)
		if got := c.Enabled(); got != enabled {
			t.Errorf("initially enabled=%t: got enabled=%t after UnlockIRQRestore", enabled, got)
		}
	}
}

func TestIRQHandlerDeferred(t *testing.T) {
	c := irq.NewCPU(0)
	var l Spinlock
	acquired := false
	handler := func() {
		// A handler on the same core takes the same lock. If it ran inside
		// the critical section it would spin forever.
		tok := l.LockIRQSave(c)
		acquired = true
		l.UnlockIRQRestore(tok)
	}

	tok := l.LockIRQSave(c)
	c.Interrupt(handler)
	if acquired {
		t.Fatalf("handler ran inside an irq-safe critical section")
	}
	l.UnlockIRQRestore(tok)
	if !acquired {
		t.Fatalf("handler did not run after UnlockIRQRestore")
	}
}

func TestIRQHandlerWithPlainLock(t *testing.T) {
	c := irq.NewCPU(0)
	var l Spinlock
	l.Lock()
	var got bool
	// With interrupts left enabled, the handler runs inside the critical
	// section and finds the lock taken.
	c.Interrupt(func() { got = l.TryLock() })
	l.Unlock()
	if got {
		t.Fatalf("handler acquired a lock held by the code it interrupted")
	}
}

func TestDoubleRestorePanics(t *testing.T) {
	c := irq.NewCPU(0)
	var l Spinlock
	tok := l.LockIRQSave(c)
	l.UnlockIRQRestore(tok)
	l.Lock()
	locktest.MustPanic(t, "already has them enabled", func() { l.UnlockIRQRestore(tok) })
}

func BenchmarkSpinlock(b *testing.B) {
	locktest.Benchmark(b, locktest.Shared(newSpinlock))
}

func BenchmarkSyncMutex(b *testing.B) {
	locktest.Benchmark(b, locktest.Shared(func() *sync.Mutex { return new(sync.Mutex) }))
}
