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

// Package locktest contains tests shared by the lock implementations.
package locktest

import (
	"fmt"
	"runtime"
	"strings"
	"testing"
	"time"

	"kernsync.dev/kernsync/pkg/atomicbitops"
	"kernsync.dev/kernsync/pkg/sync"
)

// Timeout bounds every wait in this package.
const Timeout = 30 * time.Second

// Factory creates a lock and returns the function through which each worker
// obtains its handle on it. Locks whose callers need private state, such as a
// queue node, return a distinct handle per call.
type Factory func() (handle func() sync.Locker)

// TryLocker is a lock with a non-blocking acquire.
type TryLocker interface {
	sync.Locker
	TryLock() bool
}

// Shared returns a Factory for locks that every worker uses directly.
func Shared[L sync.Locker](newLock func() L) Factory {
	return func() func() sync.Locker {
		l := newLock()
		return func() sync.Locker { return l }
	}
}

// Procs caps n at GOMAXPROCS. A waiter on a spinlock never yields, so with
// more spinning goroutines than processors every handoff waits for a
// preemption.
func Procs(n int) int {
	return max(1, min(n, runtime.GOMAXPROCS(0)))
}

// Wait waits for wg, failing t if it takes longer than Timeout.
func Wait(t testing.TB, wg *sync.WaitGroup, what string) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(Timeout):
		t.Fatalf("%s did not complete within %v", what, Timeout)
	}
}

// MutualExclusion runs gr goroutines that each increment a counter iters
// times inside the critical section. If the final count is not gr*iters,
// goroutines ran concurrently within the critical section.
func MutualExclusion(t *testing.T, f Factory, gr, iters int) {
	t.Helper()
	handle := f()
	v := 0
	var wg sync.WaitGroup
	for i := 0; i < gr; i++ {
		wg.Add(1)
		l := handle()
		go func() {
			defer wg.Done()
			for j := 0; j < iters; j++ {
				l.Lock()
				v++
				l.Unlock()
			}
		}()
	}
	Wait(t, &wg, "workers")

	if v != gr*iters {
		t.Fatalf("Bad count: got %v, want %v", v, gr*iters)
	}
}

// MutualExclusionSweep runs MutualExclusion for 1, 2, 4 and 8 goroutines,
// skipping counts above GOMAXPROCS.
func MutualExclusionSweep(t *testing.T, f Factory, iters int) {
	for _, gr := range []int{1, 2, 4, 8} {
		t.Run(fmt.Sprintf("%d", gr), func(t *testing.T) {
			if gr != Procs(gr) {
				t.Skipf("%d goroutines exceed GOMAXPROCS", gr)
			}
			MutualExclusion(t, f, gr, iters)
		})
	}
}

// MutualExclusionWithTryLock is MutualExclusion with the addition of
// goroutines that only increment the count if TryLock succeeds. Each of the gr
// pairs takes two goroutines, so gr is capped at half of GOMAXPROCS.
func MutualExclusionWithTryLock(t *testing.T, newLock func() TryLocker, gr, iters int) {
	t.Helper()
	gr = max(1, min(gr, runtime.GOMAXPROCS(0)/2))
	m := newLock()
	total := int32(gr * iters)
	var tryTotal atomicbitops.Int32
	var v int32
	var wg sync.WaitGroup
	for i := 0; i < gr; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < iters; j++ {
				m.Lock()
				v++
				m.Unlock()
			}
		}()
		go func() {
			defer wg.Done()
			local := int32(0)
			for j := 0; j < iters; j++ {
				if m.TryLock() {
					v++
					m.Unlock()
					local++
				}
			}
			tryTotal.Add(local)
		}()
	}
	Wait(t, &wg, "workers")

	t.Logf("tryTotal = %d", tryTotal.Load())
	total += tryTotal.Load()

	if v != total {
		t.Fatalf("Bad count: got %v, want %v", v, total)
	}
}

// Blocks checks that other.Lock blocks while the caller holds the lock through
// held, and succeeds once held is released.
func Blocks(t *testing.T, held, other sync.Locker) {
	t.Helper()
	ch := make(chan struct{}, 1)
	go func() {
		other.Lock()
		ch <- struct{}{}
		other.Unlock()
	}()

	select {
	case <-ch:
		t.Fatalf("Lock succeeded on locked lock")
	case <-time.After(100 * time.Millisecond):
	}

	// Unlock and make sure that the goroutine waiting on Lock() unblocks
	// and succeeds.
	held.Unlock()

	select {
	case <-ch:
	case <-time.After(Timeout):
		t.Fatalf("Lock failed to acquire unlocked lock")
	}
}

// MustPanic fails t unless f panics with a message containing substr.
func MustPanic(t testing.TB, substr string, f func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected a panic containing %q", substr)
		}
		if msg := fmt.Sprint(r); !strings.Contains(msg, substr) {
			t.Fatalf("panic %q does not contain %q", msg, substr)
		}
	}()
	f()
}

// Benchmark measures uncontended and contended Lock/Unlock pairs.
//
// The number of goroutines is variable, with the maximum value depending on
// GOMAXPROCS, and care is taken to ensure that all goroutines participating
// in the benchmark have been created before the benchmark begins.
func Benchmark(b *testing.B, f Factory) {
	for n, max := 1, 4*runtime.GOMAXPROCS(0); n > 0 && n <= max; n *= 2 {
		b.Run(fmt.Sprintf("%d", n), func(b *testing.B) {
			handle := f()

			var ready sync.WaitGroup
			begin := make(chan struct{})
			var end sync.WaitGroup
			for i := 0; i < n; i++ {
				ready.Add(1)
				end.Add(1)
				l := handle()
				go func() {
					ready.Done()
					<-begin
					for j := 0; j < b.N; j++ {
						l.Lock()
						l.Unlock()
					}
					end.Done()
				}()
			}

			ready.Wait()
			b.ResetTimer()
			close(begin)
			end.Wait()
		})
	}
}
