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

package condvar

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"kernsync.dev/kernsync/pkg/errors/linuxerr"
	"kernsync.dev/kernsync/pkg/locktest"
	"kernsync.dev/kernsync/pkg/sched"
	"kernsync.dev/kernsync/pkg/spinlock"
	"kernsync.dev/kernsync/pkg/sync"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newCond() *Cond {
	c := new(Cond)
	c.Init(new(sched.WaitQueue))
	return c
}

// waitForWaiters spins until n goroutines are in c.Wait.
func waitForWaiters(t *testing.T, c *Cond, n int) {
	t.Helper()
	deadline := time.Now().Add(locktest.Timeout)
	for c.Waiters() != n {
		if time.Now().After(deadline) {
			t.Fatalf("got %d waiters, want %d", c.Waiters(), n)
		}
		sync.Goyield()
	}
}

// TestNoLostWakeup has a goroutine wait while another takes the mutex and
// signals. Because the waiter holds the mutex until it is queued, the signal
// always finds it.
func TestNoLostWakeup(t *testing.T) {
	c := newCond()
	var m spinlock.Spinlock
	for i := 0; i < 1000; i++ {
		started := make(chan struct{})
		done := make(chan struct{})
		go func() {
			m.Lock()
			close(started)
			c.Wait(&m)
			m.Unlock()
			close(done)
		}()

		<-started
		m.Lock()
		c.Signal()
		m.Unlock()

		select {
		case <-done:
		case <-time.After(locktest.Timeout):
			t.Fatalf("iteration %d: signal after Wait was lost", i)
		}
	}
}

func TestSignalBeforeWait(t *testing.T) {
	c := newCond()
	var m sync.Mutex

	// Nobody is waiting, so this signal is not remembered.
	c.Signal()

	done := make(chan struct{})
	go func() {
		m.Lock()
		c.Wait(&m)
		m.Unlock()
		close(done)
	}()
	waitForWaiters(t, c, 1)

	select {
	case <-done:
		t.Fatalf("Wait observed a signal sent before it was called")
	case <-time.After(100 * time.Millisecond):
	}

	m.Lock()
	c.Signal()
	m.Unlock()
	select {
	case <-done:
	case <-time.After(locktest.Timeout):
		t.Fatalf("Signal did not wake the waiter")
	}
}

func TestSignalWakesOne(t *testing.T) {
	const n = 3
	c := newCond()
	var m sync.Mutex
	woken := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			m.Lock()
			c.Wait(&m)
			m.Unlock()
			woken <- id
		}(i)
		// Queue the goroutines in a known order.
		waitForWaiters(t, c, i+1)
	}

	c.Signal()
	var got []int
	select {
	case id := <-woken:
		got = append(got, id)
	case <-time.After(locktest.Timeout):
		t.Fatalf("Signal woke nobody")
	}
	select {
	case id := <-woken:
		t.Fatalf("Signal woke a second goroutine %d", id)
	case <-time.After(100 * time.Millisecond):
	}
	waitForWaiters(t, c, n-1)

	c.Broadcast()
	locktest.Wait(t, &wg, "waiters")
	close(woken)
	for id := range woken {
		got = append(got, id)
	}

	if got[0] != 0 {
		t.Errorf("Signal woke goroutine %d, want the oldest waiter 0", got[0])
	}
	if len(got) != n {
		t.Errorf("got %d wakeups, want %d: %v", len(got), n, got)
	}
	if got := c.Waiters(); got != 0 {
		t.Errorf("Waiters after Broadcast: got %d, want 0", got)
	}
}

func TestDestroy(t *testing.T) {
	c := newCond()
	var m sync.Mutex
	done := make(chan struct{})
	go func() {
		m.Lock()
		c.Wait(&m)
		m.Unlock()
		close(done)
	}()
	waitForWaiters(t, c, 1)

	if err := c.Destroy(); !linuxerr.Equals(linuxerr.EBUSY, err) {
		t.Fatalf("Destroy with a waiter: got %v, want EBUSY", err)
	}

	c.Signal()
	<-done
	if err := c.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	locktest.MustPanic(t, "signal on destroyed condition variable", c.Signal)
	locktest.MustPanic(t, "wait on destroyed condition variable", func() { c.Wait(&m) })
}

func TestUninitialized(t *testing.T) {
	var c Cond
	locktest.MustPanic(t, "broadcast on uninitialized condition variable", c.Broadcast)
}

// TestBoundedQueue runs producers and consumers over a bounded queue guarded
// by a spinlock and two condition variables, and checks that every item is
// consumed exactly once.
func TestBoundedQueue(t *testing.T) {
	const (
		producers = 4
		consumers = 4
		perProd   = 500
		capacity  = 8
	)
	var (
		mu       spinlock.Spinlock
		notFull  = newCond()
		notEmpty = newCond()
		queue    []int
		closed   bool
		seen     = make([]int, producers*perProd)
	)

	var prod, cons sync.WaitGroup
	for p := 0; p < producers; p++ {
		prod.Add(1)
		go func(p int) {
			defer prod.Done()
			for i := 0; i < perProd; i++ {
				mu.Lock()
				for len(queue) == capacity {
					notFull.Wait(&mu)
				}
				queue = append(queue, p*perProd+i)
				notEmpty.Signal()
				mu.Unlock()
			}
		}(p)
	}
	for i := 0; i < consumers; i++ {
		cons.Add(1)
		go func() {
			defer cons.Done()
			for {
				mu.Lock()
				for len(queue) == 0 && !closed {
					notEmpty.Wait(&mu)
				}
				if len(queue) == 0 {
					mu.Unlock()
					return
				}
				item := queue[0]
				queue = queue[1:]
				seen[item]++
				notFull.Signal()
				mu.Unlock()
			}
		}()
	}

	locktest.Wait(t, &prod, "producers")
	mu.Lock()
	closed = true
	notEmpty.Broadcast()
	mu.Unlock()
	locktest.Wait(t, &cons, "consumers")

	want := make([]int, len(seen))
	for i := range want {
		want[i] = 1
	}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("items not consumed exactly once (-want +got):\n%s", diff)
	}
}
