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

// Package condvar provides a condition variable whose waiters sleep on a
// scheduler wait queue.
//
// Cond is the one primitive in this module that suspends its caller; every
// other primitive spins.
package condvar

import (
	"fmt"

	"kernsync.dev/kernsync/pkg/atomicbitops"
	"kernsync.dev/kernsync/pkg/errors/linuxerr"
	"kernsync.dev/kernsync/pkg/sched"
	"kernsync.dev/kernsync/pkg/spinlock"
	"kernsync.dev/kernsync/pkg/sync"
)

// WaitQueue is the scheduler queue that Cond sleeps on. *sched.WaitQueue
// implements it.
type WaitQueue interface {
	// Enqueue registers w. A wake that reaches w after Enqueue is not lost,
	// even if it happens before Sleep.
	Enqueue(w *sched.Waiter)

	// Sleep suspends the caller until w is woken.
	Sleep(w *sched.Waiter)

	// WakeOne wakes the oldest waiter, returning false if there was none.
	WakeOne() bool

	// WakeAll wakes every waiter and returns how many there were.
	WakeAll() int
}

// Cond is a condition variable. It must be initialized with Init before use.
//
// A goroutine counts as waiting from just before it releases the caller's
// mutex in Wait until just after it has been woken.
type Cond struct {
	// mu protects q and destroyed.
	mu spinlock.Spinlock

	q WaitQueue

	// waiters is the number of goroutines in Wait. It is only modified with
	// mu held.
	waiters atomicbitops.Int32

	destroyed bool
}

// Init associates c with q.
func (c *Cond) Init(q WaitQueue) {
	if q == nil {
		panic("condvar: init with a nil wait queue")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.q = q
	c.destroyed = false
}

// lock locks c.mu, panicking if c is not usable.
func (c *Cond) lock(op string) {
	c.mu.Lock()
	if c.q == nil || c.destroyed {
		state := "uninitialized"
		if c.destroyed {
			state = "destroyed"
		}
		c.mu.Unlock()
		panic(fmt.Sprintf("condvar: %s on %s condition variable", op, state))
	}
}

// Wait atomically unlocks m and suspends the calling goroutine. After a later
// Signal or Broadcast wakes it, Wait locks m before returning.
//
// The goroutine is on the wait queue before m is released, so a Signal sent
// by a goroutine that took m after Wait was called always reaches it. A
// Signal sent before Wait is not remembered.
func (c *Cond) Wait(m sync.Locker) {
	w := sched.NewWaiter()
	c.lock("wait")
	c.waiters.Add(1)
	q := c.q
	q.Enqueue(w)
	c.mu.Unlock()

	m.Unlock()
	q.Sleep(w)

	c.mu.Lock()
	c.waiters.Add(-1)
	c.mu.Unlock()
	m.Lock()
}

// Signal wakes one goroutine waiting on c, if there is any.
func (c *Cond) Signal() {
	c.lock("signal")
	defer c.mu.Unlock()
	c.q.WakeOne()
}

// Broadcast wakes all goroutines waiting on c. They contend for their mutex
// independently.
func (c *Cond) Broadcast() {
	c.lock("broadcast")
	defer c.mu.Unlock()
	c.q.WakeAll()
}

// Waiters returns the number of goroutines in Wait.
func (c *Cond) Waiters() int {
	return int(c.waiters.Load())
}

// Destroy tears c down. It returns EBUSY if goroutines are still waiting.
// Any use of c after a successful Destroy panics, until it is initialized
// again.
func (c *Cond) Destroy() error {
	c.lock("destroy")
	defer c.mu.Unlock()
	if c.waiters.Load() != 0 {
		return linuxerr.EBUSY
	}
	c.destroyed = true
	return nil
}
