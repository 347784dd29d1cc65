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

// Package sched provides the wait queue through which threads are suspended
// and woken by the scheduler.
//
// A thread that wants to sleep first registers a Waiter with Enqueue, then
// gives up any locks protecting the condition it waits on, and finally calls
// Sleep. A wake that happens between Enqueue and Sleep is remembered by the
// Waiter, so the thread cannot miss it:
//
//	w := sched.NewWaiter()
//	q.Enqueue(w)
//	mu.Unlock()
//	q.Sleep(w)
//	mu.Lock()
package sched

import (
	"kernsync.dev/kernsync/pkg/ilist"
	"kernsync.dev/kernsync/pkg/sync"
)

// Waiter is a thread's entry in a WaitQueue.
type Waiter struct {
	ilist.Entry[*Waiter]

	// ch receives the wakeup. It is buffered so that a wake does not depend
	// on the sleeper having reached Sleep.
	ch chan struct{}

	// queued is whether the waiter is linked into a queue. Protected by the
	// queue's mutex.
	queued bool
}

// NewWaiter returns a Waiter that is not in any queue.
func NewWaiter() *Waiter {
	return &Waiter{ch: make(chan struct{}, 1)}
}

// notify delivers the wakeup.
func (w *Waiter) notify() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// WaitQueue is a FIFO queue of sleeping threads. The zero value is an empty
// queue ready to use.
type WaitQueue struct {
	// mu protects list.
	mu   sync.Mutex
	list ilist.List[*Waiter]
}

// Enqueue appends w to the queue. Enqueueing a waiter that is already in a
// queue panics.
func (q *WaitQueue) Enqueue(w *Waiter) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if w.queued {
		panic("sched: enqueue of a waiter that is already queued")
	}
	w.queued = true
	q.list.PushBack(w)
}

// Sleep suspends the caller until w is woken. w must have been enqueued on q.
func (q *WaitQueue) Sleep(w *Waiter) {
	<-w.ch
}

// WakeOne wakes the waiter at the head of the queue, returning false if the
// queue was empty.
func (q *WaitQueue) WakeOne() bool {
	q.mu.Lock()
	w := q.list.PopFront()
	if w == nil {
		q.mu.Unlock()
		return false
	}
	w.queued = false
	q.mu.Unlock()

	w.notify()
	return true
}

// WakeAll wakes every queued waiter and returns how many there were.
func (q *WaitQueue) WakeAll() int {
	q.mu.Lock()
	var woken []*Waiter
	for w := q.list.PopFront(); w != nil; w = q.list.PopFront() {
		w.queued = false
		woken = append(woken, w)
	}
	q.mu.Unlock()

	for _, w := range woken {
		w.notify()
	}
	return len(woken)
}

// Len returns the number of queued waiters.
func (q *WaitQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.list.Len()
}
