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

// Package mcs provides the Mellor-Crummey and Scott queue lock.
//
// Every waiter brings its own queue node and spins only on that node, so a
// contended acquire or release moves a constant number of cache lines
// between cores regardless of how many goroutines are waiting. Waiters are
// admitted in arrival order.
//
// A node is typically a local variable of the function holding the lock:
//
//	var n mcs.Node
//	l.Lock(&n)
//	defer l.Unlock(&n)
package mcs

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
	"kernsync.dev/kernsync/pkg/atomicbitops"
	"kernsync.dev/kernsync/pkg/spin"
)

// Node is a waiter's entry in the lock queue. A node belongs to one goroutine
// from Lock (or a successful TryLock) until the matching Unlock, and must not
// be used with any other lock in the meantime.
type Node struct {
	// next is the successor in the queue, set by the successor itself.
	next atomic.Pointer[Node]

	// granted is set by the predecessor when it hands the lock over.
	granted atomicbitops.Bool

	// inUse is set while the node is queued or holds the lock.
	inUse atomicbitops.Bool

	// Keep the spin target of one waiter off its neighbours' lines.
	_ cpu.CacheLinePad
}

// Lock is an MCS lock. The zero value is an unlocked lock.
type Lock struct {
	// tail is the last node in the queue, nil if the lock is free.
	tail atomic.Pointer[Node]
}

func (n *Node) claim() {
	if n.inUse.Swap(true) {
		panic("mcs: lock with a node that is already in use")
	}
	n.next.Store(nil)
	n.granted.Store(false)
}

// Lock appends n to the queue and spins on it until the predecessor hands the
// lock over.
func (l *Lock) Lock(n *Node) {
	n.claim()
	prev := l.tail.Swap(n)
	if prev == nil {
		return
	}
	prev.next.Store(n)

	var b spin.Backoff
	for !n.granted.Load() {
		b.Wait()
	}
}

// TryLock acquires l with n only if l is free, and reports whether it did.
func (l *Lock) TryLock(n *Node) bool {
	n.claim()
	if l.tail.CompareAndSwap(nil, n) {
		return true
	}
	n.inUse.Store(false)
	return false
}

// Unlock releases l, which must be held through n, and passes it to the next
// queued waiter if there is one.
func (l *Lock) Unlock(n *Node) {
	if !n.inUse.Load() || l.tail.Load() == nil {
		panic("mcs: unlock with a node that does not hold the lock")
	}
	next := n.next.Load()
	if next == nil {
		if l.tail.CompareAndSwap(n, nil) {
			n.inUse.Store(false)
			return
		}
		// A successor has swapped itself into the tail but has not linked
		// itself to n yet.
		var b spin.Backoff
		for next = n.next.Load(); next == nil; next = n.next.Load() {
			b.Wait()
		}
	}
	n.inUse.Store(false)
	next.granted.Store(true)
}

// IsLocked returns whether l is held.
func (l *Lock) IsLocked() bool {
	return l.tail.Load() != nil
}

// Locker binds a lock to a node owned by one goroutine, giving a
// sync.Locker. A Locker must not be shared between goroutines.
type Locker struct {
	l *Lock
	n Node
}

// NewLocker returns a Locker for l with its own node.
func NewLocker(l *Lock) *Locker {
	return &Locker{l: l}
}

// Lock implements sync.Locker.Lock.
func (k *Locker) Lock() {
	k.l.Lock(&k.n)
}

// TryLock is Lock.TryLock with the bound node.
func (k *Locker) TryLock() bool {
	return k.l.TryLock(&k.n)
}

// Unlock implements sync.Locker.Unlock.
func (k *Locker) Unlock() {
	k.l.Unlock(&k.n)
}
