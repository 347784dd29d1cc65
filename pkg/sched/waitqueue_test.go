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

package sched

import (
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWakeBeforeSleep(t *testing.T) {
	var q WaitQueue
	w := NewWaiter()
	q.Enqueue(w)
	if !q.WakeOne() {
		t.Fatalf("WakeOne on a queue with one waiter returned false")
	}

	done := make(chan struct{})
	go func() {
		q.Sleep(w)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("wake delivered before Sleep was lost")
	}
}

func TestWakeOneOrder(t *testing.T) {
	var q WaitQueue
	ws := []*Waiter{NewWaiter(), NewWaiter(), NewWaiter()}
	for _, w := range ws {
		q.Enqueue(w)
	}
	if got := q.Len(); got != 3 {
		t.Fatalf("Len: got %d, want 3", got)
	}
	for i, w := range ws {
		if !q.WakeOne() {
			t.Fatalf("WakeOne #%d returned false", i)
		}
		select {
		case <-w.ch:
		default:
			t.Fatalf("WakeOne #%d did not wake waiter %d", i, i)
		}
	}
	if q.WakeOne() {
		t.Errorf("WakeOne on an empty queue returned true")
	}
}

func TestWakeAll(t *testing.T) {
	var q WaitQueue
	const n = 8
	ready := make(chan struct{}, n)
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		w := NewWaiter()
		q.Enqueue(w)
		go func() {
			ready <- struct{}{}
			q.Sleep(w)
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-ready
	}
	if got := q.WakeAll(); got != n {
		t.Errorf("WakeAll: got %d, want %d", got, n)
	}
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatalf("only %d of %d waiters woke", i, n)
		}
	}
	if got := q.Len(); got != 0 {
		t.Errorf("Len after WakeAll: got %d, want 0", got)
	}
}

func TestDoubleEnqueuePanics(t *testing.T) {
	var q WaitQueue
	w := NewWaiter()
	q.Enqueue(w)
	defer func() {
		if recover() == nil {
			t.Errorf("second Enqueue did not panic")
		}
	}()
	q.Enqueue(w)
}
