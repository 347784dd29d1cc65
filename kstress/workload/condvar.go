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

package workload

import (
	"context"
	"fmt"

	"kernsync.dev/kernsync/pkg/atomicbitops"
	"kernsync.dev/kernsync/pkg/condvar"
	"kernsync.dev/kernsync/pkg/sched"
	"kernsync.dev/kernsync/pkg/spinlock"
)

// queueCapacity is the size of the bounded queue in the condvar workload.
const queueCapacity = 16

// boundedQueue is a producer/consumer queue guarded by a spinlock, with one
// condition variable per direction.
type boundedQueue struct {
	mu       spinlock.Spinlock
	notFull  condvar.Cond
	notEmpty condvar.Cond
	items    []int
	closed   bool
}

func newBoundedQueue() *boundedQueue {
	q := &boundedQueue{}
	q.notFull.Init(new(sched.WaitQueue))
	q.notEmpty.Init(new(sched.WaitQueue))
	return q
}

// put returns false if the queue was closed before v could be added.
func (q *boundedQueue) put(v int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == queueCapacity && !q.closed {
		q.notFull.Wait(&q.mu)
	}
	if q.closed {
		return false
	}
	q.items = append(q.items, v)
	q.notEmpty.Signal()
	return true
}

// get returns false once the queue is closed and drained.
func (q *boundedQueue) get() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait(&q.mu)
	}
	if len(q.items) == 0 {
		return 0, false
	}
	v := q.items[0]
	q.items = q.items[1:]
	q.notFull.Signal()
	return v, true
}

func (q *boundedQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	q.mu.Unlock()
}

func (q *boundedQueue) destroy() error {
	if err := q.notFull.Destroy(); err != nil {
		return err
	}
	return q.notEmpty.Destroy()
}

// Condvar runs producers and consumers, half of opts.Threads each, over a
// bounded queue built on Cond. Every producer puts opts.Iterations items. It
// checks that every item is consumed exactly once.
func Condvar(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	producers := opts.Threads / 2
	if producers < 1 {
		producers = 1
	}
	consumers := opts.Threads - producers
	if consumers < 1 {
		consumers = 1
	}
	threads := producers + consumers

	q := newBoundedQueue()
	seen := make([][]uint32, consumers)
	for i := range seen {
		seen[i] = make([]uint32, producers*opts.Iterations)
	}
	res := &Result{
		Workload:  "condvar",
		Threads:   threads,
		PerWorker: make([]uint64, threads),
	}

	// Cancellation closes the queue early.
	stop := context.AfterFunc(ctx, q.close)
	defer stop()

	var live atomicbitops.Int32
	live.Store(int32(producers))

	var err error
	res.Elapsed, err = run(ctx, threads, opts.PinCPUs, func(ctx context.Context, id int) error {
		if id < producers {
			defer func() {
				if live.Add(-1) == 0 {
					q.close()
				}
			}()
			for i := 0; i < opts.Iterations; i++ {
				if !q.put(id*opts.Iterations + i) {
					return nil
				}
				res.PerWorker[id]++
			}
			return nil
		}
		mine := seen[id-producers]
		for {
			v, ok := q.get()
			if !ok {
				return nil
			}
			mine[v]++
			res.PerWorker[id]++
		}
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.sum()

	for item := 0; item < producers*opts.Iterations; item++ {
		var n uint32
		for c := range seen {
			n += seen[c][item]
		}
		if n != 1 {
			return res, fmt.Errorf("item %d consumed %d times, want 1", item, n)
		}
	}
	if err := q.destroy(); err != nil {
		return res, fmt.Errorf("destroying condition variables: %w", err)
	}
	return res, nil
}
