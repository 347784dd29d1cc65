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
	"kernsync.dev/kernsync/pkg/barrier"
	"kernsync.dev/kernsync/pkg/cleanup"
)

// Barrier kinds.
const (
	BarrierGroup = "group"
	BarrierCore  = "core"
)

// rendezvous is the part of Barrier and CoreBarrier the barrier workload
// uses.
type rendezvous interface {
	wait() bool
}

type groupRendezvous struct{ b *barrier.Barrier }

func (r groupRendezvous) wait() bool { return r.b.Wait() }

type coreRendezvous struct{ b *barrier.CoreBarrier }

func (r coreRendezvous) wait() bool { return r.b.ArriveAndWait() }

// Barrier takes opts.Threads workers through opts.Phases phases of a barrier
// of the given kind. It checks that no worker leaves a phase before every
// worker has arrived in it, and that each phase has exactly one leader.
func Barrier(ctx context.Context, kind string, opts Options) (*Result, error) {
	if opts.Threads < 1 || opts.Phases < 1 {
		return nil, fmt.Errorf("threads and phases must be at least 1, got %d and %d", opts.Threads, opts.Phases)
	}

	var r rendezvous
	cu := cleanup.Cleanup{}
	defer cu.Clean()
	switch kind {
	case BarrierGroup:
		b := new(barrier.Barrier)
		if err := b.Init(opts.Threads); err != nil {
			return nil, fmt.Errorf("initializing barrier: %w", err)
		}
		cu.Add(b.Destroy)
		r = groupRendezvous{b}
	case BarrierCore:
		b, err := barrier.NewCoreBarrier(opts.Threads)
		if err != nil {
			return nil, fmt.Errorf("creating core barrier: %w", err)
		}
		for i := 0; i < opts.Threads; i++ {
			b.Raise()
		}
		cu.Add(func() {
			for i := 0; i < opts.Threads; i++ {
				b.Lower()
			}
			if err := b.Close(); err != nil {
				panic(fmt.Sprintf("closing core barrier: %v", err))
			}
		})
		r = coreRendezvous{b}
	default:
		return nil, fmt.Errorf("unknown barrier kind %q, must be %q or %q", kind, BarrierGroup, BarrierCore)
	}

	var arrived atomicbitops.Int32
	leaders := make([]atomicbitops.Int32, opts.Phases)
	res := &Result{
		Workload:  "barrier",
		Lock:      kind,
		Threads:   opts.Threads,
		PerWorker: make([]uint64, opts.Threads),
	}
	var err error
	res.Elapsed, err = run(ctx, opts.Threads, opts.PinCPUs, func(ctx context.Context, id int) error {
		// A worker that sees a violation keeps going so that the others
		// are not left waiting on it.
		var failed error
		for p := 0; p < opts.Phases; p++ {
			arrived.Add(1)
			if r.wait() {
				leaders[p].Add(1)
			}
			if got, min := arrived.Load(), int32((p+1)*opts.Threads); got < min && failed == nil {
				failed = fmt.Errorf("worker %d left phase %d after %d arrivals, want at least %d", id, p, got, min)
			}
			res.PerWorker[id]++
		}
		return failed
	})
	if err != nil {
		return nil, err
	}
	res.sum()
	for p := range leaders {
		if n := leaders[p].Load(); n != 1 {
			return res, fmt.Errorf("phase %d had %d leaders, want 1", p, n)
		}
	}
	return res, nil
}
