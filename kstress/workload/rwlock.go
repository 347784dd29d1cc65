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
	"kernsync.dev/kernsync/pkg/rwlock"
)

// writerEvery makes one worker in writerEvery a writer in the rwlock
// workload. Worker 0 is always a writer.
const writerEvery = 4

// RWLock runs a mix of readers and writers over a pair of values that
// writers keep equal. Readers check that the pair is consistent and that no
// writer is inside; writers check that they are alone.
func RWLock(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	var (
		rw      rwlock.RWLock
		writing atomicbitops.Int32
		reading atomicbitops.Int32
		a, b    uint64
	)
	res := &Result{
		Workload:  "rwlock",
		Lock:      KindRWLock,
		Threads:   opts.Threads,
		PerWorker: make([]uint64, opts.Threads),
	}

	var err error
	res.Elapsed, err = run(ctx, opts.Threads, opts.PinCPUs, func(ctx context.Context, id int) error {
		writer := id%writerEvery == 0
		for j := 0; j < opts.Iterations; j++ {
			if writer {
				rw.Lock()
				if w := writing.Add(1); w != 1 {
					rw.Unlock()
					return fmt.Errorf("writer %d: %d writers inside", id, w)
				}
				if r := reading.Load(); r != 0 {
					rw.Unlock()
					return fmt.Errorf("writer %d: %d readers inside", id, r)
				}
				a++
				b++
				writing.Add(-1)
				rw.Unlock()
			} else {
				rw.RLock()
				reading.Add(1)
				if w := writing.Load(); w != 0 {
					reading.Add(-1)
					rw.RUnlock()
					return fmt.Errorf("reader %d: %d writers inside", id, w)
				}
				if a != b {
					reading.Add(-1)
					rw.RUnlock()
					return fmt.Errorf("reader %d: torn write, %d != %d", id, a, b)
				}
				reading.Add(-1)
				rw.RUnlock()
			}
			res.PerWorker[id]++
			if j%1024 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.sum()

	writers := (opts.Threads + writerEvery - 1) / writerEvery
	if want := uint64(writers * opts.Iterations); a != want {
		return res, fmt.Errorf("lost writes: %d, want %d", a, want)
	}
	return res, nil
}
