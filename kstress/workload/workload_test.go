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
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"kernsync.dev/kernsync/pkg/locktest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// small keeps one spinning worker per processor.
var small = Options{
	Threads:    locktest.Procs(4),
	Iterations: 500,
	Phases:     20,
	Duration:   50 * time.Millisecond,
}

func checkResult(t *testing.T, res *Result, want Result) {
	t.Helper()
	got := *res
	got.Elapsed = 0
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func repeat(n uint64, count int) []uint64 {
	s := make([]uint64, count)
	for i := range s {
		s[i] = n
	}
	return s
}

func TestMutex(t *testing.T) {
	for _, kind := range Kinds {
		t.Run(kind, func(t *testing.T) {
			res, err := Mutex(context.Background(), kind, small)
			if err != nil {
				t.Fatalf("Mutex(%q) failed: %v", kind, err)
			}
			checkResult(t, res, Result{
				Workload:  "mutex",
				Lock:      kind,
				Threads:   small.Threads,
				Ops:       uint64(small.Threads * small.Iterations),
				PerWorker: repeat(uint64(small.Iterations), small.Threads),
			})
		})
	}
}

func TestMutexUnknownKind(t *testing.T) {
	if _, err := Mutex(context.Background(), "futex", small); err == nil {
		t.Fatalf("Mutex(futex) succeeded, want error")
	}
	if err := ValidKind("futex"); err == nil {
		t.Errorf("ValidKind(futex) succeeded, want error")
	}
}

func TestOptionsValidate(t *testing.T) {
	for _, opts := range []Options{
		{Threads: 0, Iterations: 1},
		{Threads: 1, Iterations: 0},
	} {
		if _, err := Mutex(context.Background(), KindSpinlock, opts); err == nil {
			t.Errorf("Mutex(%+v) succeeded, want error", opts)
		}
	}
}

func TestFairness(t *testing.T) {
	for _, kind := range []string{KindTicket, KindMCS} {
		t.Run(kind, func(t *testing.T) {
			res, err := Fairness(context.Background(), kind, small)
			if err != nil {
				t.Fatalf("Fairness(%q) failed: %v", kind, err)
			}
			if res.Ops == 0 {
				t.Errorf("no acquisitions in %v", small.Duration)
			}
			if len(res.PerWorker) != small.Threads {
				t.Errorf("got %d workers, want %d", len(res.PerWorker), small.Threads)
			}
		})
	}
}

func TestFairnessNoDuration(t *testing.T) {
	opts := small
	opts.Duration = 0
	if _, err := Fairness(context.Background(), KindTicket, opts); err == nil {
		t.Fatalf("Fairness with zero duration succeeded, want error")
	}
}

func TestBarrier(t *testing.T) {
	for _, kind := range []string{BarrierGroup, BarrierCore} {
		t.Run(kind, func(t *testing.T) {
			res, err := Barrier(context.Background(), kind, small)
			if err != nil {
				t.Fatalf("Barrier(%q) failed: %v", kind, err)
			}
			checkResult(t, res, Result{
				Workload:  "barrier",
				Lock:      kind,
				Threads:   small.Threads,
				Ops:       uint64(small.Threads * small.Phases),
				PerWorker: repeat(uint64(small.Phases), small.Threads),
			})
		})
	}
}

func TestBarrierInvalid(t *testing.T) {
	if _, err := Barrier(context.Background(), "tree", small); err == nil || !strings.Contains(err.Error(), "tree") {
		t.Errorf("Barrier(tree) = %v, want unknown kind error", err)
	}
	opts := small
	opts.Phases = 0
	if _, err := Barrier(context.Background(), BarrierGroup, opts); err == nil {
		t.Errorf("Barrier with no phases succeeded, want error")
	}
}

func TestCondvar(t *testing.T) {
	for _, threads := range []int{1, 2, 5} {
		opts := small
		opts.Threads = threads
		res, err := Condvar(context.Background(), opts)
		if err != nil {
			t.Fatalf("Condvar(%d threads) failed: %v", threads, err)
		}
		producers := threads / 2
		if producers < 1 {
			producers = 1
		}
		// Every item is put once and taken once.
		if want := uint64(2 * producers * opts.Iterations); res.Ops != want {
			t.Errorf("Condvar(%d threads) did %d ops, want %d", threads, res.Ops, want)
		}
	}
}

func TestRWLock(t *testing.T) {
	opts := small
	opts.Threads = locktest.Procs(8)
	res, err := RWLock(context.Background(), opts)
	if err != nil {
		t.Fatalf("RWLock failed: %v", err)
	}
	checkResult(t, res, Result{
		Workload:  "rwlock",
		Lock:      KindRWLock,
		Threads:   opts.Threads,
		Ops:       uint64(opts.Threads * opts.Iterations),
		PerWorker: repeat(uint64(opts.Iterations), opts.Threads),
	})
}

func TestPinCPUs(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("CPU pinning is only supported on Linux")
	}
	opts := small
	opts.PinCPUs = true
	res, err := Mutex(context.Background(), KindTicket, opts)
	if err != nil {
		t.Fatalf("Mutex with pinned workers failed: %v", err)
	}
	if want := uint64(opts.Threads * opts.Iterations); res.Ops != want {
		t.Errorf("Mutex with pinned workers did %d ops, want %d", res.Ops, want)
	}
}

func TestCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := small
	opts.Iterations = 1 << 20
	if _, err := Mutex(ctx, KindSpinlock, opts); err != context.Canceled {
		t.Errorf("Mutex on canceled context = %v, want %v", err, context.Canceled)
	}
}

func TestResult(t *testing.T) {
	r := Result{PerWorker: []uint64{3, 9, 6}, Elapsed: 2 * time.Second}
	r.sum()
	if r.Ops != 18 {
		t.Errorf("Ops = %d, want 18", r.Ops)
	}
	if got := r.OpsPerSecond(); got != 9 {
		t.Errorf("OpsPerSecond = %v, want 9", got)
	}
	if min, max := r.Spread(); min != 3 || max != 9 {
		t.Errorf("Spread = %d, %d, want 3, 9", min, max)
	}
	if got := (&Result{}).OpsPerSecond(); got != 0 {
		t.Errorf("OpsPerSecond with no elapsed time = %v, want 0", got)
	}
}
