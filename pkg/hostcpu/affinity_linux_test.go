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

//go:build linux
// +build linux

package hostcpu

import (
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestPinUsable pins a thread to the last usable CPU, which under a
// restricted affinity mask is not len(Usable())-1.
func TestPinUsable(t *testing.T) {
	cpus, err := Usable()
	if err != nil {
		t.Fatalf("Usable() failed: %v", err)
	}
	want := cpus[len(cpus)-1]

	errc := make(chan error, 1)
	got := make(chan []int, 1)
	go func() {
		// The thread exits with the goroutine, taking its narrowed mask
		// with it.
		runtime.LockOSThread()
		if err := Pin(want); err != nil {
			errc <- err
			return
		}
		after, err := Usable()
		if err != nil {
			errc <- err
			return
		}
		got <- after
	}()

	select {
	case err := <-errc:
		t.Fatalf("pinning to CPU %d: %v", want, err)
	case after := <-got:
		if diff := cmp.Diff([]int{want}, after); diff != "" {
			t.Errorf("Usable after Pin(%d) mismatch (-want +got):\n%s", want, diff)
		}
	}

	// Pinning never narrows the mask of other threads.
	if now, err := Usable(); err != nil {
		t.Errorf("Usable() failed: %v", err)
	} else if diff := cmp.Diff(cpus, now); diff != "" {
		t.Errorf("Usable changed on the test thread (-before +after):\n%s", diff)
	}
}
