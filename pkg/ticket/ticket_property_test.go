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

package ticket

import (
	"testing"

	"pgregory.net/rapid"
)

// TestCounterArithmetic drives a lock through random acquire and release
// sequences starting from arbitrary counter values and compares it with a
// model of the two counters.
func TestCounterArithmetic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := rapid.Uint16().Draw(t, "start")
		var l Lock
		l.state.Store(uint32(start)<<16 | uint32(start))

		held := false
		tickets := start
		ops := rapid.SliceOfN(rapid.SampledFrom([]string{"lock", "trylock", "unlock"}), 1, 200).Draw(t, "ops")
		for _, op := range ops {
			switch op {
			case "lock":
				if held {
					continue
				}
				l.Lock()
				held = true
				tickets++
			case "trylock":
				got := l.TryLock()
				if got == held {
					t.Fatalf("TryLock with held=%t returned %t", held, got)
				}
				if got {
					held = true
					tickets++
				}
			case "unlock":
				if !held {
					continue
				}
				l.Unlock()
				held = false
			}

			s := l.state.Load()
			if next(s) != tickets {
				t.Fatalf("next ticket: got %d, want %d", next(s), tickets)
			}
			if l.IsLocked() != held {
				t.Fatalf("IsLocked: got %t, want %t", l.IsLocked(), held)
			}
			if l.IsContended() {
				t.Fatalf("IsContended with a single goroutine: %v", &l)
			}
		}
	})
}
