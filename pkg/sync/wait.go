// Copyright 2021 The kernsync Authors.
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

package sync

import "fmt"

// WaitGroupErr is a WaitGroup whose goroutines can report failures. Only the
// first report is kept.
//
// It is meant for test and tool workers that must not call t.Fatal or exit
// from a goroutine:
//
//	var wg WaitGroupErr
//	wg.Add(1)
//	go func() {
//		defer wg.Done()
//		if got != want {
//			wg.Reportf("got %d, want %d", got, want)
//		}
//	}()
//	if err := wg.Error(); err != nil {
//		...
//	}
type WaitGroupErr struct {
	WaitGroup

	// mu protects firstErr.
	mu Mutex

	// firstErr is the first reported error, nil if none was reported.
	firstErr error
}

// ReportError records err if it is the first one. It does not call Done.
func (w *WaitGroupErr) ReportError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.firstErr == nil {
		w.firstErr = err
	}
}

// Reportf is ReportError with a formatted error.
func (w *WaitGroupErr) Reportf(format string, v ...any) {
	w.ReportError(fmt.Errorf(format, v...))
}

// Error waits for the group and returns the first reported error.
func (w *WaitGroupErr) Error() error {
	w.Wait()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.firstErr
}
