// Copyright 2020 The kernsync Authors.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sync

import (
	"runtime"
)

// Goyield is the reschedule hint used by busy-wait loops on oversubscribed
// cores.
//
// The calling goroutine stays runnable: it is put back on a run queue and
// picked up again without any external wakeup, so Goyield never suspends the
// caller the way a wait queue sleep does.
func Goyield() {
	runtime.Gosched()
}
