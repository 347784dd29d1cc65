// Copyright 2020 The kernsync Authors.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sync

import (
	"sync"
)

// Aliases of standard library types.
type (
	// Locker is an alias of sync.Locker.
	Locker = sync.Locker

	// Mutex is an alias of sync.Mutex.
	Mutex = sync.Mutex

	// WaitGroup is an alias of sync.WaitGroup.
	WaitGroup = sync.WaitGroup
)

// OnceValue is a wrapper around sync.OnceValue.
