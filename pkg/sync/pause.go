// Copyright 2020 The kernsync Authors.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build amd64 || arm64

package sync

// Pause executes the processor spin-wait hint: PAUSE on amd64, YIELD on
// arm64. It lowers the power and memory-order penalties of a tight spin loop
// and returns immediately.
//
//go:noescape
func Pause()
