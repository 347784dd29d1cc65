// Copyright 2020 The kernsync Authors.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !amd64 && !arm64

package sync

// Pause is a no-op on architectures without a spin-wait hint.
//
//go:nosplit
func Pause() {}
